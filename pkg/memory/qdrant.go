package memory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

const (
	qdrantRESTPort = 6333
	qdrantGRPCPort = 6334

	payloadText   = "text"
	payloadSource = "source"
)

// QdrantStore keeps records in a Qdrant collection over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// ParseQdrantEndpoint splits an endpoint such as "http://localhost:6333" into
// gRPC connection parameters. The REST port is mapped to the gRPC port and a
// missing port defaults to it.
func ParseQdrantEndpoint(endpoint string) (host string, port int, useTLS bool, err error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant endpoint %q: missing host", endpoint)
	}

	port = qdrantGRPCPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
		if port == qdrantRESTPort {
			port = qdrantGRPCPort
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// NewQdrantStore connects to endpoint and uses collection.
func NewQdrantStore(endpoint, apiKey, collection string) (*QdrantStore, error) {
	host, port, useTLS, err := ParseQdrantEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", host, port, err)
	}

	slog.Info("Qdrant store configured", "host", host, "port", port, "tls", useTLS, "collection", collection)
	return &QdrantStore{client: client, collection: collection}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	slog.Info("Qdrant collection created", "collection", s.collection, "dims", dims)
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:   r.Text,
				payloadSource: r.Source,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query %s: %w", s.collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, Match{
			Record: Record{
				ID:     p.GetId().GetUuid(),
				Text:   p.GetPayload()[payloadText].GetStringValue(),
				Source: p.GetPayload()[payloadSource].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}
	return matches, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %s: %w", s.collection, err)
	}
	return int(n), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// NewStore returns a QdrantStore for a non-empty endpoint and a
// VolatileStore otherwise.
func NewStore(endpoint, apiKey, collection string) (Store, error) {
	if endpoint == "" {
		slog.Info("No qdrant endpoint configured, using in-memory store", "collection", collection)
		return NewVolatileStore(), nil
	}
	return NewQdrantStore(endpoint, apiKey, collection)
}
