package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// VolatileStore is an in-process Store. Contents are lost on exit.
type VolatileStore struct {
	mu      sync.RWMutex
	dims    int
	records map[string]Record
}

func NewVolatileStore() *VolatileStore {
	return &VolatileStore{records: make(map[string]Record)}
}

func (s *VolatileStore) EnsureCollection(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = dims
		return nil
	}
	if s.dims != dims {
		return fmt.Errorf("%w: collection has %d, got %d", ErrDimensionMismatch, s.dims, dims)
	}
	return nil
}

func (s *VolatileStore) Upsert(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if s.dims != 0 && len(r.Vector) != s.dims {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Vector), s.dims)
		}
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *VolatileStore) Search(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		if len(r.Vector) != len(vector) {
			continue
		}
		matches = append(matches, Match{Record: r, Score: cosine(vector, r.Vector)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *VolatileStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *VolatileStore) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
