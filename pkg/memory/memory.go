package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultTopK is the number of passages recalled when none is configured.
const DefaultTopK = 3

// Memory is a seeded store plus the embedder its vectors came from.
// It is built once at startup and shared read-only by every request.
type Memory struct {
	store    Store
	embedder Embedder
	topK     int

	seedOnce sync.Once
	seeded   int
	seedErr  error
}

// New returns a Memory recalling topK passages per query.
func New(store Store, embedder Embedder, topK int) *Memory {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Memory{store: store, embedder: embedder, topK: topK}
}

// Seed loads docs into the store. Only the first call does any work;
// later calls return its outcome.
func (m *Memory) Seed(ctx context.Context, docs []Document) (int, error) {
	m.seedOnce.Do(func() {
		m.seeded, m.seedErr = Seed(ctx, m.store, m.embedder, docs)
	})
	return m.seeded, m.seedErr
}

// Search embeds query and returns up to limit passages, best first.
// A limit of 0 uses the configured top-k.
func (m *Memory) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = m.topK
	}
	vec, err := embedOne(ctx, m.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := m.store.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	slog.DebugContext(ctx, "Memory search", "query", query, "matches", len(matches))
	return matches, nil
}

// Close releases the store.
func (m *Memory) Close() error {
	return m.store.Close()
}
