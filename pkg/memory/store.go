package memory

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's size does not match the collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one embedded passage.
type Record struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Vector []float32 `json:"-"`
}

// Match is a search hit. Score is cosine similarity; higher is closer.
type Match struct {
	Record
	Score float32 `json:"score"`
}

// Store is a vector collection.
type Store interface {
	// EnsureCollection creates the collection for dims-sized vectors if missing.
	EnsureCollection(ctx context.Context, dims int) error
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to limit records closest to vector, best first.
	Search(ctx context.Context, vector []float32, limit int) ([]Match, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	Close() error
}
