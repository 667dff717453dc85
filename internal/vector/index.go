// Package vector provides vector index implementations and metadata-filtered similarity search.
package vector

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the vector index backend could not be reached.
var ErrUnavailable = errors.New("vector index unavailable")

// VectorIndex defines vector storage and owner-filtered similarity search.
type VectorIndex interface {
	// Upsert stores a vector under id, replacing any prior entry for the same id.
	Upsert(ctx context.Context, id string, vec []float32, metadata map[string]string) error
	// Query returns up to topK matches ordered by descending similarity. Only
	// entries whose metadata equals every key/value in filter are returned.
	Query(ctx context.Context, query []float32, topK int, filter map[string]string) ([]*Match, error)
	// Delete removes the entry for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Type() string
	Close() error
}

// Match is a single similarity search hit.
type Match struct {
	ID    string
	Score float64 // Inner product; cosine similarity for normalized vectors.
}
