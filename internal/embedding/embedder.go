// Package embedding provides text embedding via a remote model.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the remote embedding model could not be reached or errored.
var ErrUnavailable = errors.New("embedding model unavailable")

// Embedder produces vector embeddings for text. Callers compose multi-field
// input (title + content, joined conversation turns) before calling.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
