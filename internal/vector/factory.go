// Package vector provides vector index implementations and a factory for creating them.
package vector

import (
	"fmt"

	"github.com/hyperjump/kioku/internal/config"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search, persisted to disk on
	// shutdown. Good for a single-node deployment with a modest note corpus.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeChroma uses a remote Chroma server for storage and ANN search.
	IndexTypeChroma IndexType = "chroma"
)

// NewVectorIndex creates a vector index per cfg.
// Supported types: "memory" (default), "chroma".
func NewVectorIndex(cfg *config.VectorConfig, dimensions int) (VectorIndex, error) {
	switch IndexType(cfg.IndexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeChroma:
		return NewChromaIndex(cfg.ChromaURL, cfg.ChromaCollection, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, chroma)", cfg.IndexType)
	}
}
