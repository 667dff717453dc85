// Package keyword provides full-text note search indexing and search.
package keyword

import (
	"context"

	"github.com/hyperjump/kioku/internal/models"
)

// KeywordIndex defines keyword search operations over notes. Searches are
// always scoped to a single owner.
type KeywordIndex interface {
	Index(ctx context.Context, note *models.Note) error
	Search(ctx context.Context, ownerID, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of notes in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
