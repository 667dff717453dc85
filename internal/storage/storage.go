// Package storage defines the persistence interface for notes.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kioku/internal/models"
)

// ErrNotFound is returned when a note does not exist.
var ErrNotFound = errors.New("note not found")

// Storage defines note persistence operations. The record store is the source of
// truth; the vector index only holds a derived projection keyed by note id.
type Storage interface {
	CreateNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	UpdateNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, id string) error
	ListNotesByOwner(ctx context.Context, ownerID string, offset, limit int) ([]*models.Note, error)

	// FindNotes returns the notes that exist among ids, in no particular order.
	// Missing ids are skipped, not errors; retrieval hydration depends on this leniency.
	FindNotes(ctx context.Context, ids []string) ([]*models.Note, error)

	CountNotes(ctx context.Context) (int64, error)

	Close() error
}
