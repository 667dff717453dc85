// Package indexer pairs note record writes with vector index updates so that a
// stored note is always retrievable by the chat service.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// MetaKeyOwnerID is the metadata key carrying the note owner in the vector index.
const MetaKeyOwnerID = "owner_id"

// ErrNotOwner is returned when a caller operates on a note owned by another user.
var ErrNotOwner = errors.New("note owned by another user")

// Indexer writes notes to storage and keeps the vector and keyword indices in
// step. The record and its vector are all-or-nothing: a partial failure is
// compensated before the error is returned.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex // optional
	logger       *zap.Logger          // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (note indexed, note deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
// keywordIndex may be nil; keyword indexing is then skipped.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:      storage,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexNote embeds and stores a new note for ownerID. The record is inserted
// first and the vector upserted second; if the vector write fails, the record
// is deleted again so no note exists without its vector entry.
func (idx *Indexer) IndexNote(ctx context.Context, ownerID string, input *models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	vec, err := idx.embedder.Embed(ctx, input.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embed note: %w", err)
	}
	note := &models.Note{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   input.Title,
		Content: input.Content,
	}
	if err := idx.storage.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("store note: %w", err)
	}
	if err := idx.vectorIndex.Upsert(ctx, note.ID, vec, map[string]string{MetaKeyOwnerID: ownerID}); err != nil {
		// A note without its vector is invisible to retrieval; take the record
		// back out rather than leave it permanently unreachable.
		if delErr := idx.storage.DeleteNote(ctx, note.ID); delErr != nil && idx.logger != nil {
			idx.logger.Error("record rollback after vector failure failed",
				zap.String("id", note.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("index note vector: %w", err)
	}
	idx.indexKeyword(ctx, note)
	if idx.logger != nil {
		idx.logger.Debug("note indexed", zap.String("id", note.ID), zap.String("owner_id", ownerID))
	}
	return note, nil
}

// UpdateNote re-embeds and updates an existing note. The vector is upserted
// before the record update; if the record update then fails, the previous
// vector is restored from the stored note.
func (idx *Indexer) UpdateNote(ctx context.Context, ownerID, id string, input *models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	prev, err := idx.storage.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	vec, err := idx.embedder.Embed(ctx, input.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embed note: %w", err)
	}
	if err := idx.vectorIndex.Upsert(ctx, id, vec, map[string]string{MetaKeyOwnerID: ownerID}); err != nil {
		return nil, fmt.Errorf("index note vector: %w", err)
	}
	note := &models.Note{
		ID:        id,
		OwnerID:   ownerID,
		Title:     input.Title,
		Content:   input.Content,
		CreatedAt: prev.CreatedAt,
	}
	if err := idx.storage.UpdateNote(ctx, note); err != nil {
		idx.restoreVector(ctx, prev)
		return nil, fmt.Errorf("update note: %w", err)
	}
	idx.indexKeyword(ctx, note)
	return note, nil
}

// DeleteNote removes a note and its index entries. The vector is deleted first
// so it never outlives the record; if the record delete then fails, the vector
// is restored so the note stays retrievable.
func (idx *Indexer) DeleteNote(ctx context.Context, ownerID, id string) error {
	note, err := idx.storage.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if note.OwnerID != ownerID {
		return ErrNotOwner
	}
	if err := idx.vectorIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete note vector: %w", err)
	}
	if err := idx.storage.DeleteNote(ctx, id); err != nil {
		idx.restoreVector(ctx, note)
		return fmt.Errorf("delete note: %w", err)
	}
	if idx.keywordIndex != nil {
		if kwErr := idx.keywordIndex.Delete(ctx, id); kwErr != nil && idx.logger != nil {
			idx.logger.Warn("keyword delete failed", zap.String("id", id), zap.Error(kwErr))
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("note deleted", zap.String("id", id), zap.String("owner_id", ownerID))
	}
	return nil
}

// restoreVector best-effort re-embeds a stored note and puts its vector back
// after a failed compensating path.
func (idx *Indexer) restoreVector(ctx context.Context, note *models.Note) {
	input := &models.NoteInput{Title: note.Title, Content: note.Content}
	vec, err := idx.embedder.Embed(ctx, input.EmbeddingText())
	if err == nil {
		err = idx.vectorIndex.Upsert(ctx, note.ID, vec, map[string]string{MetaKeyOwnerID: note.OwnerID})
	}
	if err != nil && idx.logger != nil {
		idx.logger.Error("vector restore failed", zap.String("id", note.ID), zap.Error(err))
	}
}

// indexKeyword adds the note to the keyword index. Keyword search is a
// convenience layer, not part of the atomicity contract, so failures are only
// logged.
func (idx *Indexer) indexKeyword(ctx context.Context, note *models.Note) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.Index(ctx, note); err != nil && idx.logger != nil {
		idx.logger.Warn("keyword index failed", zap.String("id", note.ID), zap.Error(err))
	}
}
