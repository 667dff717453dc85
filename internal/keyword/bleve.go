// Package keyword provides Bleve implementation of KeywordIndex.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kioku/internal/models"
)

// bleveNote is the document shape stored in the index. Only searchable fields
// are kept; the record store holds the full note.
type bleveNote struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the index directory to force a full re-index after
// a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match the
	// exact words a note uses.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	// owner_id is matched exactly, never analyzed.
	docMapping.AddFieldMappingsAt("owner_id", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("note", docMapping)
	im.DefaultType = "note"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a note by id, replacing any prior entry.
func (b *BleveIndex) Index(ctx context.Context, note *models.Note) error {
	return b.index.Index(note.ID, &bleveNote{
		OwnerID: note.OwnerID,
		Title:   note.Title,
		Content: note.Content,
	})
}

// Search runs a match query over title and content, restricted to the owner's
// notes, and returns up to limit results by descending score.
func (b *BleveIndex) Search(ctx context.Context, ownerID, query string, limit int) ([]*KeywordResult, error) {
	owner := bleve.NewTermQuery(ownerID)
	owner.SetField("owner_id")

	match := bleve.NewMatchQuery(query)

	search := bleve.NewSearchRequest(bleve.NewConjunctionQuery(owner, match))
	search.Size = limit
	results, err := b.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes a note from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of notes in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
