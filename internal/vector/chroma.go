// Package vector provides a Chroma-backed implementation of VectorIndex.
package vector

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// ChromaIndex implements VectorIndex against a remote Chroma server.
// The server owns persistence, so Save and Load are no-ops.
type ChromaIndex struct {
	client     chromago.Client
	collection chromago.Collection
	dimensions int
}

// NewChromaIndex connects to the Chroma server at url and opens (or creates)
// the named collection.
func NewChromaIndex(url, collectionName string, dimensions int) (*ChromaIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(url))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	collection, err := client.GetOrCreateCollection(context.Background(), collectionName)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open chroma collection %q: %w", collectionName, err)
	}
	return &ChromaIndex{client: client, collection: collection, dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (c *ChromaIndex) Type() string {
	return string(IndexTypeChroma)
}

// Upsert stores or replaces the vector for id along with its metadata.
func (c *ChromaIndex) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]string) error {
	if len(vec) != c.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), c.dimensions)
	}
	attrs := make([]*chromago.MetaAttribute, 0, len(metadata))
	for k, v := range metadata {
		attrs = append(attrs, chromago.NewStringAttribute(k, v))
	}
	err := c.collection.Upsert(ctx,
		chromago.WithIDs(chromago.DocumentID(id)),
		chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vec)),
		chromago.WithMetadatas(chromago.NewDocumentMetadata(attrs...)),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

// Query runs a metadata-filtered nearest-neighbor query. Chroma returns cosine
// distances; scores are reported as 1 - distance so higher means more similar.
func (c *ChromaIndex) Query(ctx context.Context, query []float32, topK int, filter map[string]string) ([]*Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chromago.WithNResults(topK),
	}
	if where := whereFromFilter(filter); where != nil {
		opts = append(opts, chromago.WithWhereQuery(where))
	}
	results, err := c.collection.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	distGroups := results.GetDistancesGroups()
	matches := make([]*Match, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		m := &Match{ID: string(id)}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			m.Score = 1 - float64(distGroups[0][i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func whereFromFilter(filter map[string]string) chromago.WhereFilter {
	clauses := make([]chromago.WhereClause, 0, len(filter))
	for k, v := range filter {
		clauses = append(clauses, chromago.EqString(k, v))
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return chromago.And(clauses...)
	}
}

// Delete removes the vector entry for id.
func (c *ChromaIndex) Delete(ctx context.Context, id string) error {
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(chromago.DocumentID(id))); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

// Save is a no-op; the Chroma server persists the collection.
func (c *ChromaIndex) Save(path string) error { return nil }

// Load is a no-op; the Chroma server persists the collection.
func (c *ChromaIndex) Load(path string) error { return nil }

// Size returns the number of vectors in the collection, or 0 if the count fails.
func (c *ChromaIndex) Size() int {
	count, err := c.collection.Count(context.Background())
	if err != nil {
		return 0
	}
	return int(count)
}

// Close releases the underlying client.
func (c *ChromaIndex) Close() error {
	return c.client.Close()
}
