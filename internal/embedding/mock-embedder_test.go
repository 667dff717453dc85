package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	defer e.Close()
	ctx := context.Background()

	a, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "same text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d: %f vs %f", i, a[i], b[i])
		}
	}

	c, _ := e.Embed(ctx, "different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(16)
	emb, err := e.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 16 {
		t.Fatalf("dimensions: got %d", len(emb))
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-4 {
		t.Errorf("embedding not unit length: norm = %f", math.Sqrt(sum))
	}
}

func TestMockEmbedder_Batch(t *testing.T) {
	e := NewMockEmbedder(4)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
	single, _ := e.Embed(context.Background(), "a")
	for i := range single {
		if out[0][i] != single[i] {
			t.Fatal("batch embedding differs from single embedding")
		}
	}
}

func TestMockEmbedder_DefaultDimensions(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 1536 {
		t.Errorf("default dimensions: got %d", e.Dimensions())
	}
}
