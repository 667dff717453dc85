package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kioku/internal/config"
)

type embeddingRequest struct {
	Input interface{} `json:"input"`
	Model string      `json:"model"`
}

func embeddingServer(t *testing.T, vectors [][]float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data := make([]map[string]interface{}, len(vectors))
		for i, v := range vectors {
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": v,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOpenAIConfig(baseURL string) *config.OpenAIConfig {
	return &config.OpenAIConfig{
		APIKey:              "sk-test",
		BaseURL:             baseURL,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 3,
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := embeddingServer(t, [][]float64{{0.1, 0.2, 0.3}})
	e := NewOpenAIEmbedder(testOpenAIConfig(srv.URL))
	defer e.Close()

	emb, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(emb))
	}
	if emb[0] != 0.1 || emb[2] != 0.3 {
		t.Errorf("embedding values: %v", emb)
	}
	if e.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := embeddingServer(t, [][]float64{{1, 0, 0}, {0, 1, 0}})
	e := NewOpenAIEmbedder(testOpenAIConfig(srv.URL))
	defer e.Close()

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Errorf("embeddings out of order: %v", out)
	}
}

func TestOpenAIEmbedder_EmbedBatchEmpty(t *testing.T) {
	e := NewOpenAIEmbedder(testOpenAIConfig("http://localhost:1"))
	out, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Errorf("expected nil for empty input, got %v", out)
	}
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testOpenAIConfig(srv.URL)
	cfg.RequestTimeoutSecs = 2
	e := NewOpenAIEmbedder(cfg)
	if _, err := e.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
