package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/auth"
	"github.com/hyperjump/kioku/internal/chat"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

type stubStream struct {
	chunks []string
	pos    int
}

func (s *stubStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *stubStream) Close() error { return nil }

type stubCompleter struct {
	chunks []string
}

func (s *stubCompleter) Stream(ctx context.Context, messages []models.ChatMessage) (llm.Stream, error) {
	return &stubStream{chunks: s.chunks}, nil
}

func (s *stubCompleter) Close() error { return nil }

type testServer struct {
	router  http.Handler
	indexer *indexer.Indexer
	store   *storage.SQLiteStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	embedder := embedding.NewMockEmbedder(8)
	vecIdx, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })

	completer := &stubCompleter{chunks: []string{"grounded", " answer"}}
	chatSvc := chat.NewService(store, embedder, vecIdx, completer,
		&config.ChatConfig{HistoryWindow: 6, TopK: 4})
	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx)
	authenticator := auth.NewStaticTokenAuthenticator(map[string]string{
		"token-alice": "alice",
		"token-bob":   "bob",
	})

	srv := NewServer(chatSvc, idx, store, kwIdx, vecIdx, authenticator,
		&config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop())
	return &testServer{router: srv.Router(), indexer: idx, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, reader)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, r)
	return w
}

func decodeNote(t *testing.T, w *httptest.ResponseRecorder) *models.Note {
	t.Helper()
	var out struct {
		Note *models.Note `json:"note"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Note
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/v1/notes", "/api/v1/chat", "/api/v1/status"} {
		w := ts.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: got %d, want 401", path, w.Code)
		}
	}
	w := ts.do(t, http.MethodGet, "/api/v1/notes", "wrong-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d, want 401", w.Code)
	}
}

func TestCreateAndGetNote(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Recipe", Content: "Mix flour and water"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body: %s", w.Code, w.Body.String())
	}
	created := decodeNote(t, w)
	if created.ID == "" || created.OwnerID != "alice" {
		t.Errorf("created note: %+v", created)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notes/"+created.ID, "token-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	if got := decodeNote(t, w); got.Title != "Recipe" {
		t.Errorf("get note: %+v", got)
	}
}

func TestCreateNote_Invalid(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice", models.NoteInput{Content: "no title"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", w.Code)
	}
}

func TestGetNote_ForeignNoteIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Secret", Content: "C"})
	created := decodeNote(t, w)

	w = ts.do(t, http.MethodGet, "/api/v1/notes/"+created.ID, "token-bob", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign get: got %d, want 404", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/v1/notes/ghost", "token-alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing get: got %d, want 404", w.Code)
	}
}

func TestListNotes_OwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice", models.NoteInput{Title: "A1", Content: "C"})
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-bob", models.NoteInput{Title: "B1", Content: "C"})

	w := ts.do(t, http.MethodGet, "/api/v1/notes", "token-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d", w.Code)
	}
	var out struct {
		Notes []*models.Note `json:"notes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Notes) != 1 || out.Notes[0].Title != "A1" {
		t.Errorf("alice's listing: %+v", out.Notes)
	}
}

func TestUpdateNote(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Recipe", Content: "flour"})
	created := decodeNote(t, w)

	w = ts.do(t, http.MethodPut, "/api/v1/notes/"+created.ID, "token-alice",
		models.NoteInput{Title: "Recipe v2", Content: "butter"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: got %d, body: %s", w.Code, w.Body.String())
	}
	if got := decodeNote(t, w); got.Title != "Recipe v2" {
		t.Errorf("updated note: %+v", got)
	}

	w = ts.do(t, http.MethodPut, "/api/v1/notes/"+created.ID, "token-bob",
		models.NoteInput{Title: "Hijack", Content: "C"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("foreign update: got %d, want 401", w.Code)
	}
	w = ts.do(t, http.MethodPut, "/api/v1/notes/ghost", "token-alice",
		models.NoteInput{Title: "T", Content: "C"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing update: got %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Recipe", Content: "C"})
	created := decodeNote(t, w)

	w = ts.do(t, http.MethodDelete, "/api/v1/notes/"+created.ID, "token-bob", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("foreign delete: got %d, want 401", w.Code)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/notes/"+created.ID, "token-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/v1/notes/"+created.ID, "token-alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
}

func TestSearchNotes(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Bread recipe", Content: "Mix flour and water"})
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-bob",
		models.NoteInput{Title: "Bob's recipe", Content: "flour and sugar"})

	w := ts.do(t, http.MethodGet, "/api/v1/notes/search?q=flour", "token-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Results []struct {
			Note  *models.Note `json:"note"`
			Score float64      `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	if out.Results[0].Note.Title != "Bread recipe" || out.Results[0].Score <= 0 {
		t.Errorf("result: %+v", out.Results[0])
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notes/search", "token-alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q: got %d, want 400", w.Code)
	}
}

func TestChat(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Recipe", Content: "Mix flour and water"})

	w := ts.do(t, http.MethodPost, "/api/v1/chat", "token-alice", models.ChatRequest{
		Messages: models.Conversation{{Role: models.RoleUser, Content: "how do I make bread?"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: got %d, body: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "grounded answer" {
		t.Errorf("streamed body = %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("content type: %s", ct)
	}
}

func TestChat_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader([]byte("{not json")))
	r.Header.Set("Authorization", "Bearer token-alice")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", w.Code)
	}

	w2 := ts.do(t, http.MethodPost, "/api/v1/chat", "token-alice",
		models.ChatRequest{Messages: models.Conversation{}})
	if w2.Code != http.StatusBadRequest {
		t.Errorf("empty conversation: got %d, want 400", w2.Code)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/notes", "token-alice",
		models.NoteInput{Title: "Recipe", Content: "C"})

	w := ts.do(t, http.MethodGet, "/api/v1/status", "token-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Notes            int64  `json:"notes"`
		VectorIndexSize  int    `json:"vector_index_size"`
		VectorIndexType  string `json:"vector_index_type"`
		KeywordIndexSize uint64 `json:"keyword_index_size"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Notes != 1 || out.VectorIndexSize != 1 {
		t.Errorf("counts: %+v", out)
	}
	if out.VectorIndexType != "memory" {
		t.Errorf("vector_index_type: %s", out.VectorIndexType)
	}
	if out.KeywordIndexSize != 1 {
		t.Errorf("keyword_index_size: %d", out.KeywordIndexSize)
	}
}
