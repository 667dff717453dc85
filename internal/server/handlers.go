package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/auth"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Messages.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("chat request", zap.String("owner_id", ownerID), zap.Int("turns", len(req.Messages)))

	stream, err := s.chat.Respond(r.Context(), ownerID, req.Messages)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		if errors.Is(err, auth.ErrUnauthorized) {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			// Headers are long gone; all we can do is truncate. The client must
			// treat an incomplete stream as a failed turn.
			s.logger.Error("completion stream failed mid-response", zap.Error(err))
			return
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.indexer.IndexNote(r.Context(), ownerID, &input)
	if err != nil {
		s.logger.Error("note indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"note": note})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notes, err := s.storage.ListNotesByOwner(r.Context(), ownerID, offset, limit)
	if err != nil {
		s.logger.Error("list notes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	id := chi.URLParam(r, "id")

	note, err := s.storage.GetNote(r.Context(), id)
	if err != nil || note.OwnerID != ownerID {
		// A foreign note reads the same as a missing one.
		s.respondError(w, http.StatusNotFound, "note not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	id := chi.URLParam(r, "id")

	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.indexer.UpdateNote(r.Context(), ownerID, id, &input)
	if err != nil {
		s.respondNoteError(w, err, "note update failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.indexer.DeleteNote(r.Context(), ownerID, id); err != nil {
		s.respondNoteError(w, err, "note deletion failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	if s.keywordIndex == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	ownerID, _ := auth.OwnerID(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	hits, err := s.keywordIndex.Search(r.Context(), ownerID, query, limit)
	if err != nil {
		s.logger.Error("note search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}
	found, err := s.storage.FindNotes(r.Context(), ids)
	if err != nil {
		s.logger.Error("note search hydration failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	byID := make(map[string]*models.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	type searchResult struct {
		Note  *models.Note `json:"note"`
		Score float64      `json:"score"`
	}
	results := make([]searchResult, 0, len(hits))
	for _, h := range hits {
		if note, ok := byID[h.ID]; ok && note.OwnerID == ownerID {
			results = append(results, searchResult{Note: note, Score: scores[h.ID]})
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results, "query": query})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	noteCount, err := s.storage.CountNotes(r.Context())
	if err != nil {
		s.logger.Error("status: count notes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := map[string]interface{}{
		"notes":             noteCount,
		"vector_index_size": s.vectorIndex.Size(),
		"vector_index_type": s.vectorIndex.Type(),
	}
	if s.keywordIndex != nil {
		if kwCount, err := s.keywordIndex.DocCount(); err == nil {
			resp["keyword_index_size"] = kwCount
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondNoteError maps indexer/storage errors for note mutations.
func (s *Server) respondNoteError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, indexer.ErrNotOwner):
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
	default:
		s.logger.Error(logMsg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
