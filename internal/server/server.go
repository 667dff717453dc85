// Package server provides the HTTP API for Kioku.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/auth"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// Responder produces grounded chat streams.
type Responder interface {
	Respond(ctx context.Context, ownerID string, conv models.Conversation) (llm.Stream, error)
}

// NoteIndexer manages note records together with their index entries.
type NoteIndexer interface {
	IndexNote(ctx context.Context, ownerID string, input *models.NoteInput) (*models.Note, error)
	UpdateNote(ctx context.Context, ownerID, id string, input *models.NoteInput) (*models.Note, error)
	DeleteNote(ctx context.Context, ownerID, id string) error
}

// Server is the HTTP server for the Kioku API.
type Server struct {
	chat          Responder
	indexer       NoteIndexer
	storage       storage.Storage
	keywordIndex  keyword.KeywordIndex // optional
	vectorIndex   vector.VectorIndex
	authenticator auth.Authenticator
	config        *config.ServerConfig
	logger        *zap.Logger
	server        *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	chat Responder,
	idx NoteIndexer,
	storage storage.Storage,
	keywordIndex keyword.KeywordIndex,
	vectorIndex vector.VectorIndex,
	authenticator auth.Authenticator,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		chat:          chat,
		indexer:       idx,
		storage:       storage,
		keywordIndex:  keywordIndex,
		vectorIndex:   vectorIndex,
		authenticator: authenticator,
		config:        cfg,
		logger:        logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// No timeout middleware: the chat route streams for as long as the model talks.
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.authenticator))

		r.Post("/chat", s.handleChat)

		r.Post("/notes", s.handleCreateNote)
		r.Get("/notes", s.handleListNotes)
		r.Get("/notes/search", s.handleSearchNotes)
		r.Get("/notes/{id}", s.handleGetNote)
		r.Put("/notes/{id}", s.handleUpdateNote)
		r.Delete("/notes/{id}", s.handleDeleteNote)

		r.Get("/status", s.handleStatus)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
