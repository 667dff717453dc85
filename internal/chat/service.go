// Package chat implements the retrieval-augmented chat pipeline: a conversation
// is embedded, semantically similar notes are retrieved for the calling user,
// and the model's streamed answer is grounded in those notes.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/auth"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
)

const groundingPreamble = "You're a helpful AI note-taking assistant. " +
	"You answer questions using the user's notes. The related notes for this query are:\n"

// Service answers conversations grounded in the caller's notes.
type Service struct {
	storage       storage.Storage
	embedder      embedding.Embedder
	vectorIndex   vector.VectorIndex
	completer     llm.Completer
	historyWindow int
	topK          int
	logger        *zap.Logger // optional
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for debug output (retrieved note ids, dropped ids, etc.).
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a chat service with the given dependencies.
func NewService(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	completer llm.Completer,
	cfg *config.ChatConfig,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		storage:       storage,
		embedder:      embedder,
		vectorIndex:   vectorIndex,
		completer:     completer,
		historyWindow: cfg.HistoryWindow,
		topK:          cfg.TopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond produces a grounded, streamed answer for the owner's conversation.
// Only the last historyWindow turns feed both the retrieval query and the
// model; older turns are dropped, not summarized. Any failure before the model
// starts streaming is returned with no partial output.
func (s *Service) Respond(ctx context.Context, ownerID string, conv models.Conversation) (llm.Stream, error) {
	if ownerID == "" {
		return nil, auth.ErrUnauthorized
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}

	windowed := conv.Window(s.historyWindow)
	queryText := windowed.QueryText()
	if s.logger != nil {
		s.logger.Debug("chat query", zap.String("owner_id", ownerID),
			zap.String("query", utils.Truncate(queryText, 120)))
	}

	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed conversation: %w", err)
	}

	// The owner filter is a hard security boundary: another user's note must
	// never reach the grounding message, however similar it is.
	matches, err := s.vectorIndex.Query(ctx, queryVec, s.topK,
		map[string]string{indexer.MetaKeyOwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	notes, err := s.hydrate(ctx, matches)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(windowed)+1)
	messages = append(messages, models.ChatMessage{
		Role:    models.RoleSystem,
		Content: GroundingMessage(notes),
	})
	messages = append(messages, windowed...)

	stream, err := s.completer.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("start completion: %w", err)
	}
	return stream, nil
}

// hydrate loads the full notes for matches, preserving similarity order. Ids
// with no record (deleted after indexing, or not yet visible) are dropped
// silently; partial grounding beats failing the whole request.
func (s *Service) hydrate(ctx context.Context, matches []*vector.Match) ([]*models.Note, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	found, err := s.storage.FindNotes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	notes := make([]*models.Note, 0, len(matches))
	for _, m := range matches {
		note, ok := byID[m.ID]
		if !ok {
			if s.logger != nil {
				s.logger.Debug("dropping match with no record", zap.String("id", m.ID))
			}
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// GroundingMessage renders the system grounding prompt for the retrieved notes,
// most similar first. With no notes the preamble is still sent with an empty
// notes section, so the model answers from general knowledge instead of refusing.
func GroundingMessage(notes []*models.Note) string {
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = fmt.Sprintf("Title: %s\n\nContent:\n%s", n.Title, n.Content)
	}
	return groundingPreamble + strings.Join(parts, "\n\n")
}
