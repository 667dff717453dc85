// Package llm provides streaming chat completion clients.
package llm

import (
	"context"
	"errors"

	"github.com/hyperjump/kioku/internal/models"
)

// ErrUnavailable indicates the completion model failed before or during streaming.
var ErrUnavailable = errors.New("completion model unavailable")

// Stream yields completion text chunks as the model produces them.
// Recv returns io.EOF when the model is done; any other error means the stream
// terminated early and the caller must treat the answer as incomplete.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Completer produces streamed chat completions.
type Completer interface {
	Stream(ctx context.Context, messages []models.ChatMessage) (Stream, error)
	Close() error
}
