// Package llm provides the OpenAI implementation of Completer.
package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/models"
)

// OpenAICompleter streams chat completions from the OpenAI API.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates a completer from cfg. A custom BaseURL can point
// at any OpenAI-compatible endpoint.
func NewOpenAICompleter(cfg *config.OpenAIConfig) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeoutSecs > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.RequestTimeoutSecs)*time.Second))
	}
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  cfg.ChatModel,
	}
}

// Stream starts a streaming completion for messages. Cancelling ctx cancels the
// upstream request, so a disconnected client stops token generation.
func (c *OpenAICompleter) Stream(ctx context.Context, messages []models.ChatMessage) (Stream, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toMessageParams(messages),
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &openaiStream{stream: stream}, nil
}

// Close is a no-op for OpenAICompleter.
func (c *OpenAICompleter) Close() error {
	return nil
}

func toMessageParams(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

// Recv returns the next non-empty text delta, io.EOF at the end of the stream,
// or a wrapped ErrUnavailable if the model fails mid-stream.
func (s *openaiStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return "", io.EOF
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
