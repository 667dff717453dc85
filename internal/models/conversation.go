package models

import (
	"fmt"
	"strings"
)

// Roles accepted in a conversation turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of turns, oldest first.
type Conversation []ChatMessage

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Messages Conversation `json:"messages"`
}

// Window returns the last k turns. When k <= 0 or the conversation is shorter
// than k, the conversation is returned unchanged.
func (c Conversation) Window(k int) Conversation {
	if k <= 0 || len(c) <= k {
		return c
	}
	return c[len(c)-k:]
}

// QueryText joins the turn contents with newlines in chronological order.
// The result is used as the retrieval query for the conversation.
func (c Conversation) QueryText() string {
	parts := make([]string, len(c))
	for i, m := range c {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// Validate checks that the conversation is non-empty and every turn carries a known role.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("conversation cannot be empty")
	}
	for i, m := range c {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("turn %d has unknown role %q", i, m.Role)
		}
	}
	return nil
}
