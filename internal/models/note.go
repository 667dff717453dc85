// Package models defines core data structures for notes, conversations, and retrieval.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Note represents a stored note owned by a single user.
type Note struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NoteInput is the input for creating or updating a note.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate ensures the input can be stored. Content may be empty; the title carries
// enough signal for embedding on its own.
func (in *NoteInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	return nil
}

// EmbeddingText returns the text a note's vector is computed from.
func (in *NoteInput) EmbeddingText() string {
	return in.Title + "\n\n" + in.Content
}
