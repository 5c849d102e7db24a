// Package models holds the uploaded document types.
package models

import (
	"time"

	id "quizdeck/pkg/domain"
)

// Document is one uploaded source a quiz was generated from. Exactly one of
// UserID/GuestID is set.
type Document struct {
	ID        id.DocumentID
	UserID    id.UserID
	GuestID   id.GuestID
	Title     string
	FileType  string
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the owner as a tagged identity.
func (d *Document) Identity() id.Identity {
	if !d.UserID.IsNil() {
		return id.RegisteredIdentity(d.UserID)
	}
	return id.GuestIdentity(d.GuestID)
}

// CreateRequest is the upload payload. Content arrives base64-encoded.
type CreateRequest struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	FileType      string `json:"file_type"`
	QuestionCount int    `json:"question_count"`
	Difficulty    string `json:"difficulty"`
	Instructions  string `json:"instructions"`
}

// View is the public document shape.
type View struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FileType  string    `json:"file_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func ViewOf(d *Document) View {
	return View{
		ID:        d.ID.String(),
		Title:     d.Title,
		FileType:  d.FileType,
		SizeBytes: d.SizeBytes,
		CreatedAt: d.CreatedAt,
	}
}
