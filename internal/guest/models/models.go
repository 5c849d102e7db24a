// Package models holds the guest identity types.
package models

import (
	"time"

	id "quizdeck/pkg/domain"
)

// GuestIdentity is one anonymous visitor. An origin address maps to at most
// one identity for its whole lifetime; the token exists so the same visitor
// can be recognized when their address changes.
type GuestIdentity struct {
	ID               id.GuestID
	OriginAddress    string
	Token            string
	DocumentsCreated int
	IsBlocked        bool
	TransferredTo    id.UserID
	TransferredAt    time.Time
	LastActivity     time.Time
	CreatedAt        time.Time
}

// Transferred reports whether this identity's work has already been moved
// onto an account.
func (g *GuestIdentity) Transferred() bool {
	return !g.TransferredTo.IsNil()
}

// TransferredLesson is the client-facing view of one lesson a transfer
// moved, shown on the "your work is now yours" screen.
type TransferredLesson struct {
	ID     id.LessonID `json:"id"`
	Title  string      `json:"title"`
	Score  int         `json:"score"`
	Status string      `json:"status"`
}

// TransferResult describes what a completed transfer moved. Lessons carries
// the full views so the client can display them without a follow-up list
// call.
type TransferResult struct {
	GuestID     id.GuestID          `json:"-"`
	UserID      id.UserID           `json:"-"`
	DocumentIDs []id.DocumentID     `json:"document_ids"`
	Documents   int                 `json:"documents"`
	Lessons     []TransferredLesson `json:"transferred_lessons"`
	Answers     int                 `json:"answers"`
}
