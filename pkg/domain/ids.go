package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Typed identifiers for every aggregate. These are domain primitives: parse
// once at the boundary, pass the typed value everywhere else.

type (
	UserID     string
	GuestID    string
	DocumentID string
	LessonID   string
	QuestionID string
	AnswerID   string
)

func NewUserID() UserID         { return UserID(uuid.NewString()) }
func NewGuestID() GuestID       { return GuestID(uuid.NewString()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.NewString()) }
func NewLessonID() LessonID     { return LessonID(uuid.NewString()) }
func NewQuestionID() QuestionID { return QuestionID(uuid.NewString()) }
func NewAnswerID() AnswerID     { return AnswerID(uuid.NewString()) }

func (i UserID) String() string     { return string(i) }
func (i GuestID) String() string    { return string(i) }
func (i DocumentID) String() string { return string(i) }
func (i LessonID) String() string   { return string(i) }
func (i QuestionID) String() string { return string(i) }
func (i AnswerID) String() string   { return string(i) }

func (i UserID) IsNil() bool     { return i == "" }
func (i GuestID) IsNil() bool    { return i == "" }
func (i DocumentID) IsNil() bool { return i == "" }
func (i LessonID) IsNil() bool   { return i == "" }
func (i QuestionID) IsNil() bool { return i == "" }
func (i AnswerID) IsNil() bool   { return i == "" }

func parseUUID(kind, s string) error {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid %s id: %q", kind, s)
	}
	if parsed == uuid.Nil {
		return fmt.Errorf("nil %s id", kind)
	}
	return nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	if err := parseUUID("user", s); err != nil {
		return "", err
	}
	return UserID(s), nil
}

// ParseLessonID validates and returns a LessonID.
func ParseLessonID(s string) (LessonID, error) {
	if err := parseUUID("lesson", s); err != nil {
		return "", err
	}
	return LessonID(s), nil
}

// ParseDocumentID validates and returns a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	if err := parseUUID("document", s); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}

// ParseQuestionID validates and returns a QuestionID.
func ParseQuestionID(s string) (QuestionID, error) {
	if err := parseUUID("question", s); err != nil {
		return "", err
	}
	return QuestionID(s), nil
}

// ParseAnswerID validates and returns an AnswerID.
func ParseAnswerID(s string) (AnswerID, error) {
	if err := parseUUID("answer", s); err != nil {
		return "", err
	}
	return AnswerID(s), nil
}
