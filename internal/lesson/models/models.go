// Package models holds the lesson, question and answer types.
package models

import (
	"time"

	id "quizdeck/pkg/domain"
)

// Lesson is one quiz over a document. A registered user's lesson carries
// UserID; a guest lesson has a zero UserID and is reachable through its
// document's guest identity.
type Lesson struct {
	ID                 id.LessonID
	UserID             id.UserID
	DocumentID         id.DocumentID
	Title              string
	Status             id.LessonStatus
	Difficulty         id.Difficulty
	TotalQuestions     int
	CompletedQuestions int
	Score              int
	LastScore          int
	TotalAttempts      int
	AverageScore       float64
	LastAccessed       time.Time
	CreatedAt          time.Time
}

// ProgressPercent derives percent-complete from the counters.
func (l *Lesson) ProgressPercent() int {
	if l.TotalQuestions == 0 {
		return 0
	}
	return l.CompletedQuestions * 100 / l.TotalQuestions
}

// Question is one generated question bound to a lesson.
type Question struct {
	ID         id.QuestionID
	DocumentID id.DocumentID
	LessonID   id.LessonID
	Text       string
	Type       id.QuestionType
	Difficulty id.Difficulty
	Position   int
	Options    []AnswerOption
}

// AnswerOption is one choice of a multiple-choice question.
type AnswerOption struct {
	ID         id.AnswerID
	QuestionID id.QuestionID
	Text       string
	IsCorrect  bool
}

// UserAnswer is the latest response of one identity to one question within a
// lesson. Resubmission replaces the row.
type UserAnswer struct {
	Identity         id.Identity
	QuestionID       id.QuestionID
	LessonID         id.LessonID
	SelectedAnswerID id.AnswerID
	OpenAnswer       string
	IsCorrect        bool
	AnsweredAt       time.Time
}

// LessonAttempt is one committed pass over a lesson. Rows are immutable and
// exist only for registered users.
type LessonAttempt struct {
	LessonID      id.LessonID
	AttemptNumber int
	Score         int
	CompletedAt   time.Time
}

// SubmitRequest carries one answer submission.
type SubmitRequest struct {
	LessonID         id.LessonID
	QuestionID       id.QuestionID
	SelectedAnswerID id.AnswerID
	OpenAnswer       string
}

// SubmitResult is what a submission returns to the client.
type SubmitResult struct {
	IsCorrect       bool   `json:"is_correct"`
	ProgressPercent int    `json:"progress_percent"`
	Score           int    `json:"score"`
	Status          string `json:"status"`
	Completed       bool   `json:"completed"`
}

// Overview aggregates one identity's lessons. Study time is estimated at a
// flat 30 minutes per completed lesson; real time tracking is not recorded.
type Overview struct {
	TotalLessons     int     `json:"total_lessons"`
	CompletedLessons int     `json:"completed_lessons"`
	AverageScore     float64 `json:"average_score"`
	TotalStudyTime   int     `json:"total_study_time"`
}

// Summary is the post-quiz result view. Guests get the counts but not the
// per-question detail; CanSeeResults tells the client which screen to show.
type Summary struct {
	LessonID          string `json:"lesson_id"`
	Title             string `json:"lesson_title"`
	IsCompleted       bool   `json:"is_completed"`
	TotalQuestions    int    `json:"total_questions"`
	AnsweredQuestions int    `json:"answered_questions"`
	CorrectAnswers    int    `json:"correct_answers"`
	ScorePercent      int    `json:"score_percentage"`
	CanSeeResults     bool   `json:"can_see_results"`
	Message           string `json:"message,omitempty"`
}

// Stats summarizes a lesson's attempt history.
type Stats struct {
	LessonID      string  `json:"lesson_id"`
	Status        string  `json:"status"`
	Score         int     `json:"score"`
	LastScore     int     `json:"last_score"`
	TotalAttempts int     `json:"total_attempts"`
	AverageScore  float64 `json:"average_score"`
}
