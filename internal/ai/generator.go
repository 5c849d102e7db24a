// Package ai defines the question generation boundary and its OpenAI-backed
// implementation.
package ai

import (
	"context"

	id "quizdeck/pkg/domain"
)

// GeneratedAnswer is one option of a generated question.
type GeneratedAnswer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// GeneratedQuestion is one question as produced by the generator, before it
// is given identifiers and persisted.
type GeneratedQuestion struct {
	QuestionText string            `json:"question_text"`
	Difficulty   string            `json:"difficulty"`
	Answers      []GeneratedAnswer `json:"answers"`
}

// Request describes what to generate questions from.
type Request struct {
	Title          string
	Content        []byte
	ContentType    string
	QuestionCount  int
	Difficulty     id.Difficulty
	EducationLevel string
	Instructions   string
}

// Generator produces quiz questions from a document. Implementations call an
// external model; the fake in tests returns canned questions.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]GeneratedQuestion, error)
}
