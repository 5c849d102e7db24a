package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "quizdeck/pkg/domainerrors"
)

func TestParseQuestions(t *testing.T) {
	payload := `{"questions":[{"question_text":"What is photosynthesis?","difficulty":"easy","answers":[` +
		`{"text":"Energy from light","is_correct":true},` +
		`{"text":"Cell division","is_correct":false},` +
		`{"text":"Respiration","is_correct":false},` +
		`{"text":"Osmosis","is_correct":false}]}]}`

	t.Run("plain JSON", func(t *testing.T) {
		questions, err := ParseQuestions(payload)
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, "What is photosynthesis?", questions[0].QuestionText)
		assert.Len(t, questions[0].Answers, 4)
		assert.True(t, questions[0].Answers[0].IsCorrect)
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		questions, err := ParseQuestions("```json\n" + payload + "\n```")
		require.NoError(t, err)
		assert.Len(t, questions, 1)
	})

	t.Run("invalid JSON is an unavailable error", func(t *testing.T) {
		_, err := ParseQuestions("sorry, I cannot do that")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("empty question list is rejected", func(t *testing.T) {
		_, err := ParseQuestions(`{"questions":[]}`)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
