package domain

// LessonStatus is the lifecycle state of a lesson's current attempt cycle.
type LessonStatus string

const (
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
	LessonPaused     LessonStatus = "paused"
)

func (s LessonStatus) IsValid() bool {
	switch s {
	case LessonInProgress, LessonCompleted, LessonPaused:
		return true
	}
	return false
}

// Difficulty of a generated question or lesson.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionType distinguishes multiple-choice from open-ended questions.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "qcm"
	QuestionOpen           QuestionType = "open"
)
