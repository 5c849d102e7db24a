package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"quizdeck/internal/lesson/models"
	lessonStore "quizdeck/internal/lesson/store"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

type LessonServiceSuite struct {
	suite.Suite
	store   *lessonStore.InMemoryStore
	service *Service
}

func TestLessonServiceSuite(t *testing.T) {
	suite.Run(t, new(LessonServiceSuite))
}

func (s *LessonServiceSuite) SetupTest() {
	s.store = lessonStore.NewInMemoryStore()

	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)
}

// buildLesson seeds a lesson with n multiple-choice questions, each with one
// correct and one wrong option, and returns the lesson plus its questions.
func (s *LessonServiceSuite) buildLesson(identity id.Identity, n int) (*models.Lesson, []*models.Question) {
	ctx := context.Background()
	docID := id.NewDocumentID()

	questions := make([]*models.Question, 0, n)
	for i := 0; i < n; i++ {
		q := &models.Question{
			ID:         id.NewQuestionID(),
			DocumentID: docID,
			Text:       "q",
			Type:       id.QuestionMultipleChoice,
			Difficulty: id.DifficultyMedium,
			Position:   i,
			Options: []models.AnswerOption{
				{ID: id.NewAnswerID(), Text: "right", IsCorrect: true},
				{ID: id.NewAnswerID(), Text: "wrong", IsCorrect: false},
			},
		}
		questions = append(questions, q)
	}
	s.Require().NoError(s.store.CreateQuestions(ctx, questions))

	l, err := s.service.CreateFromDocument(ctx, identity, docID, "seeded", id.DifficultyMedium)
	s.Require().NoError(err)
	s.Require().Equal(n, l.TotalQuestions)

	if guestID, ok := identity.Guest(); ok {
		s.store.SetGuestOwner(l.ID, guestID)
	}

	// Re-read questions so they carry the bound lesson id.
	bound, err := s.store.ListQuestions(ctx, l.ID)
	s.Require().NoError(err)
	s.Require().Len(bound, n)
	return l, bound
}

// answer submits the correct or the wrong option for a question.
func (s *LessonServiceSuite) answer(identity id.Identity, lessonID id.LessonID, q *models.Question, correct bool) *models.SubmitResult {
	var selected id.AnswerID
	for _, option := range q.Options {
		if option.IsCorrect == correct {
			selected = option.ID
		}
	}
	result, err := s.service.SubmitAnswer(context.Background(), identity, models.SubmitRequest{
		LessonID:         lessonID,
		QuestionID:       q.ID,
		SelectedAnswerID: selected,
	})
	s.Require().NoError(err)
	return result
}

// completeWithScore resets the lesson and answers all questions so the pass
// scores exactly `correctCount` out of len(questions).
func (s *LessonServiceSuite) completePass(identity id.Identity, lessonID id.LessonID, questions []*models.Question, correctCount int) *models.SubmitResult {
	var last *models.SubmitResult
	for i, q := range questions {
		last = s.answer(identity, lessonID, q, i < correctCount)
	}
	return last
}

// =============================================================================
// Scoring a Single Pass
// =============================================================================

func (s *LessonServiceSuite) TestFourQuestionPass() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, questions := s.buildLesson(identity, 4)
	ctx := context.Background()

	// Three distinct answers, two of them correct.
	s.answer(identity, l.ID, questions[0], true)
	s.answer(identity, l.ID, questions[1], true)
	result := s.answer(identity, l.ID, questions[2], false)

	s.Equal(50, result.Score)
	s.Equal(75, result.ProgressPercent)
	s.False(result.Completed)
	s.Equal(string(id.LessonInProgress), result.Status)

	current, err := s.service.Peek(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Equal(3, current.CompletedQuestions)
	s.Equal(0, current.TotalAttempts)

	// Fourth answer, correct, completes the pass at 75.
	result = s.answer(identity, l.ID, questions[3], true)
	s.True(result.Completed)
	s.Equal(75, result.Score)
	s.Equal(string(id.LessonCompleted), result.Status)

	current, err = s.service.Peek(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Equal(1, current.TotalAttempts)
	s.Equal(75, current.LastScore)
	s.InDelta(75.0, current.AverageScore, 1e-9)

	attempts, err := s.service.Attempts(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(1, attempts[0].AttemptNumber)
	s.Equal(75, attempts[0].Score)
}

func (s *LessonServiceSuite) TestResubmissionOverwrites() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, questions := s.buildLesson(identity, 2)

	result := s.answer(identity, l.ID, questions[0], false)
	s.Equal(0, result.Score)
	s.Equal(50, result.ProgressPercent)

	// Redo the same question correctly: still one answered question, score
	// reflects the latest response only.
	result = s.answer(identity, l.ID, questions[0], true)
	s.Equal(50, result.Score)
	s.Equal(50, result.ProgressPercent)
	s.False(result.Completed)
}

func (s *LessonServiceSuite) TestSubmitValidation() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, questions := s.buildLesson(identity, 1)
	ctx := context.Background()

	s.Run("question from another lesson reads as absent", func() {
		other, _ := s.buildLesson(identity, 1)
		_, err := s.service.SubmitAnswer(ctx, identity, models.SubmitRequest{
			LessonID:         other.ID,
			QuestionID:       questions[0].ID,
			SelectedAnswerID: questions[0].Options[0].ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown answer option is rejected", func() {
		_, err := s.service.SubmitAnswer(ctx, identity, models.SubmitRequest{
			LessonID:         l.ID,
			QuestionID:       questions[0].ID,
			SelectedAnswerID: id.NewAnswerID(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("someone else's lesson reads as absent", func() {
		stranger := id.RegisteredIdentity(id.NewUserID())
		_, err := s.service.SubmitAnswer(ctx, stranger, models.SubmitRequest{
			LessonID:         l.ID,
			QuestionID:       questions[0].ID,
			SelectedAnswerID: questions[0].Options[0].ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LessonServiceSuite) TestOpenQuestionsAlwaysCorrect() {
	identity := id.RegisteredIdentity(id.NewUserID())
	ctx := context.Background()
	docID := id.NewDocumentID()

	q := &models.Question{
		ID:         id.NewQuestionID(),
		DocumentID: docID,
		Text:       "explain",
		Type:       id.QuestionOpen,
	}
	s.Require().NoError(s.store.CreateQuestions(ctx, []*models.Question{q}))

	l, err := s.service.CreateFromDocument(ctx, identity, docID, "open", id.DifficultyEasy)
	s.Require().NoError(err)

	result, err := s.service.SubmitAnswer(ctx, identity, models.SubmitRequest{
		LessonID:   l.ID,
		QuestionID: q.ID,
		OpenAnswer: "because",
	})
	s.Require().NoError(err)
	s.True(result.IsCorrect)
	s.Equal(100, result.Score)
	s.True(result.Completed)
}

// =============================================================================
// Attempt History and Averaging
// =============================================================================

func (s *LessonServiceSuite) TestRunningAverage() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, questions := s.buildLesson(identity, 5)
	ctx := context.Background()

	// Three passes scoring 80, 60, 100. After each commit the average must
	// equal the mean of all scores so far.
	expectations := []struct {
		correct int
		score   int
		average float64
	}{
		{4, 80, 80},
		{3, 60, 70},
		{5, 100, 80},
	}
	for i, want := range expectations {
		if i > 0 {
			s.Require().NoError(s.service.Reset(ctx, identity, l.ID))
		}
		result := s.completePass(identity, l.ID, questions, want.correct)
		s.True(result.Completed)
		s.Equal(want.score, result.Score)

		current, err := s.service.Peek(ctx, identity, l.ID)
		s.Require().NoError(err)
		s.Equal(i+1, current.TotalAttempts)
		s.Equal(want.score, current.LastScore)
		s.InDelta(want.average, current.AverageScore, 1e-9)
	}

	attempts, err := s.service.Attempts(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 3)
	for i, attempt := range attempts {
		s.Equal(i+1, attempt.AttemptNumber)
	}
}

func (s *LessonServiceSuite) TestResetPreservesHistory() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, questions := s.buildLesson(identity, 2)
	ctx := context.Background()

	s.completePass(identity, l.ID, questions, 2)

	s.Require().NoError(s.service.Reset(ctx, identity, l.ID))

	current, err := s.service.Peek(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Equal(id.LessonInProgress, current.Status)
	s.Equal(0, current.CompletedQuestions)
	s.Equal(0, current.Score)
	s.Equal(100, current.LastScore)
	s.Equal(1, current.TotalAttempts)
	s.InDelta(100.0, current.AverageScore, 1e-9)

	// The attempt rows survive the reset.
	attempts, err := s.service.Attempts(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Len(attempts, 1)
}

func (s *LessonServiceSuite) TestGuestCompletionLeavesNoAttemptRow() {
	guest := id.GuestIdentity(id.NewGuestID())
	l, questions := s.buildLesson(guest, 2)
	ctx := context.Background()

	result := s.completePass(guest, l.ID, questions, 1)
	s.True(result.Completed)
	s.Equal(50, result.Score)

	current, err := s.service.Peek(ctx, guest, l.ID)
	s.Require().NoError(err)
	s.Equal(1, current.TotalAttempts)
	s.Equal(50, current.LastScore)

	attempts, err := s.service.Attempts(ctx, guest, l.ID)
	s.Require().NoError(err)
	s.Empty(attempts)
}

// =============================================================================
// Attempt Gating
// =============================================================================

type fakeQuota struct {
	denied   bool
	recorded int
}

func (f *fakeQuota) CanAttempt(context.Context, id.UserID) error {
	if f.denied {
		return dErrors.New(dErrors.CodeQuotaExceeded, "daily limit reached")
	}
	return nil
}

func (f *fakeQuota) RecordAttempt(context.Context, id.UserID) error {
	f.recorded++
	return nil
}

func (s *LessonServiceSuite) TestGetConsumesAttemptAllowance() {
	gate := &fakeQuota{}
	svc, err := New(s.store, WithQuotaGate(gate))
	s.Require().NoError(err)

	identity := id.RegisteredIdentity(id.NewUserID())
	l, _ := s.buildLesson(identity, 1)
	ctx := context.Background()

	_, questions, err := svc.Get(ctx, identity, l.ID)
	s.Require().NoError(err)
	s.Len(questions, 1)
	s.Equal(1, gate.recorded)

	gate.denied = true
	_, _, err = svc.Get(ctx, identity, l.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
	s.Equal(1, gate.recorded)
}

func (s *LessonServiceSuite) TestGuestGetSkipsQuota() {
	gate := &fakeQuota{}
	svc, err := New(s.store, WithQuotaGate(gate))
	s.Require().NoError(err)

	guest := id.GuestIdentity(id.NewGuestID())
	l, _ := s.buildLesson(guest, 1)

	_, _, err = svc.Get(context.Background(), guest, l.ID)
	s.Require().NoError(err)
	s.Equal(0, gate.recorded)
}

// =============================================================================
// Listing and Deletion
// =============================================================================

func (s *LessonServiceSuite) TestListAndDelete() {
	identity := id.RegisteredIdentity(id.NewUserID())
	l, _ := s.buildLesson(identity, 1)
	ctx := context.Background()

	lessons, err := s.service.List(ctx, identity)
	s.Require().NoError(err)
	s.Require().Len(lessons, 1)
	s.Equal(l.ID, lessons[0].ID)

	s.Require().NoError(s.service.Delete(ctx, identity, l.ID))

	lessons, err = s.service.List(ctx, identity)
	s.Require().NoError(err)
	s.Empty(lessons)

	_, err = s.service.Peek(ctx, identity, l.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Overview and Summary
// =============================================================================

func (s *LessonServiceSuite) TestOverview() {
	identity := id.RegisteredIdentity(id.NewUserID())
	ctx := context.Background()

	s.Run("empty identity has zeroed overview", func() {
		o, err := s.service.Overview(ctx, identity)
		s.Require().NoError(err)
		s.Equal(0, o.TotalLessons)
		s.Equal(0.0, o.AverageScore)
		s.Equal(0, o.TotalStudyTime)
	})

	first, firstQs := s.buildLesson(identity, 2)
	s.completePass(identity, first.ID, firstQs, 2) // 100
	second, secondQs := s.buildLesson(identity, 2)
	s.completePass(identity, second.ID, secondQs, 1) // 50
	s.buildLesson(identity, 2)                       // untouched, unscored

	s.Run("counts completed lessons and averages scored ones", func() {
		o, err := s.service.Overview(ctx, identity)
		s.Require().NoError(err)
		s.Equal(3, o.TotalLessons)
		s.Equal(2, o.CompletedLessons)
		s.Equal(75.0, o.AverageScore, "the unscored lesson does not drag the mean")
		s.Equal(2*studyMinutesPerLesson, o.TotalStudyTime)
	})
}

func (s *LessonServiceSuite) TestSummary() {
	ctx := context.Background()

	s.Run("registered caller sees full results", func() {
		identity := id.RegisteredIdentity(id.NewUserID())
		l, questions := s.buildLesson(identity, 4)
		s.answer(identity, l.ID, questions[0], true)
		s.answer(identity, l.ID, questions[1], false)

		sum, err := s.service.Summary(ctx, identity, l.ID)
		s.Require().NoError(err)
		s.False(sum.IsCompleted)
		s.Equal(4, sum.TotalQuestions)
		s.Equal(2, sum.AnsweredQuestions)
		s.Equal(1, sum.CorrectAnswers)
		s.Equal(25, sum.ScorePercent)
		s.True(sum.CanSeeResults)
		s.Empty(sum.Message)
	})

	s.Run("guest gets the teaser", func() {
		guest := id.GuestIdentity(id.NewGuestID())
		l, questions := s.buildLesson(guest, 2)
		s.completePass(guest, l.ID, questions, 2)

		sum, err := s.service.Summary(ctx, guest, l.ID)
		s.Require().NoError(err)
		s.True(sum.IsCompleted)
		s.Equal(100, sum.ScorePercent)
		s.False(sum.CanSeeResults)
		s.NotEmpty(sum.Message)
	})

	s.Run("someone else's lesson reads as absent", func() {
		owner := id.RegisteredIdentity(id.NewUserID())
		l, _ := s.buildLesson(owner, 1)

		_, err := s.service.Summary(ctx, id.RegisteredIdentity(id.NewUserID()), l.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
