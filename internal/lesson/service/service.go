// Package service implements the lesson progress engine.
//
// A lesson tracks one identity's pass over a document's questions. Answering
// always overwrites, progress is recounted from the answer rows rather than
// incremented, and completing the pass commits an immutable attempt whose
// score feeds the lesson's running average. Guests play the same way but
// never produce attempt history rows.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"quizdeck/internal/audit"
	"quizdeck/internal/lesson/models"
	"quizdeck/internal/platform/metrics"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// Store is the persistence surface the engine needs.
type Store interface {
	CreateLesson(ctx context.Context, l *models.Lesson) error
	GetLesson(ctx context.Context, lessonID id.LessonID) (*models.Lesson, error)
	GuestOwner(ctx context.Context, lessonID id.LessonID) (id.GuestID, error)
	SaveProgress(ctx context.Context, l *models.Lesson) error
	ListLessonsForUser(ctx context.Context, userID id.UserID) ([]*models.Lesson, error)
	ListLessonsForGuest(ctx context.Context, guestID id.GuestID) ([]*models.Lesson, error)
	DeleteLesson(ctx context.Context, lessonID id.LessonID) error

	CreateQuestions(ctx context.Context, questions []*models.Question) error
	BindQuestions(ctx context.Context, documentID id.DocumentID, lessonID id.LessonID) (int, error)
	GetQuestion(ctx context.Context, questionID id.QuestionID) (*models.Question, error)
	ListQuestions(ctx context.Context, lessonID id.LessonID) ([]*models.Question, error)

	ReplaceAnswer(ctx context.Context, a *models.UserAnswer) error
	CountAnswers(ctx context.Context, lessonID id.LessonID, identity id.Identity) (answered int, correct int, err error)
	DeleteAnswers(ctx context.Context, lessonID id.LessonID, identity id.Identity) error

	AppendAttempt(ctx context.Context, attempt *models.LessonAttempt) error
	ListAttempts(ctx context.Context, lessonID id.LessonID) ([]*models.LessonAttempt, error)
}

// QuotaGate is the daily attempt allowance check, consumed when a registered
// user opens a lesson to take it.
type QuotaGate interface {
	CanAttempt(ctx context.Context, userID id.UserID) error
	RecordAttempt(ctx context.Context, userID id.UserID) error
}

type Service struct {
	store   Store
	quota   QuotaGate
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithQuotaGate enables attempt gating for registered users.
func WithQuotaGate(q QuotaGate) Option {
	return func(s *Service) { s.quota = q }
}

// WithDB makes every mutation run inside a transaction.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("lesson store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
		audit:  audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateQuestions persists a batch of generated questions with their
// options.
func (s *Service) CreateQuestions(ctx context.Context, questions []*models.Question) error {
	return s.store.CreateQuestions(ctx, questions)
}

// CreateFromDocument builds the lesson over a document's generated questions
// and binds them to it.
func (s *Service) CreateFromDocument(ctx context.Context, identity id.Identity, documentID id.DocumentID, title string, difficulty id.Difficulty) (*models.Lesson, error) {
	if identity.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}
	if !difficulty.IsValid() {
		difficulty = id.DifficultyMedium
	}

	userID, _ := identity.User()
	l := &models.Lesson{
		ID:         id.NewLessonID(),
		UserID:     userID,
		DocumentID: documentID,
		Title:      title,
		Status:     id.LessonInProgress,
		Difficulty: difficulty,
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateLesson(ctx, l); err != nil {
			return err
		}
		bound, err := s.store.BindQuestions(ctx, documentID, l.ID)
		if err != nil {
			return err
		}
		l.TotalQuestions = bound
		return s.store.SaveProgress(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the lesson with its questions. Opening a lesson to take it is
// the attempt action: for registered users it consumes one unit of the daily
// attempt allowance.
func (s *Service) Get(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Lesson, []*models.Question, error) {
	l, err := s.authorize(ctx, identity, lessonID)
	if err != nil {
		return nil, nil, err
	}

	if userID, ok := identity.User(); ok && s.quota != nil {
		if err := s.quota.CanAttempt(ctx, userID); err != nil {
			return nil, nil, err
		}
		if err := s.quota.RecordAttempt(ctx, userID); err != nil {
			return nil, nil, err
		}
	}

	questions, err := s.store.ListQuestions(ctx, lessonID)
	if err != nil {
		return nil, nil, err
	}
	return l, questions, nil
}

// Peek returns the lesson without consuming attempt allowance, for listings
// and stats views.
func (s *Service) Peek(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Lesson, error) {
	return s.authorize(ctx, identity, lessonID)
}

// SubmitAnswer records one response and rolls the lesson state forward.
func (s *Service) SubmitAnswer(ctx context.Context, identity id.Identity, req models.SubmitRequest) (*models.SubmitResult, error) {
	if identity.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	var result *models.SubmitResult
	err := s.runTx(ctx, func(ctx context.Context) error {
		l, err := s.authorize(ctx, identity, req.LessonID)
		if err != nil {
			return err
		}

		question, err := s.store.GetQuestion(ctx, req.QuestionID)
		if err != nil {
			return err
		}
		if question.LessonID != l.ID {
			return dErrors.New(dErrors.CodeNotFound, "question not found in lesson")
		}

		isCorrect, err := grade(question, req)
		if err != nil {
			return err
		}

		if err := s.store.ReplaceAnswer(ctx, &models.UserAnswer{
			Identity:         identity,
			QuestionID:       question.ID,
			LessonID:         l.ID,
			SelectedAnswerID: req.SelectedAnswerID,
			OpenAnswer:       req.OpenAnswer,
			IsCorrect:        isCorrect,
		}); err != nil {
			return err
		}

		answered, correct, err := s.store.CountAnswers(ctx, l.ID, identity)
		if err != nil {
			return err
		}

		l.CompletedQuestions = answered
		newScore := 0
		if l.TotalQuestions > 0 {
			newScore = int(math.Round(float64(correct) / float64(l.TotalQuestions) * 100))
		}
		l.Score = newScore

		completed := l.TotalQuestions > 0 && answered >= l.TotalQuestions
		if completed {
			l.Status = id.LessonCompleted
			l.LastScore = newScore
			l.TotalAttempts++
			l.AverageScore = runningAverage(l.AverageScore, l.TotalAttempts, newScore)
			if identity.IsRegistered() {
				if err := s.store.AppendAttempt(ctx, &models.LessonAttempt{
					LessonID:      l.ID,
					AttemptNumber: l.TotalAttempts,
					Score:         newScore,
				}); err != nil {
					return err
				}
			}
		} else {
			l.Status = id.LessonInProgress
		}

		if err := s.store.SaveProgress(ctx, l); err != nil {
			return err
		}

		result = &models.SubmitResult{
			IsCorrect:       isCorrect,
			ProgressPercent: l.ProgressPercent(),
			Score:           newScore,
			Status:          string(l.Status),
			Completed:       completed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AnswersSubmitted.Inc()
		if result.Completed {
			s.metrics.LessonsCompleted.Inc()
		}
	}
	if result.Completed {
		s.audit.Emit(ctx, audit.Event{
			Subject: identity.String(),
			Action:  audit.ActionLessonCompleted,
			Reason:  fmt.Sprintf("score %d", result.Score),
		})
	}
	return result, nil
}

// Reset starts a fresh pass: answers go, history stats stay.
func (s *Service) Reset(ctx context.Context, identity id.Identity, lessonID id.LessonID) error {
	err := s.runTx(ctx, func(ctx context.Context) error {
		l, err := s.authorize(ctx, identity, lessonID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteAnswers(ctx, lessonID, identity); err != nil {
			return err
		}
		l.CompletedQuestions = 0
		l.Score = 0
		l.Status = id.LessonInProgress
		return s.store.SaveProgress(ctx, l)
	})
	if err != nil {
		return err
	}
	s.audit.Emit(ctx, audit.Event{
		Subject: identity.String(),
		Action:  audit.ActionLessonReset,
	})
	return nil
}

// List returns the identity's lessons, most recently touched first.
func (s *Service) List(ctx context.Context, identity id.Identity) ([]*models.Lesson, error) {
	if userID, ok := identity.User(); ok {
		return s.store.ListLessonsForUser(ctx, userID)
	}
	if guestID, ok := identity.Guest(); ok {
		return s.store.ListLessonsForGuest(ctx, guestID)
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
}

// Attempts returns the committed attempt history of a lesson.
func (s *Service) Attempts(ctx context.Context, identity id.Identity, lessonID id.LessonID) ([]*models.LessonAttempt, error) {
	if _, err := s.authorize(ctx, identity, lessonID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, lessonID)
}

// Stats returns the lesson's scoring summary.
func (s *Service) Stats(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Stats, error) {
	l, err := s.authorize(ctx, identity, lessonID)
	if err != nil {
		return nil, err
	}
	return &models.Stats{
		LessonID:      l.ID.String(),
		Status:        string(l.Status),
		Score:         l.Score,
		LastScore:     l.LastScore,
		TotalAttempts: l.TotalAttempts,
		AverageScore:  l.AverageScore,
	}, nil
}

// Flat per-completed-lesson estimate; actual study time is not tracked.
const studyMinutesPerLesson = 30

// Overview aggregates the identity's lessons into the dashboard numbers.
// The average ignores lessons that were never scored.
func (s *Service) Overview(ctx context.Context, identity id.Identity) (*models.Overview, error) {
	lessons, err := s.List(ctx, identity)
	if err != nil {
		return nil, err
	}

	o := &models.Overview{TotalLessons: len(lessons)}
	var scoreSum, scored int
	for _, l := range lessons {
		if l.Status == id.LessonCompleted {
			o.CompletedLessons++
		}
		if l.Score > 0 {
			scoreSum += l.Score
			scored++
		}
	}
	if scored > 0 {
		o.AverageScore = math.Round(float64(scoreSum)/float64(scored)*10) / 10
	}
	o.TotalStudyTime = o.CompletedLessons * studyMinutesPerLesson
	return o, nil
}

// Summary returns the post-quiz result counts. Guests get the numbers with
// CanSeeResults false and a signup nudge; per-question detail stays behind
// registration.
func (s *Service) Summary(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Summary, error) {
	l, err := s.authorize(ctx, identity, lessonID)
	if err != nil {
		return nil, err
	}
	answered, correct, err := s.store.CountAnswers(ctx, lessonID, identity)
	if err != nil {
		return nil, err
	}

	sum := &models.Summary{
		LessonID:          l.ID.String(),
		Title:             l.Title,
		IsCompleted:       l.Status == id.LessonCompleted,
		TotalQuestions:    l.TotalQuestions,
		AnsweredQuestions: answered,
		CorrectAnswers:    correct,
		CanSeeResults:     identity.IsRegistered(),
	}
	if l.TotalQuestions > 0 {
		sum.ScorePercent = correct * 100 / l.TotalQuestions
	}
	if !sum.CanSeeResults {
		sum.Message = "Quiz finished. Sign up to see your detailed results and keep your progress."
	}
	return sum, nil
}

// Delete removes the lesson with its questions, answers and attempts.
func (s *Service) Delete(ctx context.Context, identity id.Identity, lessonID id.LessonID) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorize(ctx, identity, lessonID); err != nil {
			return err
		}
		return s.store.DeleteLesson(ctx, lessonID)
	})
}

// authorize loads the lesson and verifies the identity owns it. A lesson the
// caller does not own reads as absent.
func (s *Service) authorize(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Lesson, error) {
	l, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if userID, ok := identity.User(); ok {
		if l.UserID != userID {
			return nil, dErrors.New(dErrors.CodeNotFound, "lesson not found")
		}
		return l, nil
	}
	if guestID, ok := identity.Guest(); ok {
		if !l.UserID.IsNil() {
			return nil, dErrors.New(dErrors.CodeNotFound, "lesson not found")
		}
		owner, err := s.store.GuestOwner(ctx, lessonID)
		if err != nil {
			return nil, err
		}
		if owner != guestID {
			return nil, dErrors.New(dErrors.CodeNotFound, "lesson not found")
		}
		return l, nil
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
}

// grade determines correctness of a submission against its question.
func grade(question *models.Question, req models.SubmitRequest) (bool, error) {
	if question.Type == id.QuestionOpen {
		// Open-ended answers are accepted as correct; there is no semantic
		// grading in this engine.
		return true, nil
	}
	if req.SelectedAnswerID.IsNil() {
		return false, dErrors.New(dErrors.CodeBadRequest, "an answer selection is required")
	}
	for _, option := range question.Options {
		if option.ID == req.SelectedAnswerID {
			return option.IsCorrect, nil
		}
	}
	return false, dErrors.New(dErrors.CodeNotFound, "answer option not found")
}

// runningAverage folds one more score into the mean incrementally.
func runningAverage(avg float64, attempts int, newScore int) float64 {
	if attempts <= 1 {
		return float64(newScore)
	}
	return ((avg * float64(attempts-1)) + float64(newScore)) / float64(attempts)
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}
