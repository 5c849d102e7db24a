// Package service implements the daily allowance tracker for registered
// users.
//
// Both allowances (document creation and lesson attempts) share the same
// window mechanics: a counter plus the date it was last touched. On every
// check the window is rolled forward first; a stale date zeroes the counter
// and the zeroed state is persisted immediately, even when the request is
// then denied. A user who burns the allowance at 23:59 is whole again at
// 00:00 regardless of whether anything else happens in between.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quizdeck/internal/audit"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/quota/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	GetUsage(ctx context.Context, userID id.UserID) (*models.UserUsage, error)
	SaveCreationWindow(ctx context.Context, userID id.UserID, count int, date time.Time) error
	SaveAttemptWindow(ctx context.Context, userID id.UserID, count int, date time.Time) error
}

type Service struct {
	store   Store
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
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

// CanCreate reports whether the user may create another document today.
// The window roll, if due, is persisted before the answer is computed.
func (s *Service) CanCreate(ctx context.Context, userID id.UserID) error {
	return s.check(ctx, userID, creationWindow)
}

// RecordCreation consumes one unit of today's creation allowance.
func (s *Service) RecordCreation(ctx context.Context, userID id.UserID) error {
	return s.record(ctx, userID, creationWindow)
}

// CanAttempt reports whether the user may start another lesson attempt
// today.
func (s *Service) CanAttempt(ctx context.Context, userID id.UserID) error {
	return s.check(ctx, userID, attemptWindow)
}

// RecordAttempt consumes one unit of today's attempt allowance.
func (s *Service) RecordAttempt(ctx context.Context, userID id.UserID) error {
	return s.record(ctx, userID, attemptWindow)
}

// Snapshot returns the user's remaining allowances after rolling both
// windows forward.
func (s *Service) Snapshot(ctx context.Context, userID id.UserID) (*models.Snapshot, error) {
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := dateOnly(requestcontext.Now(ctx))
	limits := id.LimitsFor(usage.Role())

	createdCount := usage.CreatedCount
	if !sameDay(usage.CreatedDate, today) {
		createdCount = 0
	}
	attemptCount := usage.AttemptCount
	if !sameDay(usage.AttemptDate, today) {
		attemptCount = 0
	}

	return &models.Snapshot{
		Role:              string(usage.Role()),
		QuizzesUsedToday:  createdCount,
		QuizzesPerDay:     limits.MaxQuizzesPerDay,
		AttemptsUsedToday: attemptCount,
		AttemptsPerDay:    limits.MaxAttemptsPerDay,
		Unlimited:         limits.MaxQuizzesPerDay == id.Unlimited,
	}, nil
}

// window abstracts the two allowances over their mechanics.
type window struct {
	name   string
	action string
	count  func(*models.UserUsage) int
	date   func(*models.UserUsage) time.Time
	cap    func(id.RoleLimits) int
	save   func(Store, context.Context, id.UserID, int, time.Time) error
}

var creationWindow = window{
	name:   "document_creation",
	action: "create another quiz",
	count:  func(u *models.UserUsage) int { return u.CreatedCount },
	date:   func(u *models.UserUsage) time.Time { return u.CreatedDate },
	cap:    func(l id.RoleLimits) int { return l.MaxQuizzesPerDay },
	save: func(st Store, ctx context.Context, userID id.UserID, count int, date time.Time) error {
		return st.SaveCreationWindow(ctx, userID, count, date)
	},
}

var attemptWindow = window{
	name:   "lesson_attempt",
	action: "start another attempt",
	count:  func(u *models.UserUsage) int { return u.AttemptCount },
	date:   func(u *models.UserUsage) time.Time { return u.AttemptDate },
	cap:    func(l id.RoleLimits) int { return l.MaxAttemptsPerDay },
	save: func(st Store, ctx context.Context, userID id.UserID, count int, date time.Time) error {
		return st.SaveAttemptWindow(ctx, userID, count, date)
	},
}

func (s *Service) check(ctx context.Context, userID id.UserID, w window) error {
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return err
	}
	limit := w.cap(id.LimitsFor(usage.Role()))
	if limit == id.Unlimited {
		return nil
	}

	count, err := s.rollWindow(ctx, userID, usage, w)
	if err != nil {
		return err
	}
	if count >= limit {
		s.metrics.IncQuotaDenial(w.name)
		s.audit.Emit(ctx, audit.Event{
			Subject: id.RegisteredIdentity(userID).String(),
			Action:  audit.ActionQuotaDenied,
			Reason:  w.name,
		})
		s.logger.InfoContext(ctx, "daily allowance exhausted",
			"user_id", userID.String(),
			"window", w.name,
			"used", count,
			"limit", limit,
		)
		return dErrors.WithAction(
			dErrors.New(dErrors.CodeQuotaExceeded,
				fmt.Sprintf("daily limit reached, upgrade to premium to %s", w.action)),
			dErrors.ActionUpgradeRequired,
		)
	}
	return nil
}

// record consumes one unit. The counter is persisted even when the role's
// cap is Unlimited so Snapshot reports real usage for every tier.
func (s *Service) record(ctx context.Context, userID id.UserID, w window) error {
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return err
	}
	count, err := s.rollWindow(ctx, userID, usage, w)
	if err != nil {
		return err
	}
	today := dateOnly(requestcontext.Now(ctx))
	return w.save(s.store, ctx, userID, count+1, today)
}

// rollWindow zeroes a stale counter and persists the zeroed state. It
// returns the counter valid for today.
func (s *Service) rollWindow(ctx context.Context, userID id.UserID, usage *models.UserUsage, w window) (int, error) {
	today := dateOnly(requestcontext.Now(ctx))
	if sameDay(w.date(usage), today) {
		return w.count(usage), nil
	}
	if err := w.save(s.store, ctx, userID, 0, today); err != nil {
		return 0, err
	}
	return 0, nil
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
