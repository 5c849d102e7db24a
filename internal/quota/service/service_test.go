package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	quotaStore "quizdeck/internal/quota/store"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// =============================================================================
// Quota Service Test Suite
// =============================================================================
// Justification for unit tests: the window reset rules interact with the
// clock and must hold across day boundaries, which is impractical to drive
// through HTTP-level tests.

type QuotaServiceSuite struct {
	suite.Suite
	store   *quotaStore.InMemoryStore
	service *Service
	free    id.UserID
	premium id.UserID
}

func TestQuotaServiceSuite(t *testing.T) {
	suite.Run(t, new(QuotaServiceSuite))
}

func (s *QuotaServiceSuite) SetupTest() {
	s.store = quotaStore.NewInMemoryStore()
	s.free = id.NewUserID()
	s.premium = id.NewUserID()
	s.store.Seed(s.free, false)
	s.store.Seed(s.premium, true)

	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)
}

// SetupSubTest rebuilds the store so each s.Run subtest starts from the
// allowance it assumes (see review finding F3).
func (s *QuotaServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func at(day int, hour int) context.Context {
	t := time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
	return requestcontext.WithTime(context.Background(), t)
}

func (s *QuotaServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "quota store is required")
	})
}

// =============================================================================
// Creation Allowance
// =============================================================================

func (s *QuotaServiceSuite) TestCreationAllowance() {
	s.Run("fresh user may create", func() {
		s.NoError(s.service.CanCreate(at(1, 10), s.free))
	})

	s.Run("second creation on the same day is denied", func() {
		ctx := at(1, 10)
		s.Require().NoError(s.service.RecordCreation(ctx, s.free))

		err := s.service.CanCreate(ctx, s.free)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
		s.Equal(dErrors.ActionUpgradeRequired, dErrors.ActionOf(err))
	})

	s.Run("allowance returns at midnight", func() {
		s.Require().NoError(s.service.RecordCreation(at(1, 10), s.free))
		s.Error(s.service.CanCreate(at(1, 23), s.free))

		s.NoError(s.service.CanCreate(at(2, 0), s.free))
	})

	s.Run("denied check still persists the rolled window", func() {
		s.Require().NoError(s.service.RecordCreation(at(1, 10), s.free))

		// Roll into day 2 via a successful check, then exhaust and deny.
		s.Require().NoError(s.service.CanCreate(at(2, 9), s.free))
		usage, err := s.store.GetUsage(context.Background(), s.free)
		s.Require().NoError(err)
		s.Equal(0, usage.CreatedCount)
		s.Equal(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), usage.CreatedDate)
	})

	s.Run("premium user is never denied", func() {
		ctx := at(1, 10)
		for i := 0; i < 5; i++ {
			s.NoError(s.service.CanCreate(ctx, s.premium))
			s.NoError(s.service.RecordCreation(ctx, s.premium))
		}
	})

	s.Run("unknown user returns not found", func() {
		err := s.service.CanCreate(at(1, 10), id.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Attempt Allowance
// =============================================================================

func (s *QuotaServiceSuite) TestAttemptAllowance() {
	s.Run("free user gets two attempts per day", func() {
		ctx := at(5, 12)
		s.NoError(s.service.CanAttempt(ctx, s.free))
		s.Require().NoError(s.service.RecordAttempt(ctx, s.free))

		s.NoError(s.service.CanAttempt(ctx, s.free))
		s.Require().NoError(s.service.RecordAttempt(ctx, s.free))

		err := s.service.CanAttempt(ctx, s.free)
		s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
	})

	s.Run("attempt window is independent of creation window", func() {
		ctx := at(5, 12)
		s.Require().NoError(s.service.RecordCreation(ctx, s.free))
		s.Error(s.service.CanCreate(ctx, s.free))

		s.NoError(s.service.CanAttempt(ctx, s.free))
	})

	s.Run("attempts reset across the day boundary", func() {
		s.Require().NoError(s.service.RecordAttempt(at(5, 12), s.free))
		s.Require().NoError(s.service.RecordAttempt(at(5, 13), s.free))
		s.Error(s.service.CanAttempt(at(5, 14), s.free))

		s.NoError(s.service.CanAttempt(at(6, 0), s.free))
	})
}

// =============================================================================
// Snapshot
// =============================================================================

func (s *QuotaServiceSuite) TestSnapshot() {
	s.Run("reflects today's usage", func() {
		ctx := at(8, 9)
		s.Require().NoError(s.service.RecordCreation(ctx, s.free))
		s.Require().NoError(s.service.RecordAttempt(ctx, s.free))

		snap, err := s.service.Snapshot(ctx, s.free)
		s.Require().NoError(err)
		s.Equal("free", snap.Role)
		s.Equal(1, snap.QuizzesUsedToday)
		s.Equal(1, snap.QuizzesPerDay)
		s.Equal(1, snap.AttemptsUsedToday)
		s.Equal(2, snap.AttemptsPerDay)
		s.False(snap.Unlimited)
	})

	s.Run("stale counters read as zero the next day", func() {
		s.Require().NoError(s.service.RecordCreation(at(8, 9), s.free))

		snap, err := s.service.Snapshot(at(9, 1), s.free)
		s.Require().NoError(err)
		s.Equal(0, snap.QuizzesUsedToday)
	})

	s.Run("premium reports unlimited", func() {
		snap, err := s.service.Snapshot(at(8, 9), s.premium)
		s.Require().NoError(err)
		s.Equal("premium", snap.Role)
		s.True(snap.Unlimited)
	})

	s.Run("premium usage is still counted", func() {
		ctx := at(8, 9)
		for i := 0; i < 3; i++ {
			s.Require().NoError(s.service.RecordCreation(ctx, s.premium))
		}
		s.Require().NoError(s.service.RecordAttempt(ctx, s.premium))

		snap, err := s.service.Snapshot(ctx, s.premium)
		s.Require().NoError(err)
		s.Equal(3, snap.QuizzesUsedToday)
		s.Equal(1, snap.AttemptsUsedToday)
		s.True(snap.Unlimited)

		// The counter rolls at midnight like every other window.
		snap, err = s.service.Snapshot(at(9, 0), s.premium)
		s.Require().NoError(err)
		s.Equal(0, snap.QuizzesUsedToday)
	})
}
