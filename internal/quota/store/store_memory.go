package store

import (
	"context"
	"sync"
	"time"

	"quizdeck/internal/quota/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// InMemoryStore keeps usage windows in a map for unit tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	usages map[id.UserID]*models.UserUsage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{usages: make(map[id.UserID]*models.UserUsage)}
}

// Seed registers a user with the given premium flag and zeroed counters.
func (s *InMemoryStore) Seed(userID id.UserID, isPremium bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages[userID] = &models.UserUsage{UserID: userID, IsPremium: isPremium}
}

// SetPremium flips the premium flag for an already seeded user.
func (s *InMemoryStore) SetPremium(userID id.UserID, isPremium bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage, ok := s.usages[userID]; ok {
		usage.IsPremium = isPremium
	}
}

func (s *InMemoryStore) GetUsage(_ context.Context, userID id.UserID) (*models.UserUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usage, ok := s.usages[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	clone := *usage
	return &clone, nil
}

func (s *InMemoryStore) SaveCreationWindow(_ context.Context, userID id.UserID, count int, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage, ok := s.usages[userID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	usage.CreatedCount = count
	usage.CreatedDate = date
	return nil
}

func (s *InMemoryStore) SaveAttemptWindow(_ context.Context, userID id.UserID, count int, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage, ok := s.usages[userID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	usage.AttemptCount = count
	usage.AttemptDate = date
	return nil
}
