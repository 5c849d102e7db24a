package store

import (
	"context"
	"sync"

	"quizdeck/internal/subscription/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// InMemoryStore keeps subscription state in a map for unit tests.
type InMemoryStore struct {
	mu     sync.Mutex
	states map[id.UserID]*models.State
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[id.UserID]*models.State)}
}

// Seed installs a state row for a user.
func (s *InMemoryStore) Seed(state *models.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	s.states[state.UserID] = &clone
}

func (s *InMemoryStore) GetByUserID(_ context.Context, userID id.UserID) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	clone := *state
	return &clone, nil
}

func (s *InMemoryStore) GetByCustomerID(_ context.Context, customerID string) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.states {
		if state.CustomerID == customerID && customerID != "" {
			clone := *state
			return &clone, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.states {
		if state.SubscriptionID == subscriptionID && subscriptionID != "" {
			clone := *state
			return &clone, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryStore) Save(_ context.Context, state *models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.states[state.UserID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	clone := *state
	clone.Pending = existing.Pending
	s.states[state.UserID] = &clone
	return nil
}

func (s *InMemoryStore) ClaimPending(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok || state.Pending {
		return dErrors.New(dErrors.CodeConflict, "a subscription creation is already in progress")
	}
	state.Pending = true
	return nil
}

func (s *InMemoryStore) ReleasePending(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[userID]; ok {
		state.Pending = false
	}
	return nil
}
