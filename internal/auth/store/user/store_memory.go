package user

import (
	"context"
	"sync"

	"quizdeck/internal/auth/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// InMemoryStore keeps accounts in a map for unit tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[u.Email]; exists {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	now := requestcontext.Now(ctx)
	clone := *u
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.byID[u.ID] = &clone
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	clone := *u
	return &clone, nil
}

func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[email]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	clone := *s.byID[userID]
	return &clone, nil
}

func (s *InMemoryStore) UpdateProfile(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[u.ID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	existing.Username = u.Username
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.EducationLevel = u.EducationLevel
	existing.UpdatedAt = requestcontext.Now(ctx)
	return nil
}
