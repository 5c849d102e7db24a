package store

import (
	"context"
	"sync"

	"quizdeck/internal/guest/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// InMemoryStore keeps guest identities in maps for unit tests. Work
// reassignment is modeled with explicit ownership records seeded by tests.
type InMemoryStore struct {
	mu       sync.Mutex
	byID     map[id.GuestID]*models.GuestIdentity
	byOrigin map[string]id.GuestID
	byToken  map[string]id.GuestID

	// work owned by each guest, reassigned on transfer
	documents map[id.GuestID][]id.DocumentID
	lessons   map[id.GuestID][]models.TransferredLesson
	answers   map[id.GuestID]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[id.GuestID]*models.GuestIdentity),
		byOrigin:  make(map[string]id.GuestID),
		byToken:   make(map[string]id.GuestID),
		documents: make(map[id.GuestID][]id.DocumentID),
		lessons:   make(map[id.GuestID][]models.TransferredLesson),
		answers:   make(map[id.GuestID]int),
	}
}

// SeedWork records work owned by a guest so transfer results are checkable.
func (s *InMemoryStore) SeedWork(guestID id.GuestID, docs []id.DocumentID, lessons []models.TransferredLesson, answers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[guestID] = docs
	s.lessons[guestID] = lessons
	s.answers[guestID] = answers
}

func (s *InMemoryStore) Create(ctx context.Context, g *models.GuestIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOrigin[g.OriginAddress]; exists {
		return dErrors.New(dErrors.CodeConflict, "guest identity already exists for origin")
	}
	now := requestcontext.Now(ctx)
	clone := *g
	clone.CreatedAt = now
	clone.LastActivity = now
	s.byID[g.ID] = &clone
	s.byOrigin[g.OriginAddress] = g.ID
	s.byToken[g.Token] = g.ID
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, guestID id.GuestID) (*models.GuestIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byID[guestID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	clone := *g
	return &clone, nil
}

func (s *InMemoryStore) GetByOrigin(_ context.Context, origin string) (*models.GuestIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guestID, ok := s.byOrigin[origin]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	clone := *s.byID[guestID]
	return &clone, nil
}

func (s *InMemoryStore) GetByToken(_ context.Context, token string) (*models.GuestIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guestID, ok := s.byToken[token]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	clone := *s.byID[guestID]
	return &clone, nil
}

func (s *InMemoryStore) TouchActivity(ctx context.Context, guestID id.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.byID[guestID]; ok {
		g.LastActivity = requestcontext.Now(ctx)
	}
	return nil
}

func (s *InMemoryStore) IncrementDocuments(_ context.Context, guestID id.GuestID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byID[guestID]
	if !ok {
		return 0, false, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	g.DocumentsCreated++
	g.IsBlocked = g.DocumentsCreated >= id.GuestDocumentCap
	return g.DocumentsCreated, g.IsBlocked, nil
}

func (s *InMemoryStore) ClaimTransfer(ctx context.Context, guestID id.GuestID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byID[guestID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	if g.Transferred() {
		return dErrors.New(dErrors.CodeConflict, "guest work already transferred")
	}
	g.TransferredTo = userID
	g.TransferredAt = requestcontext.Now(ctx)
	return nil
}

func (s *InMemoryStore) ReassignWork(_ context.Context, guestID id.GuestID, userID id.UserID) (*models.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := &models.TransferResult{
		GuestID:     guestID,
		UserID:      userID,
		DocumentIDs: s.documents[guestID],
		Documents:   len(s.documents[guestID]),
		Lessons:     s.lessons[guestID],
		Answers:     s.answers[guestID],
	}
	delete(s.documents, guestID)
	delete(s.lessons, guestID)
	delete(s.answers, guestID)
	return result, nil
}
