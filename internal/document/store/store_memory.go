package store

import (
	"context"
	"sort"
	"sync"

	"quizdeck/internal/document/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// InMemoryStore keeps documents in a map for unit tests.
type InMemoryStore struct {
	mu        sync.Mutex
	documents map[id.DocumentID]*models.Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{documents: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(ctx context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	clone := *d
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.documents[d.ID] = &clone
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	clone := *d
	return &clone, nil
}

func (s *InMemoryStore) ListForUser(_ context.Context, userID id.UserID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var documents []*models.Document
	for _, d := range s.documents {
		if d.UserID == userID && !userID.IsNil() {
			clone := *d
			documents = append(documents, &clone)
		}
	}
	sortDocuments(documents)
	return documents, nil
}

func (s *InMemoryStore) ListForGuest(_ context.Context, guestID id.GuestID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var documents []*models.Document
	for _, d := range s.documents {
		if d.GuestID == guestID && !guestID.IsNil() {
			clone := *d
			documents = append(documents, &clone)
		}
	}
	sortDocuments(documents)
	return documents, nil
}

func sortDocuments(documents []*models.Document) {
	sort.Slice(documents, func(i, j int) bool {
		return documents[i].CreatedAt.After(documents[j].CreatedAt)
	})
}

func (s *InMemoryStore) Delete(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[docID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	delete(s.documents, docID)
	return nil
}
