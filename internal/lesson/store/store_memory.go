package store

import (
	"context"
	"sort"
	"sync"

	"quizdeck/internal/lesson/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// InMemoryStore implements the lesson persistence surface in maps for unit
// tests.
type InMemoryStore struct {
	mu          sync.Mutex
	lessons     map[id.LessonID]*models.Lesson
	questions   map[id.QuestionID]*models.Question
	answers     map[answerKey]*models.UserAnswer
	attempts    map[id.LessonID][]*models.LessonAttempt
	guestOwners map[id.LessonID]id.GuestID
}

type answerKey struct {
	lesson   id.LessonID
	question id.QuestionID
	identity string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		lessons:     make(map[id.LessonID]*models.Lesson),
		questions:   make(map[id.QuestionID]*models.Question),
		answers:     make(map[answerKey]*models.UserAnswer),
		attempts:    make(map[id.LessonID][]*models.LessonAttempt),
		guestOwners: make(map[id.LessonID]id.GuestID),
	}
}

// SetGuestOwner records which guest owns a lesson's document.
func (s *InMemoryStore) SetGuestOwner(lessonID id.LessonID, guestID id.GuestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guestOwners[lessonID] = guestID
}

func (s *InMemoryStore) CreateLesson(ctx context.Context, l *models.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *l
	clone.CreatedAt = requestcontext.Now(ctx)
	clone.LastAccessed = clone.CreatedAt
	s.lessons[l.ID] = &clone
	return nil
}

func (s *InMemoryStore) GetLesson(_ context.Context, lessonID id.LessonID) (*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[lessonID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	clone := *l
	return &clone, nil
}

func (s *InMemoryStore) GuestOwner(_ context.Context, lessonID id.LessonID) (id.GuestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[lessonID]; !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	return s.guestOwners[lessonID], nil
}

func (s *InMemoryStore) SaveProgress(ctx context.Context, l *models.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.lessons[l.ID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	existing.Status = l.Status
	existing.TotalQuestions = l.TotalQuestions
	existing.CompletedQuestions = l.CompletedQuestions
	existing.Score = l.Score
	existing.LastScore = l.LastScore
	existing.TotalAttempts = l.TotalAttempts
	existing.AverageScore = l.AverageScore
	existing.LastAccessed = requestcontext.Now(ctx)
	return nil
}

func (s *InMemoryStore) ListLessonsForUser(_ context.Context, userID id.UserID) ([]*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lessons []*models.Lesson
	for _, l := range s.lessons {
		if l.UserID == userID {
			clone := *l
			lessons = append(lessons, &clone)
		}
	}
	sortLessons(lessons)
	return lessons, nil
}

func (s *InMemoryStore) ListLessonsForGuest(_ context.Context, guestID id.GuestID) ([]*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lessons []*models.Lesson
	for lessonID, owner := range s.guestOwners {
		if owner != guestID {
			continue
		}
		if l, ok := s.lessons[lessonID]; ok && l.UserID.IsNil() {
			clone := *l
			lessons = append(lessons, &clone)
		}
	}
	sortLessons(lessons)
	return lessons, nil
}

func sortLessons(lessons []*models.Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		return lessons[i].LastAccessed.After(lessons[j].LastAccessed)
	})
}

func (s *InMemoryStore) DeleteLesson(_ context.Context, lessonID id.LessonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[lessonID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	delete(s.lessons, lessonID)
	delete(s.guestOwners, lessonID)
	delete(s.attempts, lessonID)
	for key := range s.answers {
		if key.lesson == lessonID {
			delete(s.answers, key)
		}
	}
	for _, question := range s.questions {
		if question.LessonID == lessonID {
			delete(s.questions, question.ID)
		}
	}
	return nil
}

func (s *InMemoryStore) CreateQuestions(_ context.Context, questions []*models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, question := range questions {
		clone := *question
		s.questions[question.ID] = &clone
	}
	return nil
}

func (s *InMemoryStore) BindQuestions(_ context.Context, documentID id.DocumentID, lessonID id.LessonID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bound := 0
	for _, question := range s.questions {
		if question.DocumentID == documentID {
			question.LessonID = lessonID
			bound++
		}
	}
	return bound, nil
}

func (s *InMemoryStore) GetQuestion(_ context.Context, questionID id.QuestionID) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	question, ok := s.questions[questionID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "question not found")
	}
	clone := *question
	return &clone, nil
}

func (s *InMemoryStore) ListQuestions(_ context.Context, lessonID id.LessonID) ([]*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var questions []*models.Question
	for _, question := range s.questions {
		if question.LessonID == lessonID {
			clone := *question
			questions = append(questions, &clone)
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
	return questions, nil
}

func (s *InMemoryStore) ReplaceAnswer(ctx context.Context, a *models.UserAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{lesson: a.LessonID, question: a.QuestionID, identity: a.Identity.String()}
	clone := *a
	clone.AnsweredAt = requestcontext.Now(ctx)
	s.answers[key] = &clone
	return nil
}

func (s *InMemoryStore) CountAnswers(_ context.Context, lessonID id.LessonID, identity id.Identity) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answered, correct := 0, 0
	for key, a := range s.answers {
		if key.lesson == lessonID && key.identity == identity.String() {
			answered++
			if a.IsCorrect {
				correct++
			}
		}
	}
	return answered, correct, nil
}

func (s *InMemoryStore) DeleteAnswers(_ context.Context, lessonID id.LessonID, identity id.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.answers {
		if key.lesson == lessonID && key.identity == identity.String() {
			delete(s.answers, key)
		}
	}
	return nil
}

func (s *InMemoryStore) AppendAttempt(ctx context.Context, attempt *models.LessonAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *attempt
	clone.CompletedAt = requestcontext.Now(ctx)
	s.attempts[attempt.LessonID] = append(s.attempts[attempt.LessonID], &clone)
	return nil
}

func (s *InMemoryStore) ListAttempts(_ context.Context, lessonID id.LessonID) ([]*models.LessonAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts := make([]*models.LessonAttempt, 0, len(s.attempts[lessonID]))
	for _, attempt := range s.attempts[lessonID] {
		clone := *attempt
		attempts = append(attempts, &clone)
	}
	return attempts, nil
}
