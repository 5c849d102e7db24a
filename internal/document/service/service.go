// Package service implements document creation: gate the caller's
// allowance, generate questions, persist the document with its lesson, and
// consume the allowance only once everything is in place. A failed
// generation deletes the document row again so no document ever exists
// without questions.
package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"quizdeck/internal/ai"
	"quizdeck/internal/audit"
	"quizdeck/internal/document/models"
	lessonModel "quizdeck/internal/lesson/models"
	"quizdeck/internal/platform/metrics"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// Store is the document persistence surface.
type Store interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Document, error)
	ListForGuest(ctx context.Context, guestID id.GuestID) ([]*models.Document, error)
	Delete(ctx context.Context, docID id.DocumentID) error
}

// LessonBuilder persists generated questions and builds the lesson over
// them. Implemented by the lesson store and service.
type LessonBuilder interface {
	CreateQuestions(ctx context.Context, questions []*lessonModel.Question) error
	CreateFromDocument(ctx context.Context, identity id.Identity, documentID id.DocumentID, title string, difficulty id.Difficulty) (*lessonModel.Lesson, error)
}

// CreationGate is the registered user's daily creation allowance.
type CreationGate interface {
	CanCreate(ctx context.Context, userID id.UserID) error
	RecordCreation(ctx context.Context, userID id.UserID) error
}

// GuestGate is the guest's lifetime allowance.
type GuestGate interface {
	CanCreateByID(ctx context.Context, guestID id.GuestID) error
	RecordDocumentCreated(ctx context.Context, guestID id.GuestID) error
}

// Profiles supplies the registered user's plan and the education level fed
// into generation.
type Profiles interface {
	CreatorProfile(ctx context.Context, userID id.UserID) (educationLevel string, premium bool, err error)
}

type Service struct {
	store     Store
	generator ai.Generator
	lessons   LessonBuilder
	quota     CreationGate
	guests    GuestGate
	profiles  Profiles
	db        *sql.DB
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     audit.Publisher
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

func WithCreationGate(q CreationGate) Option {
	return func(s *Service) { s.quota = q }
}

func WithGuestGate(g GuestGate) Option {
	return func(s *Service) { s.guests = g }
}

func WithProfiles(p Profiles) Option {
	return func(s *Service) { s.profiles = p }
}

func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func New(store Store, generator ai.Generator, lessons LessonBuilder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("question generator is required")
	}
	if lessons == nil {
		return nil, fmt.Errorf("lesson builder is required")
	}
	svc := &Service{
		store:     store,
		generator: generator,
		lessons:   lessons,
		logger:    slog.Default(),
		audit:     audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateResult is what a successful creation returns.
type CreateResult struct {
	Document *models.Document
	Lesson   *lessonModel.Lesson
}

// Create runs the full pipeline for one upload.
func (s *Service) Create(ctx context.Context, identity id.Identity, req models.CreateRequest) (*CreateResult, error) {
	role, educationLevel := s.callerRole(ctx, identity)
	limits := id.LimitsFor(role)

	content, prepared, err := validate(req, limits)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, identity); err != nil {
		return nil, err
	}

	userID, _ := identity.User()
	guestID, _ := identity.Guest()
	doc := &models.Document{
		ID:        id.NewDocumentID(),
		UserID:    userID,
		GuestID:   guestID,
		Title:     prepared.title,
		FileType:  prepared.fileType,
		SizeBytes: int64(len(content)),
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	generated, err := s.generator.Generate(ctx, ai.Request{
		Title:          doc.Title,
		Content:        content,
		ContentType:    prepared.fileType,
		QuestionCount:  prepared.questionCount,
		Difficulty:     prepared.difficulty,
		EducationLevel: educationLevel,
		Instructions:   req.Instructions,
	})
	if err != nil {
		// Never leave a document without questions behind.
		if delErr := s.store.Delete(ctx, doc.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "cleanup of failed generation left orphan document",
				"document_id", doc.ID.String(),
				"error", delErr,
			)
		}
		return nil, err
	}

	questions := buildQuestions(doc.ID, generated, prepared.difficulty)

	var lesson *lessonModel.Lesson
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.lessons.CreateQuestions(ctx, questions); err != nil {
			return err
		}
		lesson, err = s.lessons.CreateFromDocument(ctx, identity, doc.ID, doc.Title, prepared.difficulty)
		return err
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, doc.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "cleanup of failed lesson build left orphan document",
				"document_id", doc.ID.String(),
				"error", delErr,
			)
		}
		return nil, err
	}

	if err := s.consume(ctx, identity); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DocumentsCreated.Inc()
		s.metrics.QuestionsGenerated.Add(float64(len(questions)))
	}
	s.audit.Emit(ctx, audit.Event{
		Subject: identity.String(),
		Action:  audit.ActionDocumentCreated,
		Reason:  fmt.Sprintf("%d questions", len(questions)),
	})
	s.logger.InfoContext(ctx, "document created",
		"document_id", doc.ID.String(),
		"owner", identity.String(),
		"questions", len(questions),
	)
	return &CreateResult{Document: doc, Lesson: lesson}, nil
}

// Get returns a document the identity owns.
func (s *Service) Get(ctx context.Context, identity id.Identity, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Identity() != identity {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

// List returns the identity's documents, newest first.
func (s *Service) List(ctx context.Context, identity id.Identity) ([]*models.Document, error) {
	if userID, ok := identity.User(); ok {
		return s.store.ListForUser(ctx, userID)
	}
	if guestID, ok := identity.Guest(); ok {
		return s.store.ListForGuest(ctx, guestID)
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "identity is required")
}

// Delete removes a document the identity owns, and everything beneath it.
func (s *Service) Delete(ctx context.Context, identity id.Identity, docID id.DocumentID) error {
	if _, err := s.Get(ctx, identity, docID); err != nil {
		return err
	}
	return s.store.Delete(ctx, docID)
}

// callerRole resolves the identity's plan. A failed profile lookup degrades
// to the free plan instead of failing the upload.
func (s *Service) callerRole(ctx context.Context, identity id.Identity) (id.Role, string) {
	userID, ok := identity.User()
	if !ok {
		return id.RoleGuest, ""
	}
	if s.profiles == nil {
		return id.RoleFree, ""
	}
	educationLevel, premium, err := s.profiles.CreatorProfile(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "load creator profile failed",
			"user_id", userID.String(),
			"error", err,
		)
		return id.RoleFree, ""
	}
	if premium {
		return id.RolePremium, educationLevel
	}
	return id.RoleFree, educationLevel
}

func (s *Service) gate(ctx context.Context, identity id.Identity) error {
	if userID, ok := identity.User(); ok {
		if s.quota == nil {
			return nil
		}
		return s.quota.CanCreate(ctx, userID)
	}
	if guestID, ok := identity.Guest(); ok {
		if s.guests == nil {
			return nil
		}
		return s.guests.CanCreateByID(ctx, guestID)
	}
	return dErrors.New(dErrors.CodeBadRequest, "identity is required")
}

func (s *Service) consume(ctx context.Context, identity id.Identity) error {
	if userID, ok := identity.User(); ok && s.quota != nil {
		return s.quota.RecordCreation(ctx, userID)
	}
	if guestID, ok := identity.Guest(); ok && s.guests != nil {
		return s.guests.RecordDocumentCreated(ctx, guestID)
	}
	return nil
}

type preparedRequest struct {
	title         string
	fileType      string
	questionCount int
	difficulty    id.Difficulty
}

// validate normalizes the request against the role's limits. The question
// count is clamped to the role's cap rather than rejected; the size limit is
// a hard bound.
func validate(req models.CreateRequest, limits id.RoleLimits) ([]byte, preparedRequest, error) {
	var prepared preparedRequest

	prepared.title = strings.TrimSpace(req.Title)
	if prepared.title == "" {
		return nil, prepared, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if req.Content == "" {
		return nil, prepared, dErrors.New(dErrors.CodeValidation, "content is required")
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, prepared, dErrors.New(dErrors.CodeValidation, "content must be base64 encoded")
	}
	if int64(len(content)) > limits.MaxFileSizeMB*1024*1024 {
		return nil, prepared, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("file exceeds the %dMB limit for your plan", limits.MaxFileSizeMB))
	}

	prepared.fileType = req.FileType
	if prepared.fileType == "" {
		prepared.fileType = "text/plain"
	}

	prepared.questionCount = req.QuestionCount
	if prepared.questionCount <= 0 {
		prepared.questionCount = 5
	}
	if prepared.questionCount > limits.MaxQuestions {
		prepared.questionCount = limits.MaxQuestions
	}

	prepared.difficulty = id.Difficulty(req.Difficulty)
	if !prepared.difficulty.IsValid() {
		prepared.difficulty = id.DifficultyMedium
	}
	return content, prepared, nil
}

func buildQuestions(docID id.DocumentID, generated []ai.GeneratedQuestion, fallback id.Difficulty) []*lessonModel.Question {
	questions := make([]*lessonModel.Question, 0, len(generated))
	for i, g := range generated {
		difficulty := id.Difficulty(g.Difficulty)
		if !difficulty.IsValid() {
			difficulty = fallback
		}
		question := &lessonModel.Question{
			ID:         id.NewQuestionID(),
			DocumentID: docID,
			Text:       g.QuestionText,
			Type:       id.QuestionMultipleChoice,
			Difficulty: difficulty,
			Position:   i,
		}
		for _, a := range g.Answers {
			question.Options = append(question.Options, lessonModel.AnswerOption{
				ID:         id.NewAnswerID(),
				QuestionID: question.ID,
				Text:       a.Text,
				IsCorrect:  a.IsCorrect,
			})
		}
		questions = append(questions, question)
	}
	return questions
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}
