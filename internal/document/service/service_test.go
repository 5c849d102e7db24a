package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"quizdeck/internal/ai"
	"quizdeck/internal/document/models"
	docStore "quizdeck/internal/document/store"
	lessonService "quizdeck/internal/lesson/service"
	lessonStore "quizdeck/internal/lesson/store"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Justification for unit tests:
// Document creation is the pipeline that ties every allowance together: the
// caller's plan bounds the upload, the daily or lifetime gate must be
// consulted before any generation cost is paid, and a failed generation must
// not leave a question-less document behind. These tests drive the pipeline
// through fakes for the generator and the gates, with the real lesson
// service underneath so the resulting lesson is the one readers will fetch.

type stubGenerator struct {
	questions []ai.GeneratedQuestion
	err       error
	lastReq   ai.Request
	calls     int
}

func (g *stubGenerator) Generate(_ context.Context, req ai.Request) ([]ai.GeneratedQuestion, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.questions, nil
}

type fakeCreationGate struct {
	denyWith error
	recorded int
}

func (g *fakeCreationGate) CanCreate(context.Context, id.UserID) error {
	return g.denyWith
}

func (g *fakeCreationGate) RecordCreation(context.Context, id.UserID) error {
	g.recorded++
	return nil
}

type fakeGuestGate struct {
	denyWith error
	recorded int
}

func (g *fakeGuestGate) CanCreateByID(context.Context, id.GuestID) error {
	return g.denyWith
}

func (g *fakeGuestGate) RecordDocumentCreated(context.Context, id.GuestID) error {
	g.recorded++
	return nil
}

type fakeProfiles struct {
	educationLevel string
	premium        bool
}

func (p fakeProfiles) CreatorProfile(context.Context, id.UserID) (string, bool, error) {
	return p.educationLevel, p.premium, nil
}

type DocumentServiceSuite struct {
	suite.Suite
	store     *docStore.InMemoryStore
	lessons   *lessonStore.InMemoryStore
	generator *stubGenerator
	quota     *fakeCreationGate
	guests    *fakeGuestGate
	profiles  *fakeProfiles
	service   *Service
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.store = docStore.NewInMemoryStore()
	s.lessons = lessonStore.NewInMemoryStore()
	s.generator = &stubGenerator{questions: cannedQuestions(3)}
	s.quota = &fakeCreationGate{}
	s.guests = &fakeGuestGate{}
	s.profiles = &fakeProfiles{educationLevel: "university"}

	builder, err := lessonService.New(s.lessons)
	s.Require().NoError(err)

	s.service, err = New(s.store, s.generator, builder,
		WithCreationGate(s.quota),
		WithGuestGate(s.guests),
		WithProfiles(s.profiles),
	)
	s.Require().NoError(err)
}

func cannedQuestions(n int) []ai.GeneratedQuestion {
	questions := make([]ai.GeneratedQuestion, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, ai.GeneratedQuestion{
			QuestionText: "generated question",
			Difficulty:   "medium",
			Answers: []ai.GeneratedAnswer{
				{Text: "right", IsCorrect: true},
				{Text: "wrong", IsCorrect: false},
			},
		})
	}
	return questions
}

func request(title string) models.CreateRequest {
	return models.CreateRequest{
		Title:         title,
		Content:       base64.StdEncoding.EncodeToString([]byte("lecture notes")),
		FileType:      "text/plain",
		QuestionCount: 3,
	}
}

// ===== Creation pipeline =====

func (s *DocumentServiceSuite) TestCreateBuildsDocumentAndLesson() {
	ctx := context.Background()
	identity := id.RegisteredIdentity(id.NewUserID())

	result, err := s.service.Create(ctx, identity, request("Biology 101"))
	s.Require().NoError(err)

	s.Equal("Biology 101", result.Document.Title)
	s.Equal(identity, result.Document.Identity())
	s.Require().NotNil(result.Lesson)
	s.Equal(3, result.Lesson.TotalQuestions)
	s.Equal(result.Document.ID, result.Lesson.DocumentID)

	questions, err := s.lessons.ListQuestions(ctx, result.Lesson.ID)
	s.Require().NoError(err)
	s.Len(questions, 3)
	s.Len(questions[0].Options, 2)

	s.Equal(1, s.quota.recorded)
	s.Zero(s.guests.recorded)
}

func (s *DocumentServiceSuite) TestCreateFeedsProfileIntoGeneration() {
	ctx := context.Background()

	_, err := s.service.Create(ctx, id.RegisteredIdentity(id.NewUserID()), request("History"))
	s.Require().NoError(err)

	s.Equal("university", s.generator.lastReq.EducationLevel)
	s.Equal([]byte("lecture notes"), s.generator.lastReq.Content)
	s.Equal(3, s.generator.lastReq.QuestionCount)
}

func (s *DocumentServiceSuite) TestGuestCreateConsumesLifetimeAllowance() {
	ctx := context.Background()
	identity := id.GuestIdentity(id.NewGuestID())

	result, err := s.service.Create(ctx, identity, request("Guest quiz"))
	s.Require().NoError(err)

	s.Equal(identity, result.Document.Identity())
	s.Equal(1, s.guests.recorded)
	s.Zero(s.quota.recorded)
}

// ===== Gating =====

func (s *DocumentServiceSuite) TestQuotaDeniedCreatesNothing() {
	ctx := context.Background()
	s.quota.denyWith = dErrors.WithAction(
		dErrors.New(dErrors.CodeQuotaExceeded, "daily limit reached"),
		dErrors.ActionUpgradeRequired,
	)

	_, err := s.service.Create(ctx, id.RegisteredIdentity(id.NewUserID()), request("Denied"))
	s.Require().Error(err)
	s.Equal(dErrors.CodeQuotaExceeded, dErrors.CodeOf(err))
	s.Equal(dErrors.ActionUpgradeRequired, dErrors.ActionOf(err))

	s.Zero(s.generator.calls, "generation must not run for a denied caller")
	docs, err := s.store.ListForUser(ctx, id.NewUserID())
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *DocumentServiceSuite) TestBlockedGuestCreatesNothing() {
	ctx := context.Background()
	s.guests.denyWith = dErrors.WithAction(
		dErrors.New(dErrors.CodeQuotaExceeded, "free limit reached"),
		dErrors.ActionSignupRequired,
	)

	_, err := s.service.Create(ctx, id.GuestIdentity(id.NewGuestID()), request("Blocked"))
	s.Require().Error(err)
	s.Equal(dErrors.ActionSignupRequired, dErrors.ActionOf(err))
	s.Zero(s.generator.calls)
}

// ===== Generation failure =====

func (s *DocumentServiceSuite) TestFailedGenerationDeletesDocument() {
	ctx := context.Background()
	userID := id.NewUserID()
	s.generator.err = dErrors.WithAction(
		dErrors.New(dErrors.CodeUnavailable, "question generation failed"),
		dErrors.ActionRetryRequired,
	)

	_, err := s.service.Create(ctx, id.RegisteredIdentity(userID), request("Doomed"))
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
	s.Equal(dErrors.ActionRetryRequired, dErrors.ActionOf(err))

	docs, listErr := s.store.ListForUser(ctx, userID)
	s.Require().NoError(listErr)
	s.Empty(docs, "a failed generation must not leave a document behind")
	s.Zero(s.quota.recorded, "a failed creation must not consume the allowance")
}

// ===== Validation =====

func (s *DocumentServiceSuite) TestValidation() {
	ctx := context.Background()
	identity := id.RegisteredIdentity(id.NewUserID())

	s.Run("missing title", func() {
		req := request("   ")
		_, err := s.service.Create(ctx, identity, req)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("content not base64", func() {
		req := request("Bad content")
		req.Content = "not base64!!"
		_, err := s.service.Create(ctx, identity, req)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("file over the plan limit", func() {
		limit := id.LimitsFor(id.RoleFree).MaxFileSizeMB * 1024 * 1024
		req := request("Huge upload")
		req.Content = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", int(limit)+1)))
		_, err := s.service.Create(ctx, identity, req)
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("question count clamped to the plan cap", func() {
		req := request("Ambitious")
		req.QuestionCount = 500
		_, err := s.service.Create(ctx, identity, req)
		s.Require().NoError(err)
		s.Equal(id.LimitsFor(id.RoleFree).MaxQuestions, s.generator.lastReq.QuestionCount)
	})

	s.Run("premium plan raises the cap", func() {
		s.profiles.premium = true
		defer func() { s.profiles.premium = false }()
		req := request("Premium")
		req.QuestionCount = 500
		_, err := s.service.Create(ctx, identity, req)
		s.Require().NoError(err)
		s.Equal(id.LimitsFor(id.RolePremium).MaxQuestions, s.generator.lastReq.QuestionCount)
	})
}

// ===== Reads and deletion =====

func (s *DocumentServiceSuite) TestOwnershipOnReadsAndDeletes() {
	ctx := context.Background()
	owner := id.RegisteredIdentity(id.NewUserID())
	stranger := id.RegisteredIdentity(id.NewUserID())

	result, err := s.service.Create(ctx, owner, request("Mine"))
	s.Require().NoError(err)
	docID := result.Document.ID

	got, err := s.service.Get(ctx, owner, docID)
	s.Require().NoError(err)
	s.Equal(docID, got.ID)

	_, err = s.service.Get(ctx, stranger, docID)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err), "not-owned reads as missing")

	err = s.service.Delete(ctx, stranger, docID)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	s.Require().NoError(s.service.Delete(ctx, owner, docID))
	_, err = s.service.Get(ctx, owner, docID)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *DocumentServiceSuite) TestListIsScopedToOwner() {
	ctx := context.Background()
	alice := id.RegisteredIdentity(id.NewUserID())
	guest := id.GuestIdentity(id.NewGuestID())

	_, err := s.service.Create(ctx, alice, request("Alice one"))
	s.Require().NoError(err)
	_, err = s.service.Create(ctx, guest, request("Guest one"))
	s.Require().NoError(err)

	docs, err := s.service.List(ctx, alice)
	s.Require().NoError(err)
	s.Len(docs, 1)
	s.Equal("Alice one", docs[0].Title)

	docs, err = s.service.List(ctx, guest)
	s.Require().NoError(err)
	s.Len(docs, 1)
	s.Equal("Guest one", docs[0].Title)
}
