// Package handler exposes lesson reads, answer submission, resets and
// attempt history. Fetching a lesson to take it is what consumes a
// registered user's daily attempt allowance, so GET /{id} is deliberately
// separate from the light listing endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	guestHandler "quizdeck/internal/guest/handler"
	guestModel "quizdeck/internal/guest/models"
	"quizdeck/internal/lesson/models"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	"quizdeck/internal/transport/http/shared"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Service defines the lesson operations the handler depends on.
type Service interface {
	Get(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Lesson, []*models.Question, error)
	SubmitAnswer(ctx context.Context, identity id.Identity, req models.SubmitRequest) (*models.SubmitResult, error)
	Reset(ctx context.Context, identity id.Identity, lessonID id.LessonID) error
	List(ctx context.Context, identity id.Identity) ([]*models.Lesson, error)
	Attempts(ctx context.Context, identity id.Identity, lessonID id.LessonID) ([]*models.LessonAttempt, error)
	Stats(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Stats, error)
	Summary(ctx context.Context, identity id.Identity, lessonID id.LessonID) (*models.Summary, error)
	Overview(ctx context.Context, identity id.Identity) (*models.Overview, error)
	Delete(ctx context.Context, identity id.Identity, lessonID id.LessonID) error
}

// GuestResolver resolves the caller's guest identity when no account token is
// present.
type GuestResolver interface {
	Resolve(ctx context.Context, origin, token string) (*guestModel.GuestIdentity, error)
}

type Handler struct {
	logger       *slog.Logger
	lessons      Service
	guests       GuestResolver
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(lessons Service, guests GuestResolver, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		lessons:      lessons,
		guests:       guests,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the lesson routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	lessonRouter := chi.NewRouter()
	lessonRouter.Use(middleware.Recovery(h.logger))
	lessonRouter.Use(middleware.RequestID)
	lessonRouter.Use(middleware.Logger(h.logger))
	lessonRouter.Use(middleware.Timeout(15 * time.Second))
	lessonRouter.Use(middleware.ContentTypeJSON)
	lessonRouter.Use(middleware.LatencyMiddleware(h.metrics))
	lessonRouter.Use(middleware.ClientMetadata)
	lessonRouter.Use(middleware.OptionalAuth(h.jwtValidator, h.logger))

	lessonRouter.Get("/", h.handleList)
	lessonRouter.Get("/overview", h.handleOverview)
	lessonRouter.Get("/{lessonID}", h.handleGet)
	lessonRouter.Post("/{lessonID}/submit", h.handleSubmit)
	lessonRouter.Post("/{lessonID}/reset", h.handleReset)
	lessonRouter.Get("/{lessonID}/stats", h.handleStats)
	lessonRouter.Get("/{lessonID}/summary", h.handleSummary)
	lessonRouter.Delete("/{lessonID}", h.handleDelete)

	lessonRouter.Group(func(private chi.Router) {
		private.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		private.Get("/{lessonID}/attempts", h.handleAttempts)
	})

	r.Mount("/lessons", lessonRouter)
}

func (h *Handler) identify(r *http.Request) (id.Identity, error) {
	ctx := r.Context()
	if userID := middleware.GetUserID(ctx); !userID.IsNil() {
		return id.RegisteredIdentity(userID), nil
	}
	g, err := h.guests.Resolve(ctx, middleware.ClientIP(r), r.Header.Get(guestHandler.GuestTokenHeader))
	if err != nil {
		return id.Identity{}, err
	}
	return id.GuestIdentity(g.ID), nil
}

func lessonIDFrom(r *http.Request) (id.LessonID, error) {
	lessonID, err := id.ParseLessonID(chi.URLParam(r, "lessonID"))
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid lesson id")
	}
	return lessonID, nil
}

type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Type       string       `json:"type"`
	Difficulty string       `json:"difficulty"`
	Position   int          `json:"position"`
	Options    []optionView `json:"options"`
}

type lessonView struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Status             string  `json:"status"`
	Difficulty         string  `json:"difficulty"`
	TotalQuestions     int     `json:"total_questions"`
	CompletedQuestions int     `json:"completed_questions"`
	ProgressPercent    int     `json:"progress_percent"`
	Score              int     `json:"score"`
	LastScore          int     `json:"last_score"`
	TotalAttempts      int     `json:"total_attempts"`
	AverageScore       float64 `json:"average_score"`
}

type attemptView struct {
	AttemptNumber int       `json:"attempt_number"`
	Score         int       `json:"score"`
	CompletedAt   time.Time `json:"completed_at"`
}

func viewOfLesson(l *models.Lesson) lessonView {
	return lessonView{
		ID:                 l.ID.String(),
		Title:              l.Title,
		Status:             string(l.Status),
		Difficulty:         string(l.Difficulty),
		TotalQuestions:     l.TotalQuestions,
		CompletedQuestions: l.CompletedQuestions,
		ProgressPercent:    l.ProgressPercent(),
		Score:              l.Score,
		LastScore:          l.LastScore,
		TotalAttempts:      l.TotalAttempts,
		AverageScore:       l.AverageScore,
	}
}

// viewOfQuestion strips the answer key before the question leaves the
// server.
func viewOfQuestion(q *models.Question) questionView {
	view := questionView{
		ID:         q.ID.String(),
		Text:       q.Text,
		Type:       string(q.Type),
		Difficulty: string(q.Difficulty),
		Position:   q.Position,
	}
	for _, o := range q.Options {
		view.Options = append(view.Options, optionView{ID: o.ID.String(), Text: o.Text})
	}
	return view
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessons, err := h.lessons.List(ctx, identity)
	if err != nil {
		h.logWarnOrError(ctx, "list lessons failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	views := make([]lessonView, 0, len(lessons))
	for _, l := range lessons {
		views = append(views, viewOfLesson(l))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"lessons": views})
}

type lessonResponse struct {
	Lesson    lessonView     `json:"lesson"`
	Questions []questionView `json:"questions"`
}

// handleGet returns the lesson with its questions for taking. For
// registered non-premium callers this consumes one attempt from the daily
// allowance.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lesson, questions, err := h.lessons.Get(ctx, identity, lessonID)
	if err != nil {
		h.logWarnOrError(ctx, "get lesson failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	resp := lessonResponse{Lesson: viewOfLesson(lesson)}
	resp.Questions = make([]questionView, 0, len(questions))
	for _, q := range questions {
		resp.Questions = append(resp.Questions, viewOfQuestion(q))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

type submitPayload struct {
	QuestionID       string `json:"question_id"`
	SelectedAnswerID string `json:"selected_answer_id"`
	OpenAnswer       string `json:"open_answer"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	questionID, err := id.ParseQuestionID(payload.QuestionID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "question_id is required"))
		return
	}
	var selectedID id.AnswerID
	if payload.SelectedAnswerID != "" {
		selectedID, err = id.ParseAnswerID(payload.SelectedAnswerID)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "selected_answer_id is invalid"))
			return
		}
	}

	result, err := h.lessons.SubmitAnswer(ctx, identity, models.SubmitRequest{
		LessonID:         lessonID,
		QuestionID:       questionID,
		SelectedAnswerID: selectedID,
		OpenAnswer:       payload.OpenAnswer,
	})
	if err != nil {
		h.logWarnOrError(ctx, "submit answer failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.lessons.Reset(ctx, identity, lessonID); err != nil {
		h.logWarnOrError(ctx, "reset lesson failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	stats, err := h.lessons.Stats(ctx, identity, lessonID)
	if err != nil {
		h.logWarnOrError(ctx, "lesson stats failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

// handleSummary returns the post-quiz result counts. For guests the detail
// stays hidden and the payload says so.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	summary, err := h.lessons.Summary(ctx, identity, lessonID)
	if err != nil {
		h.logWarnOrError(ctx, "lesson summary failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	overview, err := h.lessons.Overview(ctx, identity)
	if err != nil {
		h.logWarnOrError(ctx, "lesson overview failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	identity := id.RegisteredIdentity(userID)

	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	attempts, err := h.lessons.Attempts(ctx, identity, lessonID)
	if err != nil {
		h.logWarnOrError(ctx, "list attempts failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	views := make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, attemptView{
			AttemptNumber: a.AttemptNumber,
			Score:         a.Score,
			CompletedAt:   a.CompletedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"attempts": views})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lessonID, err := lessonIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.lessons.Delete(ctx, identity, lessonID); err != nil {
		h.logWarnOrError(ctx, "delete lesson failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logWarnOrError(ctx context.Context, msg string, identity id.Identity, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"identity", identity.String(),
		"error", err.Error(),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
