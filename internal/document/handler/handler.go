// Package handler exposes document upload, listing and deletion. Uploads are
// the only write endpoint guests can reach, so this is also where the
// per-address upload throttle lives.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"quizdeck/internal/document/models"
	docService "quizdeck/internal/document/service"
	guestHandler "quizdeck/internal/guest/handler"
	guestModel "quizdeck/internal/guest/models"
	lessonModel "quizdeck/internal/lesson/models"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	"quizdeck/internal/transport/http/shared"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Service defines the document operations the handler depends on.
type Service interface {
	Create(ctx context.Context, identity id.Identity, req models.CreateRequest) (*docService.CreateResult, error)
	Get(ctx context.Context, identity id.Identity, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, identity id.Identity) ([]*models.Document, error)
	Delete(ctx context.Context, identity id.Identity, docID id.DocumentID) error
}

// GuestResolver resolves the caller's guest identity when no account token is
// present.
type GuestResolver interface {
	Resolve(ctx context.Context, origin, token string) (*guestModel.GuestIdentity, error)
}

// Limiter throttles guest uploads per origin address. A nil limiter allows
// everything.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Handler struct {
	logger       *slog.Logger
	documents    Service
	guests       GuestResolver
	limiter      Limiter
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

type Option func(*Handler)

// WithUploadLimiter throttles unauthenticated uploads.
func WithUploadLimiter(l Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

func New(documents Service, guests GuestResolver, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		documents:    documents,
		guests:       guests,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the document routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	docRouter := chi.NewRouter()
	docRouter.Use(middleware.Recovery(h.logger))
	docRouter.Use(middleware.RequestID)
	docRouter.Use(middleware.Logger(h.logger))
	docRouter.Use(middleware.Timeout(60 * time.Second))
	docRouter.Use(middleware.ContentTypeJSON)
	docRouter.Use(middleware.LatencyMiddleware(h.metrics))
	docRouter.Use(middleware.ClientMetadata)
	docRouter.Use(middleware.OptionalAuth(h.jwtValidator, h.logger))

	docRouter.Post("/", h.handleCreate)
	docRouter.Get("/", h.handleList)
	docRouter.Get("/{documentID}", h.handleGet)
	docRouter.Delete("/{documentID}", h.handleDelete)

	r.Mount("/documents", docRouter)
}

// identify maps the request to its actor: the authenticated user when a
// valid bearer token was presented, otherwise the guest behind the caller's
// origin address.
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

func documentIDFrom(r *http.Request) (id.DocumentID, error) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid document id")
	}
	return docID, nil
}

type createResponse struct {
	Document models.View         `json:"document"`
	Lesson   *lessonModel.Lesson `json:"lesson"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if !identity.IsRegistered() && h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, middleware.ClientIP(r))
		if err != nil {
			h.logger.WarnContext(ctx, "upload limiter unavailable, allowing request",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		} else if !allowed {
			shared.WriteError(w, dErrors.WithAction(
				dErrors.New(dErrors.CodeRateLimited, "too many uploads, try again later"),
				dErrors.ActionRateLimited,
			))
			return
		}
	}

	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.documents.Create(ctx, identity, req)
	if err != nil {
		h.logWarnOrError(ctx, "create document failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, createResponse{
		Document: models.ViewOf(result.Document),
		Lesson:   result.Lesson,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	docs, err := h.documents.List(ctx, identity)
	if err != nil {
		h.logWarnOrError(ctx, "list documents failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	views := make([]models.View, 0, len(docs))
	for _, d := range docs {
		views = append(views, models.ViewOf(d))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	docID, err := documentIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.documents.Get(ctx, identity, docID)
	if err != nil {
		h.logWarnOrError(ctx, "get document failed", identity, err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, models.ViewOf(doc))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identify(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	docID, err := documentIDFrom(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.documents.Delete(ctx, identity, docID); err != nil {
		h.logWarnOrError(ctx, "delete document failed", identity, err)
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
