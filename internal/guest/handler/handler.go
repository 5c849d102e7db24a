// Package handler exposes the guest session and transfer endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	guestModel "quizdeck/internal/guest/models"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	"quizdeck/internal/transport/http/shared"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Service defines the guest operations the handler depends on.
type Service interface {
	Resolve(ctx context.Context, origin, token string) (*guestModel.GuestIdentity, error)
	Transfer(ctx context.Context, token string, userID id.UserID) (*guestModel.TransferResult, error)
}

type Handler struct {
	logger       *slog.Logger
	guests       Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(guests Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		guests:       guests,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// GuestTokenHeader carries the fallback token on guest requests.
const GuestTokenHeader = "X-Guest-Token"

// Register registers the guest routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	guestRouter := chi.NewRouter()
	guestRouter.Use(middleware.Recovery(h.logger))
	guestRouter.Use(middleware.RequestID)
	guestRouter.Use(middleware.Logger(h.logger))
	guestRouter.Use(middleware.Timeout(15 * time.Second))
	guestRouter.Use(middleware.ContentTypeJSON)
	guestRouter.Use(middleware.LatencyMiddleware(h.metrics))
	guestRouter.Use(middleware.ClientMetadata)

	guestRouter.Get("/session", h.handleSession)

	guestRouter.Group(func(private chi.Router) {
		private.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		private.Post("/transfer", h.handleTransfer)
	})

	r.Mount("/guest", guestRouter)
}

type sessionResponse struct {
	Token              string `json:"token"`
	DocumentsCreated   int    `json:"documents_created"`
	DocumentAllowance  int    `json:"document_allowance"`
	RemainingDocuments int    `json:"remaining_documents"`
	IsBlocked          bool   `json:"is_blocked"`
}

// handleSession resolves (or creates) the guest identity for the caller's
// origin address and returns the token to keep for later requests.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	g, err := h.guests.Resolve(ctx, middleware.ClientIP(r), r.Header.Get(GuestTokenHeader))
	if err != nil {
		h.logger.WarnContext(ctx, "resolve guest session failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	remaining := id.GuestDocumentCap - g.DocumentsCreated
	if remaining < 0 || g.IsBlocked {
		remaining = 0
	}
	shared.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:              g.Token,
		DocumentsCreated:   g.DocumentsCreated,
		DocumentAllowance:  id.GuestDocumentCap,
		RemainingDocuments: remaining,
		IsBlocked:          g.IsBlocked,
	})
}

// handleTransfer claims the guest's work for the authenticated account.
func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GuestToken == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "guest_token is required"))
		return
	}

	result, err := h.guests.Transfer(ctx, req.GuestToken, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "guest transfer failed",
			"request_id", middleware.GetRequestID(ctx),
			"user_id", userID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
