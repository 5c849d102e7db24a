// Package handler exposes the account endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authModel "quizdeck/internal/auth/models"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	"quizdeck/internal/transport/http/shared"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Service defines the account operations the handler depends on.
type Service interface {
	Register(ctx context.Context, req authModel.RegisterRequest) (*authModel.User, authModel.TokenPair, error)
	Login(ctx context.Context, req authModel.LoginRequest) (*authModel.User, authModel.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (authModel.TokenPair, error)
	Profile(ctx context.Context, userID id.UserID) (*authModel.User, error)
	UpdateProfile(ctx context.Context, userID id.UserID, req authModel.UpdateProfileRequest) (*authModel.User, error)
}

type Handler struct {
	logger       *slog.Logger
	auth         Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(auth Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		auth:         auth,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the account routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	authRouter := chi.NewRouter()
	authRouter.Use(middleware.Recovery(h.logger))
	authRouter.Use(middleware.RequestID)
	authRouter.Use(middleware.Logger(h.logger))
	authRouter.Use(middleware.Timeout(15 * time.Second))
	authRouter.Use(middleware.ContentTypeJSON)
	authRouter.Use(middleware.LatencyMiddleware(h.metrics))

	authRouter.Post("/register", h.handleRegister)
	authRouter.Post("/login", h.handleLogin)
	authRouter.Post("/refresh", h.handleRefresh)

	authRouter.Group(func(private chi.Router) {
		private.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		private.Get("/profile", h.handleGetProfile)
		private.Patch("/profile", h.handleUpdateProfile)
	})

	r.Mount("/auth", authRouter)
}

type authResponse struct {
	User   authModel.Profile   `json:"user"`
	Tokens authModel.TokenPair `json:"tokens"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authModel.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	u, tokens, err := h.auth.Register(ctx, req)
	if err != nil {
		h.logWarnOrError(ctx, "register failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, authResponse{User: authModel.ProfileOf(u), Tokens: tokens})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authModel.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	u, tokens, err := h.auth.Login(ctx, req)
	if err != nil {
		h.logWarnOrError(ctx, "login failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, authResponse{User: authModel.ProfileOf(u), Tokens: tokens})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "refresh_token is required"))
		return
	}

	tokens, err := h.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.logWarnOrError(ctx, "token refresh failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	u, err := h.auth.Profile(ctx, userID)
	if err != nil {
		h.logWarnOrError(ctx, "load profile failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, authModel.ProfileOf(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req authModel.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	u, err := h.auth.UpdateProfile(ctx, userID, req)
	if err != nil {
		h.logWarnOrError(ctx, "update profile failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, authModel.ProfileOf(u))
}

// logWarnOrError keeps client mistakes at warn level and reserves error for
// unexpected failures.
func (h *Handler) logWarnOrError(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
