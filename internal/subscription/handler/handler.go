// Package handler exposes the billing surface: the provider webhook, the
// subscription lifecycle endpoints, and the entitlements view that combines
// the derived role with the day's remaining allowances.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/middleware"
	quotaModel "quizdeck/internal/quota/models"
	"quizdeck/internal/subscription/models"
	subService "quizdeck/internal/subscription/service"
	"quizdeck/internal/transport/http/shared"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Service defines the subscription operations the handler depends on.
type Service interface {
	Info(ctx context.Context, userID id.UserID) (*models.State, error)
	Create(ctx context.Context, userID id.UserID, priceID string) (*subService.Checkout, error)
	Cancel(ctx context.Context, userID id.UserID) (time.Time, error)
	ApplyEvent(ctx context.Context, event subService.Event) error
}

// Allowances reports the day's usage counters for the entitlements view.
type Allowances interface {
	Snapshot(ctx context.Context, userID id.UserID) (*quotaModel.Snapshot, error)
}

type Handler struct {
	logger        *slog.Logger
	subscriptions Service
	allowances    Allowances
	metrics       *metrics.Metrics
	jwtValidator  middleware.JWTValidator
	webhookSecret string
}

func New(subscriptions Service, allowances Allowances, webhookSecret string, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:        logger,
		subscriptions: subscriptions,
		allowances:    allowances,
		metrics:       metrics,
		jwtValidator:  jwtValidator,
		webhookSecret: webhookSecret,
	}
}

// Register registers the billing routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	billingRouter := chi.NewRouter()
	billingRouter.Use(middleware.Recovery(h.logger))
	billingRouter.Use(middleware.RequestID)
	billingRouter.Use(middleware.Logger(h.logger))
	billingRouter.Use(middleware.Timeout(30 * time.Second))
	billingRouter.Use(middleware.LatencyMiddleware(h.metrics))

	// The webhook carries the provider's own content type and signature; it
	// stays outside the JSON middleware.
	billingRouter.Post("/webhook", h.handleWebhook)

	billingRouter.Group(func(private chi.Router) {
		private.Use(middleware.ContentTypeJSON)
		private.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		private.Get("/subscription", h.handleInfo)
		private.Post("/subscription", h.handleCreate)
		private.Delete("/subscription", h.handleCancel)
		private.Get("/entitlements", h.handleEntitlements)
	})

	r.Mount("/billing", billingRouter)
}

const maxWebhookBody = 64 * 1024

// handleWebhook verifies the provider signature and folds the event into
// the user's billing state. Unknown event types and unknown users are
// acknowledged so the provider stops retrying them.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable payload"))
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook signature rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signature"))
		return
	}

	decoded, err := decodeEvent(event)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook payload rejected",
			"request_id", middleware.GetRequestID(ctx),
			"type", string(event.Type),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid payload"))
		return
	}

	if err := h.subscriptions.ApplyEvent(ctx, decoded); err != nil {
		h.logger.ErrorContext(ctx, "apply billing event failed",
			"request_id", middleware.GetRequestID(ctx),
			"type", string(event.Type),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decodeEvent maps the provider's event envelope onto the service's event
// type.
func decodeEvent(event stripe.Event) (subService.Event, error) {
	decoded := subService.Event{Type: string(event.Type)}

	switch string(event.Type) {
	case subService.EventSubscriptionCreated,
		subService.EventSubscriptionUpdated,
		subService.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return decoded, err
		}
		decoded.SubscriptionID = sub.ID
		decoded.Status = string(sub.Status)
		if sub.Customer != nil {
			decoded.CustomerID = sub.Customer.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			decoded.CurrentPeriodEnd = &end
		}
		decoded.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.CanceledAt > 0 {
			canceled := time.Unix(sub.CanceledAt, 0).UTC()
			decoded.CanceledAt = &canceled
		}
		if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil && sub.Items.Data[0].Price.Recurring != nil {
			decoded.Interval = string(sub.Items.Data[0].Price.Recurring.Interval)
		}
	case subService.EventInvoicePaid, subService.EventInvoiceFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return decoded, err
		}
		if invoice.Subscription != nil {
			decoded.SubscriptionID = invoice.Subscription.ID
		}
	}
	return decoded, nil
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	state, err := h.subscriptions.Info(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, models.InfoOf(state))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req struct {
		PriceID string `json:"price_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	checkout, err := h.subscriptions.Create(ctx, userID, req.PriceID)
	if err != nil {
		h.logger.WarnContext(ctx, "create subscription failed",
			"request_id", middleware.GetRequestID(ctx),
			"user_id", userID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, checkout)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	cancelAt, err := h.subscriptions.Cancel(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel subscription failed",
			"request_id", middleware.GetRequestID(ctx),
			"user_id", userID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "your subscription will end at the close of the current period",
		"cancel_at": cancelAt,
	})
}

type entitlementsResponse struct {
	Subscription models.Info          `json:"subscription"`
	Usage        *quotaModel.Snapshot `json:"usage"`
	Limits       limitsView           `json:"limits"`
}

type limitsView struct {
	MaxQuestions   int   `json:"max_questions"`
	QuizzesPerDay  int   `json:"quizzes_per_day"`
	AttemptsPerDay int   `json:"attempts_per_day"`
	MaxFileSizeMB  int64 `json:"max_file_size_mb"`
	CanSaveResults bool  `json:"can_save_results"`
}

// handleEntitlements combines the derived subscription view with the day's
// usage and the plan's limits.
func (h *Handler) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	state, err := h.subscriptions.Info(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	usage, err := h.allowances.Snapshot(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	limits := id.LimitsFor(state.Role())
	shared.WriteJSON(w, http.StatusOK, entitlementsResponse{
		Subscription: models.InfoOf(state),
		Usage:        usage,
		Limits: limitsView{
			MaxQuestions:   limits.MaxQuestions,
			QuizzesPerDay:  limits.MaxQuizzesPerDay,
			AttemptsPerDay: limits.MaxAttemptsPerDay,
			MaxFileSizeMB:  limits.MaxFileSizeMB,
			CanSaveResults: limits.CanSaveResults,
		},
	})
}
