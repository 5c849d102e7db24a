// Package service owns the billing lifecycle: subscription create and
// cancel through the provider port, and the webhook application rules that
// are the only writer of provider state.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"quizdeck/internal/audit"
	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/subscription/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
	txcontext "quizdeck/pkg/tx"
)

// Store is the persistence surface over the user row's billing columns.
type Store interface {
	GetByUserID(ctx context.Context, userID id.UserID) (*models.State, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.State, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.State, error)
	Save(ctx context.Context, state *models.State) error
	ClaimPending(ctx context.Context, userID id.UserID) error
	ReleasePending(ctx context.Context, userID id.UserID) error
}

// ProviderSubscription is the provider's view of one subscription.
type ProviderSubscription struct {
	ID                string
	Status            string
	Interval          string
	ClientSecret      string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// Provider is the billing provider port. The production wiring backs it
// with the provider's API; tests use a fake.
type Provider interface {
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*ProviderSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

type Service struct {
	store    Store
	provider Provider
	db       *sql.DB
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    audit.Publisher
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

func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func New(store Store, provider Provider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("subscription store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("billing provider is required")
	}
	svc := &Service{
		store:    store,
		provider: provider,
		logger:   slog.Default(),
		audit:    audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Info returns the derived subscription view for a user.
func (s *Service) Info(ctx context.Context, userID id.UserID) (*models.State, error) {
	return s.store.GetByUserID(ctx, userID)
}

// Checkout is what a successful subscription creation hands back to the
// client to finish payment.
type Checkout struct {
	SubscriptionID string `json:"subscription_id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
}

// Create starts a subscription for the user. Duplicate concurrent creations
// are rejected through a claim on the user row, and a subscription the
// provider still considers live is a conflict.
func (s *Service) Create(ctx context.Context, userID id.UserID, priceID string) (*Checkout, error) {
	if priceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "price_id is required")
	}
	state, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ClaimPending(ctx, userID); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.store.ReleasePending(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "release pending subscription claim failed",
				"user_id", userID.String(),
				"error", err,
			)
		}
	}()

	if state.SubscriptionID != "" {
		existing, err := s.provider.GetSubscription(ctx, state.SubscriptionID)
		if err == nil && isLive(existing.Status) {
			return nil, dErrors.New(dErrors.CodeConflict, "a subscription already exists")
		}
		// Gone on the provider side; fall through and create a new one.
	}

	customerID := state.CustomerID
	if customerID == "" {
		customerID, err = s.provider.EnsureCustomer(ctx, state.Email, "")
		if err != nil {
			return nil, err
		}
		state.CustomerID = customerID
		if err := s.store.Save(ctx, state); err != nil {
			return nil, err
		}
	}

	sub, err := s.provider.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		return nil, err
	}

	state.SubscriptionID = sub.ID
	state.Status = sub.Status
	state.Interval = sub.Interval
	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription created",
		"user_id", userID.String(),
		"subscription_id", sub.ID,
		"status", sub.Status,
	)
	return &Checkout{SubscriptionID: sub.ID, ClientSecret: sub.ClientSecret, Status: sub.Status}, nil
}

// Cancel schedules the user's subscription to end at the current period's
// close. Premium stays on until then; the webhook flips it off later.
func (s *Service) Cancel(ctx context.Context, userID id.UserID) (time.Time, error) {
	state, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if state.SubscriptionID == "" {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "no active subscription")
	}

	sub, err := s.provider.CancelAtPeriodEnd(ctx, state.SubscriptionID)
	if err != nil {
		return time.Time{}, err
	}

	state.Status = sub.Status
	state.CancelAtPeriodEnd = true
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		state.CurrentPeriodEnd = &end
	}
	if err := s.store.Save(ctx, state); err != nil {
		return time.Time{}, err
	}

	s.logger.InfoContext(ctx, "subscription cancellation scheduled",
		"user_id", userID.String(),
		"subscription_id", state.SubscriptionID,
	)
	return sub.CurrentPeriodEnd, nil
}

// Event is one provider notification, already verified and decoded by the
// transport layer.
type Event struct {
	Type              string
	CustomerID        string
	SubscriptionID    string
	Status            string
	Interval          string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// Event types the webhook applies.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// ApplyEvent folds one provider event into the user's billing state. An
// event for an unknown user is logged and dropped so the provider does not
// retry it forever.
func (s *Service) ApplyEvent(ctx context.Context, event Event) error {
	var err error
	switch event.Type {
	case EventSubscriptionCreated:
		err = s.applySubscriptionCreated(ctx, event)
	case EventSubscriptionUpdated:
		err = s.applySubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		err = s.applySubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		err = s.applyInvoice(ctx, event, models.StatusActive, true)
	case EventInvoiceFailed:
		err = s.applyInvoice(ctx, event, models.StatusPastDue, false)
	default:
		s.logger.DebugContext(ctx, "ignoring billing event", "type", event.Type)
		return nil
	}
	if dErrors.CodeOf(err) == dErrors.CodeNotFound {
		s.logger.WarnContext(ctx, "billing event for unknown user dropped",
			"type", event.Type,
			"customer_id", event.CustomerID,
			"subscription_id", event.SubscriptionID,
		)
		return nil
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.BillingEvents.WithLabelValues(event.Type).Inc()
	}
	s.audit.Emit(ctx, audit.Event{
		Subject: "billing:" + event.SubscriptionID,
		Action:  audit.ActionSubscriptionSync,
		Reason:  event.Type,
	})
	return nil
}

func (s *Service) applySubscriptionCreated(ctx context.Context, event Event) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		state, err := s.store.GetByCustomerID(ctx, event.CustomerID)
		if err != nil {
			return err
		}
		state.SubscriptionID = event.SubscriptionID
		state.Status = event.Status
		state.Interval = event.Interval
		state.CurrentPeriodEnd = event.CurrentPeriodEnd
		state.IsPremium = event.Status == models.StatusActive || event.Status == models.StatusTrialing
		return s.store.Save(ctx, state)
	})
}

func (s *Service) applySubscriptionUpdated(ctx context.Context, event Event) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		state, err := s.store.GetBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		state.Status = event.Status
		state.CancelAtPeriodEnd = event.CancelAtPeriodEnd
		if event.CanceledAt != nil {
			state.CanceledAt = event.CanceledAt
		}
		if event.CurrentPeriodEnd != nil {
			state.CurrentPeriodEnd = event.CurrentPeriodEnd
		}

		// A canceled subscription keeps premium until the paid period runs
		// out.
		now := requestcontext.Now(ctx)
		if event.Status == models.StatusCanceled {
			state.IsPremium = state.CurrentPeriodEnd != nil && state.CurrentPeriodEnd.After(now)
		} else {
			state.IsPremium = event.Status == models.StatusActive || event.Status == models.StatusTrialing
		}
		return s.store.Save(ctx, state)
	})
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event Event) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		state, err := s.store.GetBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		state.Status = models.StatusCanceled
		state.IsPremium = false
		state.SubscriptionID = ""
		state.CurrentPeriodEnd = nil
		state.Interval = ""
		state.CancelAtPeriodEnd = false
		// CanceledAt stays for history.
		return s.store.Save(ctx, state)
	})
}

func (s *Service) applyInvoice(ctx context.Context, event Event, status string, premium bool) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		state, err := s.store.GetBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		state.Status = status
		state.IsPremium = premium
		return s.store.Save(ctx, state)
	})
}

func isLive(status string) bool {
	switch status {
	case models.StatusActive, models.StatusTrialing, "incomplete":
		return true
	}
	return false
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}
