// Package service implements anonymous visitor identity and the guest-to-
// account transfer.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"quizdeck/internal/audit"
	"quizdeck/internal/guest/models"
	"quizdeck/internal/platform/metrics"
	"quizdeck/pkg/device"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
	txcontext "quizdeck/pkg/tx"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, g *models.GuestIdentity) error
	GetByID(ctx context.Context, guestID id.GuestID) (*models.GuestIdentity, error)
	GetByOrigin(ctx context.Context, origin string) (*models.GuestIdentity, error)
	GetByToken(ctx context.Context, token string) (*models.GuestIdentity, error)
	TouchActivity(ctx context.Context, guestID id.GuestID) error
	IncrementDocuments(ctx context.Context, guestID id.GuestID) (int, bool, error)
	ClaimTransfer(ctx context.Context, guestID id.GuestID, userID id.UserID) error
	ReassignWork(ctx context.Context, guestID id.GuestID, userID id.UserID) (*models.TransferResult, error)
}

type Service struct {
	store   Store
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Publisher
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

// WithDB enables transactional transfer. Without it the transfer steps run
// against the store directly, which is what the in-memory tests want.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("guest store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
		audit:  audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Resolve returns the guest identity for this visitor, creating one on first
// contact. The origin address is authoritative: an existing identity for the
// origin wins even when the request carries a token minted elsewhere. The
// token is consulted only when the origin is unknown, so a visitor whose
// address changed keeps their identity instead of minting a fresh allowance.
func (s *Service) Resolve(ctx context.Context, origin, token string) (*models.GuestIdentity, error) {
	if origin == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "origin address is required")
	}

	g, err := s.store.GetByOrigin(ctx, origin)
	if err == nil {
		_ = s.store.TouchActivity(ctx, g.ID)
		return g, nil
	}
	if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, err
	}

	if token != "" {
		g, err = s.store.GetByToken(ctx, token)
		if err == nil {
			_ = s.store.TouchActivity(ctx, g.ID)
			return g, nil
		}
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			return nil, err
		}
	}

	g = &models.GuestIdentity{
		ID:            id.NewGuestID(),
		OriginAddress: origin,
		Token:         uuid.NewString(),
	}
	if err := s.store.Create(ctx, g); err != nil {
		// Lost a race with another request from the same origin.
		if dErrors.Is(err, dErrors.CodeConflict) {
			return s.store.GetByOrigin(ctx, origin)
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "guest identity created",
		"guest_id", g.ID.String(),
		"origin", origin,
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	)
	return g, nil
}

// CanCreateDocument reports whether the guest still has lifetime allowance.
func (s *Service) CanCreateDocument(ctx context.Context, g *models.GuestIdentity) error {
	if g.IsBlocked || g.DocumentsCreated >= id.GuestDocumentCap {
		s.metrics.IncQuotaDenial("guest_lifetime")
		s.audit.Emit(ctx, audit.Event{
			Subject: id.GuestIdentity(g.ID).String(),
			Action:  audit.ActionQuotaDenied,
			Reason:  "guest_lifetime",
		})
		return dErrors.WithAction(
			dErrors.New(dErrors.CodeQuotaExceeded, "guest allowance used, sign up to continue"),
			dErrors.ActionSignupRequired,
		)
	}
	return nil
}

// CanCreateByID is CanCreateDocument keyed by identity, for callers that
// hold only the id.
func (s *Service) CanCreateByID(ctx context.Context, guestID id.GuestID) error {
	g, err := s.store.GetByID(ctx, guestID)
	if err != nil {
		return err
	}
	return s.CanCreateDocument(ctx, g)
}

// RecordDocumentCreated consumes one unit of the guest's lifetime allowance
// and blocks the identity once the cap is reached.
func (s *Service) RecordDocumentCreated(ctx context.Context, guestID id.GuestID) error {
	count, blocked, err := s.store.IncrementDocuments(ctx, guestID)
	if err != nil {
		return err
	}
	if blocked {
		s.audit.Emit(ctx, audit.Event{
			Subject: id.GuestIdentity(guestID).String(),
			Action:  audit.ActionGuestBlocked,
			Reason:  fmt.Sprintf("lifetime cap reached at %d", count),
		})
	}
	return nil
}

// Transfer moves everything the guest behind token created onto the account
// userID. It is one-shot: the claim and the reassignment commit together,
// and a second call reports conflict.
func (s *Service) Transfer(ctx context.Context, token string, userID id.UserID) (*models.TransferResult, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "guest token is required")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}

	g, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if g.Transferred() {
		return nil, dErrors.New(dErrors.CodeConflict, "guest work already transferred")
	}

	var result *models.TransferResult
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.store.ClaimTransfer(ctx, g.ID, userID); err != nil {
			return err
		}
		result, err = s.store.ReassignWork(ctx, g.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.GuestTransfers.Inc()
	}
	s.audit.Emit(ctx, audit.Event{
		Subject: id.RegisteredIdentity(userID).String(),
		Action:  audit.ActionTransferCompleted,
		Reason:  fmt.Sprintf("from %s", id.GuestIdentity(g.ID).String()),
	})
	s.logger.InfoContext(ctx, "guest work transferred",
		"guest_id", g.ID.String(),
		"user_id", userID.String(),
		"documents", result.Documents,
		"lessons", len(result.Lessons),
	)
	return result, nil
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}
