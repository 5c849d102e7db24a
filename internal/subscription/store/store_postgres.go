package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizdeck/internal/subscription/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore reads and writes the billing columns on the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const stateColumns = `id, email, is_premium, stripe_customer_id, stripe_subscription_id,
	subscription_status, subscription_interval, current_period_end,
	cancel_at_period_end, canceled_at, subscription_pending`

func scanState(row *sql.Row) (*models.State, error) {
	var state models.State
	var userID string
	var periodEnd, canceledAt sql.NullTime
	err := row.Scan(
		&userID, &state.Email, &state.IsPremium, &state.CustomerID, &state.SubscriptionID,
		&state.Status, &state.Interval, &periodEnd,
		&state.CancelAtPeriodEnd, &canceledAt, &state.Pending,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription state: %w", err)
	}
	state.UserID = id.UserID(userID)
	if periodEnd.Valid {
		state.CurrentPeriodEnd = &periodEnd.Time
	}
	if canceledAt.Valid {
		state.CanceledAt = &canceledAt.Time
	}
	return &state, nil
}

func (s *PostgresStore) GetByUserID(ctx context.Context, userID id.UserID) (*models.State, error) {
	return scanState(txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM users WHERE id = $1`, userID.String()))
}

func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*models.State, error) {
	return scanState(txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM users WHERE stripe_customer_id = $1`, customerID))
}

func (s *PostgresStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.State, error) {
	return scanState(txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM users WHERE stripe_subscription_id = $1`, subscriptionID))
}

// Save writes every billing field of the state back to the user row.
func (s *PostgresStore) Save(ctx context.Context, state *models.State) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET
			is_premium = $2,
			stripe_customer_id = $3,
			stripe_subscription_id = $4,
			subscription_status = $5,
			subscription_interval = $6,
			current_period_end = $7,
			cancel_at_period_end = $8,
			canceled_at = $9,
			updated_at = now()
		WHERE id = $1`,
		state.UserID.String(), state.IsPremium, state.CustomerID, state.SubscriptionID,
		state.Status, state.Interval, state.CurrentPeriodEnd,
		state.CancelAtPeriodEnd, state.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save subscription state rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return nil
}

// ClaimPending atomically marks a subscription creation as in flight for the
// user. A second concurrent claim sees zero rows updated and fails with a
// conflict, which replaces any in-process locking.
func (s *PostgresStore) ClaimPending(ctx context.Context, userID id.UserID) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET subscription_pending = TRUE, updated_at = now()
		WHERE id = $1 AND subscription_pending = FALSE`,
		userID.String(),
	)
	if err != nil {
		return fmt.Errorf("claim pending subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim pending subscription rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeConflict, "a subscription creation is already in progress")
	}
	return nil
}

func (s *PostgresStore) ReleasePending(ctx context.Context, userID id.UserID) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET subscription_pending = FALSE, updated_at = now()
		WHERE id = $1`,
		userID.String(),
	)
	if err != nil {
		return fmt.Errorf("release pending subscription: %w", err)
	}
	return nil
}
