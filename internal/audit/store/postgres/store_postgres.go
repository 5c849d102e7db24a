package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"quizdeck/internal/audit"
	txcontext "quizdeck/pkg/tx"
)

// Store persists audit events in the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (occurred_at, subject, action, reason)
		VALUES ($1, $2, $3, $4)`,
		event.Timestamp, event.Subject, event.Action, event.Reason,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `
		SELECT occurred_at, subject, action, reason
		FROM audit_events
		WHERE subject = $1
		ORDER BY occurred_at DESC
		LIMIT $2`,
		subject, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.Timestamp, &e.Subject, &e.Action, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
