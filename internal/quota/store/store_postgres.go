package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quizdeck/internal/quota/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore reads and writes the daily counter columns on the users
// table. It is pure I/O; the window reset decision lives in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetUsage(ctx context.Context, userID id.UserID) (*models.UserUsage, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT is_premium, quiz_count_today, last_quiz_date, attempts_count_today, last_attempt_date
		FROM users
		WHERE id = $1`,
		userID.String(),
	)

	usage := models.UserUsage{UserID: userID}
	var quizDate, attemptDate sql.NullTime
	err := row.Scan(&usage.IsPremium, &usage.CreatedCount, &quizDate, &usage.AttemptCount, &attemptDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	if quizDate.Valid {
		usage.CreatedDate = quizDate.Time
	}
	if attemptDate.Valid {
		usage.AttemptDate = attemptDate.Time
	}
	return &usage, nil
}

func (s *PostgresStore) SaveCreationWindow(ctx context.Context, userID id.UserID, count int, date time.Time) error {
	return s.saveWindow(ctx, userID, "quiz_count_today", "last_quiz_date", count, date)
}

func (s *PostgresStore) SaveAttemptWindow(ctx context.Context, userID id.UserID, count int, date time.Time) error {
	return s.saveWindow(ctx, userID, "attempts_count_today", "last_attempt_date", count, date)
}

func (s *PostgresStore) saveWindow(ctx context.Context, userID id.UserID, countCol, dateCol string, count int, date time.Time) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET `+countCol+` = $2, `+dateCol+` = $3, updated_at = now() WHERE id = $1`,
		userID.String(), count, date,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", countCol, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save %s rows: %w", countCol, err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return nil
}
