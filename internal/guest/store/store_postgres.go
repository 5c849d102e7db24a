package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"quizdeck/internal/guest/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore persists guest identities. The increment and the transfer
// claim are single conditional statements so concurrent requests cannot
// overshoot the lifetime cap or transfer the same identity twice.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const guestColumns = `id, origin_address, token, documents_created, is_blocked,
	transferred_to_user, transferred_at, last_activity, created_at`

func scanGuest(row interface{ Scan(...any) error }) (*models.GuestIdentity, error) {
	var g models.GuestIdentity
	var rawID string
	var transferredTo sql.NullString
	var transferredAt sql.NullTime
	err := row.Scan(&rawID, &g.OriginAddress, &g.Token, &g.DocumentsCreated, &g.IsBlocked,
		&transferredTo, &transferredAt, &g.LastActivity, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.ID = id.GuestID(rawID)
	if transferredTo.Valid {
		g.TransferredTo = id.UserID(transferredTo.String)
	}
	if transferredAt.Valid {
		g.TransferredAt = transferredAt.Time
	}
	return &g, nil
}

func (s *PostgresStore) Create(ctx context.Context, g *models.GuestIdentity) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO guest_identities (id, origin_address, token)
		VALUES ($1, $2, $3)`,
		g.ID.String(), g.OriginAddress, g.Token,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return dErrors.New(dErrors.CodeConflict, "guest identity already exists for origin")
		}
		return fmt.Errorf("create guest identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, guestID id.GuestID) (*models.GuestIdentity, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guest_identities WHERE id = $1`, guestID.String())
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get guest by id: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GetByOrigin(ctx context.Context, origin string) (*models.GuestIdentity, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guest_identities WHERE origin_address = $1`, origin)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get guest by origin: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*models.GuestIdentity, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guest_identities WHERE token = $1`, token)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get guest by token: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) TouchActivity(ctx context.Context, guestID id.GuestID) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`UPDATE guest_identities SET last_activity = $2 WHERE id = $1`,
		guestID.String(), requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("touch guest activity: %w", err)
	}
	return nil
}

// IncrementDocuments bumps the lifetime counter and flips the block flag in
// the same statement once the cap is consumed. It returns the new counter
// and flag.
func (s *PostgresStore) IncrementDocuments(ctx context.Context, guestID id.GuestID) (int, bool, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		UPDATE guest_identities
		SET documents_created = documents_created + 1,
		    is_blocked = documents_created + 1 >= $2,
		    last_activity = now()
		WHERE id = $1
		RETURNING documents_created, is_blocked`,
		guestID.String(), id.GuestDocumentCap,
	)
	var count int
	var blocked bool
	if err := row.Scan(&count, &blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, dErrors.New(dErrors.CodeNotFound, "guest identity not found")
		}
		return 0, false, fmt.Errorf("increment guest documents: %w", err)
	}
	return count, blocked, nil
}

// ClaimTransfer marks the identity as transferred to userID. The WHERE
// clause makes the claim first-writer-wins: a second call reports conflict.
func (s *PostgresStore) ClaimTransfer(ctx context.Context, guestID id.GuestID, userID id.UserID) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE guest_identities
		SET transferred_to_user = $2, transferred_at = now()
		WHERE id = $1 AND transferred_to_user IS NULL`,
		guestID.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("claim transfer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim transfer rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeConflict, "guest work already transferred")
	}
	return nil
}

// ReassignWork moves the guest's documents, lessons and answers onto the
// user and returns what moved. Callers run it inside the transfer
// transaction.
func (s *PostgresStore) ReassignWork(ctx context.Context, guestID id.GuestID, userID id.UserID) (*models.TransferResult, error) {
	q := txcontext.Q(ctx, s.db)
	result := &models.TransferResult{GuestID: guestID, UserID: userID}

	// Lessons first: guest lessons are reachable only through the guest's
	// documents, so reassign them before the document rows are detached.
	lessonRows, err := q.QueryContext(ctx, `
		UPDATE lessons
		SET user_id = $2
		WHERE user_id IS NULL
		  AND document_id IN (SELECT id FROM documents WHERE guest_id = $1)
		RETURNING id, title, score, status`,
		guestID.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("reassign lessons: %w", err)
	}
	defer lessonRows.Close()
	for lessonRows.Next() {
		var l models.TransferredLesson
		var rawID string
		if err := lessonRows.Scan(&rawID, &l.Title, &l.Score, &l.Status); err != nil {
			return nil, fmt.Errorf("scan reassigned lesson: %w", err)
		}
		l.ID = id.LessonID(rawID)
		result.Lessons = append(result.Lessons, l)
	}
	if err := lessonRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reassigned lessons: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		UPDATE documents
		SET user_id = $2, guest_id = NULL, updated_at = now()
		WHERE guest_id = $1
		RETURNING id`,
		guestID.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("reassign documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("scan reassigned document: %w", err)
		}
		result.DocumentIDs = append(result.DocumentIDs, id.DocumentID(docID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reassigned documents: %w", err)
	}
	result.Documents = len(result.DocumentIDs)

	answerRes, err := q.ExecContext(ctx, `
		UPDATE user_answers
		SET user_id = $2, guest_id = NULL
		WHERE guest_id = $1`,
		guestID.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("reassign answers: %w", err)
	}
	answers, _ := answerRes.RowsAffected()
	result.Answers = int(answers)

	return result, nil
}
