package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"quizdeck/internal/auth/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore persists accounts in the users table. It owns only the
// identity and profile columns; quota counters and billing state are managed
// by their own stores against the same rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, username, first_name, last_name, password_hash,
	education_level, is_premium, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var rawID string
	err := row.Scan(&rawID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.EducationLevel, &u.IsPremium, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(rawID)
	return &u, nil
}

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, email, username, first_name, last_name, password_hash, education_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID.String(), u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, u.EducationLevel,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID.String())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, u *models.User) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET username = $2, first_name = $3, last_name = $4, education_level = $5, updated_at = now()
		WHERE id = $1`,
		u.ID.String(), u.Username, u.FirstName, u.LastName, u.EducationLevel,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
