package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizdeck/internal/document/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore persists documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, user_id, guest_id, title, file_type, size_bytes, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	var rawID string
	var userID, guestID sql.NullString
	err := row.Scan(&rawID, &userID, &guestID, &d.Title, &d.FileType, &d.SizeBytes,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = id.DocumentID(rawID)
	if userID.Valid {
		d.UserID = id.UserID(userID.String)
	}
	if guestID.Valid {
		d.GuestID = id.GuestID(guestID.String)
	}
	return &d, nil
}

func nullableID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Document) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO documents (id, user_id, guest_id, title, file_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID.String(), nullableID(d.UserID.String()), nullableID(d.GuestID.String()),
		d.Title, d.FileType, d.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID.String())
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Document, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list documents for user: %w", err)
	}
	return collectDocuments(rows)
}

func (s *PostgresStore) ListForGuest(ctx context.Context, guestID id.GuestID) ([]*models.Document, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE guest_id = $1 ORDER BY created_at DESC`,
		guestID.String())
	if err != nil {
		return nil, fmt.Errorf("list documents for guest: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]*models.Document, error) {
	defer rows.Close()
	var documents []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

// Delete removes the document; questions, lessons and answers beneath it go
// with it through the schema's cascade rules.
func (s *PostgresStore) Delete(ctx context.Context, docID id.DocumentID) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1`, docID.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return nil
}
