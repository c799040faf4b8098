package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verity/internal/sentinel"
	"verity/internal/verification/models"
)

// PostgresStore persists pending registrations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed pending-registration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pendingColumns = `id, email, credential_hash, name, phone, created_at, expires_at`

// Save upserts by email: a repeated registration start replaces the earlier
// staging record rather than accumulating duplicates.
func (s *PostgresStore) Save(ctx context.Context, reg *models.PendingRegistration) error {
	if reg == nil {
		return fmt.Errorf("pending registration is required")
	}
	query := `
		INSERT INTO pending_registrations (` + pendingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			id = EXCLUDED.id,
			credential_hash = EXCLUDED.credential_hash,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		reg.ID, reg.Email, reg.CredentialHash, reg.Name,
		nullString(reg.Phone), reg.CreatedAt, reg.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save pending registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.PendingRegistration, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_registrations WHERE email = $1`
	reg, err := scanPending(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find pending registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pending registration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// DeleteExpired purges staging records whose expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_registrations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired pending registrations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired pending registrations: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*models.PendingRegistration, error) {
	var (
		r     models.PendingRegistration
		phone sql.NullString
	)
	err := row.Scan(&r.ID, &r.Email, &r.CredentialHash, &r.Name, &phone, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	r.Phone = phone.String
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
