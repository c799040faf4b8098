package code

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verity/internal/identity"
	"verity/internal/sentinel"
	"verity/internal/verification/models"
)

// PostgresStore persists verification codes in PostgreSQL.
// This store is pure I/O; lifecycle rules (expiry, attempt ceilings) belong in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed code store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const codeColumns = `id, email, user_id, payload, code_hash, operation, attempts, max_attempts, verified, verified_at, invalidated, created_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, code *models.VerificationCode) error {
	if code == nil {
		return fmt.Errorf("code is required")
	}
	query := `
		INSERT INTO verification_codes (` + codeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.ID, nullString(code.Email), code.UserID, nullString(code.Payload),
		code.CodeHash, string(code.Operation), code.Attempts, code.MaxAttempts,
		code.Verified, code.VerifiedAt, code.Invalidated, code.CreatedAt, code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}
	return nil
}

// FindActive returns the most recently created code for the identifier and
// operation that is neither verified nor invalidated. Expiry is checked by
// the service so "expired" and "not found" stay distinguishable.
func (s *PostgresStore) FindActive(ctx context.Context, ident identity.Identifier, op models.OperationType) (*models.VerificationCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM verification_codes
		WHERE ` + identClause(ident) + ` AND operation = $2 AND NOT verified AND NOT invalidated
		ORDER BY created_at DESC
		LIMIT 1
	`
	code, err := scanCode(s.db.QueryRowContext(ctx, query, ident.Value(), string(op)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active code not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active code: %w", err)
	}
	return code, nil
}

func (s *PostgresStore) Update(ctx context.Context, code *models.VerificationCode) error {
	query := `
		UPDATE verification_codes
		SET attempts = $2, verified = $3, verified_at = $4, invalidated = $5
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		code.ID, code.Attempts, code.Verified, code.VerifiedAt, code.Invalidated,
	)
	if err != nil {
		return fmt.Errorf("update verification code: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("code not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// InvalidateActive marks every non-verified, non-invalidated code for the
// pair as invalidated. Returns the number of rows touched.
func (s *PostgresStore) InvalidateActive(ctx context.Context, ident identity.Identifier, op models.OperationType) (int64, error) {
	query := `
		UPDATE verification_codes
		SET invalidated = TRUE
		WHERE ` + identClause(ident) + ` AND operation = $2 AND NOT verified AND NOT invalidated
	`
	res, err := s.db.ExecContext(ctx, query, ident.Value(), string(op))
	if err != nil {
		return 0, fmt.Errorf("invalidate active codes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate active codes: %w", err)
	}
	return n, nil
}

// DeleteCreatedBefore removes codes older than the cutoff regardless of
// status. This is the audit-retention sweep, a superset of expiry.
func (s *PostgresStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old codes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old codes: %w", err)
	}
	return n, nil
}

func identClause(ident identity.Identifier) string {
	if ident.IsEmail() {
		return "email = $1"
	}
	return "user_id = $1::uuid"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(row rowScanner) (*models.VerificationCode, error) {
	var (
		c     models.VerificationCode
		email sql.NullString
		pay   sql.NullString
		op    string
	)
	err := row.Scan(
		&c.ID, &email, &c.UserID, &pay, &c.CodeHash, &op,
		&c.Attempts, &c.MaxAttempts, &c.Verified, &c.VerifiedAt,
		&c.Invalidated, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Payload = pay.String
	c.Operation = models.OperationType(op)
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
