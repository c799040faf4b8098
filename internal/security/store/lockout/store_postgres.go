package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verity/internal/security/models"
)

// PostgresStore persists lockout rows in PostgreSQL.
// This store is pure I/O; the resolve-if-expired rule lives on the model.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed lockout store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const lockoutColumns = `identifier, reason, locked_at, expires_at, unlocked, unlocked_at`

// Get returns the row for the key, or nil when none exists.
func (s *PostgresStore) Get(ctx context.Context, key string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE identifier = $1`
	record, err := scanLockout(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account lockout: %w", err)
	}
	return record, nil
}

// Upsert creates or replaces the single row for the key.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.AccountLockout) error {
	query := `
		INSERT INTO account_lockouts (` + lockoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identifier) DO UPDATE SET
			reason = EXCLUDED.reason,
			locked_at = EXCLUDED.locked_at,
			expires_at = EXCLUDED.expires_at,
			unlocked = EXCLUDED.unlocked,
			unlocked_at = EXCLUDED.unlocked_at
	`
	_, err := s.db.ExecContext(ctx, query,
		record.Identifier, record.Reason, record.LockedAt,
		record.ExpiresAt, record.Unlocked, record.UnlockedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert account lockout: %w", err)
	}
	return nil
}

// ListUnresolvedExpired returns rows still marked locked whose expiry has
// passed, for the bulk sweep.
func (s *PostgresStore) ListUnresolvedExpired(ctx context.Context, now time.Time) ([]*models.AccountLockout, error) {
	query := `
		SELECT ` + lockoutColumns + ` FROM account_lockouts
		WHERE NOT unlocked AND expires_at <= $1
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired lockouts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*models.AccountLockout
	for rows.Next() {
		record, err := scanLockout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account lockout: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired lockouts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLockout(row rowScanner) (*models.AccountLockout, error) {
	var l models.AccountLockout
	err := row.Scan(&l.Identifier, &l.Reason, &l.LockedAt, &l.ExpiresAt, &l.Unlocked, &l.UnlockedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
