package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"verity/internal/ratelimit/models"
)

// PostgresStore persists rate-limit windows in PostgreSQL.
// This store is pure I/O; window arithmetic belongs in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed rate-limit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the record for the key, or nil when none exists.
func (s *PostgresStore) Get(ctx context.Context, key string) (*models.RateLimitRecord, error) {
	query := `
		SELECT identifier, attempts, window_start, expires_at
		FROM rate_limits
		WHERE identifier = $1
	`
	var r models.RateLimitRecord
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&r.Identifier, &r.Attempts, &r.WindowStart, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rate limit record: %w", err)
	}
	return &r, nil
}

// Upsert creates or replaces the single record for the key.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.RateLimitRecord) error {
	query := `
		INSERT INTO rate_limits (identifier, attempts, window_start, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			window_start = EXCLUDED.window_start,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		record.Identifier, record.Attempts, record.WindowStart, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rate limit record: %w", err)
	}
	return nil
}

// Delete removes the record outright. Deleting a missing record is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE identifier = $1`, key)
	if err != nil {
		return fmt.Errorf("delete rate limit record: %w", err)
	}
	return nil
}
