package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"verity/internal/identity"
	"verity/internal/security/models"
)

// PostgresStore persists security events in PostgreSQL. The table is
// append-only; nothing here updates or deletes rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, user_id, email, kind, origin, client_info, metadata, created_at`

func (s *PostgresStore) Append(ctx context.Context, event *models.SecurityEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	query := `
		INSERT INTO security_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.UserID, nullString(event.Email), string(event.Kind),
		nullString(event.Origin), nullString(event.ClientInfo), metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

// CountByKindSince counts events of one kind for the identifier with
// creation time at or after the cutoff.
func (s *PostgresStore) CountByKindSince(ctx context.Context, ident identity.Identifier, kind models.EventKind, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE ` + identClause(ident) + ` AND kind = $2 AND created_at >= $3
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, ident.Value(), string(kind), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return count, nil
}

// ListByIdentifier returns events for the identifier, newest first,
// optionally filtered by kind and capped at limit (0 means no cap).
func (s *PostgresStore) ListByIdentifier(ctx context.Context, ident identity.Identifier, kind *models.EventKind, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + eventColumns + ` FROM security_events
		WHERE ` + identClause(ident) + ` AND ($2::text IS NULL OR kind = $2)
		ORDER BY created_at DESC
	`
	var kindArg any
	if kind != nil {
		kindArg = string(*kind)
	}
	args := []any{ident.Value(), kindArg}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListByKind returns events of one kind across all identifiers, newest first.
func (s *PostgresStore) ListByKind(ctx context.Context, kind models.EventKind, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + eventColumns + ` FROM security_events
		WHERE kind = $1
		ORDER BY created_at DESC
	`
	args := []any{string(kind)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// CountsByKind aggregates event totals for the identifier.
func (s *PostgresStore) CountsByKind(ctx context.Context, ident identity.Identifier) (map[models.EventKind]int, error) {
	query := `
		SELECT kind, COUNT(*) FROM security_events
		WHERE ` + identClause(ident) + `
		GROUP BY kind
	`
	rows, err := s.db.QueryContext(ctx, query, ident.Value())
	if err != nil {
		return nil, fmt.Errorf("aggregate security events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	totals := make(map[models.EventKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan event totals: %w", err)
		}
		totals[models.EventKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate security events: %w", err)
	}
	return totals, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.SecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*models.SecurityEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	return out, nil
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

func scanEvent(row rowScanner) (*models.SecurityEvent, error) {
	var (
		e        models.SecurityEvent
		email    sql.NullString
		origin   sql.NullString
		client   sql.NullString
		kind     string
		metadata []byte
	)
	err := row.Scan(&e.ID, &e.UserID, &email, &kind, &origin, &client, &metadata, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Email = email.String
	e.Origin = origin.String
	e.ClientInfo = client.String
	e.Kind = models.EventKind(kind)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
