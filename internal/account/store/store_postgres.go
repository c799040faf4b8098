package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"verity/internal/account/models"
	"verity/internal/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
// This store is pure I/O; promotion rules and verification flags belong in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, email, name, phone, credential_hash, email_verified, phone_verified, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name, account.Phone,
		account.CredentialHash, account.EmailVerified, account.PhoneVerified,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return account, nil
}

// UpdateEmail sets a new verified email address on the account.
func (s *PostgresStore) UpdateEmail(ctx context.Context, accountID uuid.UUID, email string, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET email = $2, email_verified = TRUE, updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID, email, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("update account email: %w", err)
	}
	return account, nil
}

// UpdatePhone sets a new verified phone number on the account.
func (s *PostgresStore) UpdatePhone(ctx context.Context, accountID uuid.UUID, phone string, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET phone = $2, phone_verified = TRUE, updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID, phone, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("update account phone: %w", err)
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.Phone,
		&a.CredentialHash, &a.EmailVerified, &a.PhoneVerified,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
