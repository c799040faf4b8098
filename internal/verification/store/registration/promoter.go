// Package registration holds the promotion step that turns a pending
// registration into a permanent account. Creation of the account and
// deletion of the staging row must not be separable, so both live behind a
// single Promote operation.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	accountmodels "verity/internal/account/models"
	accountstore "verity/internal/account/store"
	"verity/internal/sentinel"
	"verity/internal/verification/models"
	pendingstore "verity/internal/verification/store/pending"
)

// PostgresPromoter promotes inside a single database transaction.
type PostgresPromoter struct {
	db *sql.DB
}

// NewPostgres constructs a transaction-backed promoter.
func NewPostgres(db *sql.DB) *PostgresPromoter {
	return &PostgresPromoter{db: db}
}

// Promote inserts the account and deletes the pending registration atomically.
func (p *PostgresPromoter) Promote(ctx context.Context, reg *models.PendingRegistration, account *accountmodels.Account) error {
	if reg == nil || account == nil {
		return fmt.Errorf("pending registration and account are required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promote tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, phone, credential_hash, email_verified, phone_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID, account.Email, account.Name, account.Phone,
		account.CredentialHash, account.EmailVerified, account.PhoneVerified,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert promoted account: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_registrations WHERE id = $1`, reg.ID)
	if err != nil {
		return fmt.Errorf("delete promoted pending registration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Someone else promoted or the sweep purged it; the insert above
		// would have conflicted first, so treat as a conflict either way.
		return fmt.Errorf("pending registration gone: %w", sentinel.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit promote tx: %w", err)
	}
	return nil
}

// MemoryPromoter promotes across the in-memory stores. The two writes are
// sequential; single-process tests cannot observe the gap.
type MemoryPromoter struct {
	accounts *accountstore.InMemoryStore
	pending  *pendingstore.InMemoryStore
}

// NewMemory constructs a promoter over the in-memory stores.
func NewMemory(accounts *accountstore.InMemoryStore, pending *pendingstore.InMemoryStore) *MemoryPromoter {
	return &MemoryPromoter{accounts: accounts, pending: pending}
}

// Promote saves the account then deletes the staging record.
func (p *MemoryPromoter) Promote(ctx context.Context, reg *models.PendingRegistration, account *accountmodels.Account) error {
	if err := p.accounts.Save(ctx, account); err != nil {
		return err
	}
	if err := p.pending.Delete(ctx, reg.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}
