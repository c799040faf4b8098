package models

import (
	"time"

	"github.com/google/uuid"

	accountmodels "verity/internal/account/models"
)

// OperationType identifies which flow a verification code belongs to.
type OperationType string

const (
	OpRegistration OperationType = "registration"
	OpEmailChange  OperationType = "email_change"
	OpPhoneChange  OperationType = "phone_change"
)

func (t OperationType) IsValid() bool {
	switch t {
	case OpRegistration, OpEmailChange, OpPhoneChange:
		return true
	}
	return false
}

func (t OperationType) String() string {
	return string(t)
}

// VerificationCode represents one issued code. The plaintext never touches
// storage; only the bcrypt hash is kept. Rows are not deleted by normal flow:
// verified and invalidated codes remain as audit trail until the retention
// sweep removes them.
type VerificationCode struct {
	ID          uuid.UUID
	Email       string     // registration target; empty for change operations
	UserID      *uuid.UUID // owning user; nil for registration
	Payload     string     // new email or new phone for change operations
	CodeHash    string
	Operation   OperationType
	Attempts    int
	MaxAttempts int
	Verified    bool
	VerifiedAt  *time.Time
	Invalidated bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Exhausted reports whether the attempt ceiling has been reached.
func (c *VerificationCode) Exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// Remaining returns how many wrong submissions are still tolerated.
func (c *VerificationCode) Remaining() int {
	if r := c.MaxAttempts - c.Attempts; r > 0 {
		return r
	}
	return 0
}

// PendingRegistration stages an unverified sign-up separately from permanent
// accounts until code confirmation promotes it.
type PendingRegistration struct {
	ID             uuid.UUID
	Email          string
	CredentialHash string
	Name           string
	Phone          string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Outcome is the portable result of a validation attempt. Message wording is
// not part of the contract; outcomes are.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeExpired     Outcome = "expired"
	OutcomeInvalidated Outcome = "invalidated"
	OutcomeIncorrect   Outcome = "incorrect"
)

// IssueResult reports the result of issuing or resending a code.
type IssueResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	PendingID *uuid.UUID `json:"pending_id,omitempty"`
}

// ValidationResult reports the result of a code submission.
type ValidationResult struct {
	Success           bool                   `json:"success"`
	Outcome           Outcome                `json:"outcome"`
	Message           string                 `json:"message"`
	Account           *accountmodels.Account `json:"account,omitempty"`
	RemainingAttempts *int                   `json:"remaining_attempts,omitempty"`
}
