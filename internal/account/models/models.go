package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the permanent user record created when a pending registration
// is confirmed. The credential hash is produced by the caller's password
// hashing primitive; this module only stores it.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	CredentialHash string    `json:"-"`
	EmailVerified  bool      `json:"email_verified"`
	PhoneVerified  bool      `json:"phone_verified"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
