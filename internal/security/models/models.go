package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies security-relevant events in the audit log.
type EventKind string

const (
	EventCodeSent            EventKind = "code_sent"
	EventVerificationSuccess EventKind = "verification_success"
	EventVerificationFailed  EventKind = "verification_failed"
	EventCodeExpired         EventKind = "code_expired"
	EventCodeInvalidated     EventKind = "code_invalidated"
	EventRateLimited         EventKind = "rate_limited"
	EventAccountLocked       EventKind = "account_locked"
	EventAccountUnlocked     EventKind = "account_unlocked"
	EventEmailChanged        EventKind = "email_changed"
	EventPasswordChanged     EventKind = "password_changed"
	EventPhoneChanged        EventKind = "phone_changed"
)

func (k EventKind) IsValid() bool {
	switch k {
	case EventCodeSent, EventVerificationSuccess, EventVerificationFailed,
		EventCodeExpired, EventCodeInvalidated, EventRateLimited,
		EventAccountLocked, EventAccountUnlocked, EventEmailChanged,
		EventPasswordChanged, EventPhoneChanged:
		return true
	}
	return false
}

// SecurityEvent is one append-only audit log entry. Rows are immutable once
// written; retention is an external concern.
type SecurityEvent struct {
	ID         uuid.UUID         `json:"id"`
	UserID     *uuid.UUID        `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	Kind       EventKind         `json:"kind"`
	Origin     string            `json:"origin,omitempty"`      // client IP
	ClientInfo string            `json:"client_info,omitempty"` // parsed user agent
	Metadata   map[string]string `json:"metadata"`              // never nil once logged
	CreatedAt  time.Time         `json:"created_at"`
}

// AccountLockout is the single lock row per identifier key.
type AccountLockout struct {
	Identifier string     `json:"identifier"` // identity.Identifier.String() key
	Reason     string     `json:"reason"`
	LockedAt   time.Time  `json:"locked_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Locked reports whether the row denies verification at the given instant.
func (l *AccountLockout) Locked(now time.Time) bool {
	return !l.Unlocked && now.Before(l.ExpiresAt)
}

// ResolveIfExpired flips an expired, unresolved lockout to unlocked. Both
// the lazy check and the bulk sweep go through this method so the two code
// paths cannot drift apart. Returns true when a transition happened.
func (l *AccountLockout) ResolveIfExpired(now time.Time) bool {
	if l.Unlocked || now.Before(l.ExpiresAt) {
		return false
	}
	l.Unlocked = true
	t := now
	l.UnlockedAt = &t
	return true
}

// IdentifierStats aggregates the audit trail for one identifier.
type IdentifierStats struct {
	Identifier      string            `json:"identifier"`
	TotalsByKind    map[EventKind]int `json:"totals_by_kind"`
	CurrentlyLocked bool              `json:"currently_locked"`
	LastLockedAt    *time.Time        `json:"last_locked_at,omitempty"`
}
