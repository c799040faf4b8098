package models

import "time"

// RateLimitRecord is one fixed window per identifier key. The count is only
// meaningful while now < ExpiresAt; an expired window is logically void and
// the next recorded attempt starts a fresh one.
type RateLimitRecord struct {
	Identifier  string    `json:"identifier"` // identity.Identifier.String() key
	Attempts    int       `json:"attempts"`
	WindowStart time.Time `json:"window_start"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the window is void at the given instant.
func (r *RateLimitRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CheckResult reports whether a new code may be issued.
type CheckResult struct {
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remaining_attempts"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
	WaitMinutes       int        `json:"wait_minutes,omitempty"`
}
