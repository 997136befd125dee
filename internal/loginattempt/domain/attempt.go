package domain

import (
	"strings"
	"time"
)

// Failure reasons recorded on login attempts.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonRateLimited        = "rate_limited"
	ReasonAccountInactive    = "account_inactive"
	ReasonUnavailable        = "unavailable"
)

// Attempt is an immutable record of one login call.
type Attempt struct {
	ID          string
	Identifier  string // normalized identifier as typed by the caller
	AttemptedAt time.Time
	Success     bool
	Reason      string // empty on success
	IP          string
	UserAgent   string
}

// CountsTowardLimit reports whether the attempt is a credential failure that feeds the rate limiter.
// Attempts rejected by the limiter itself do not count, so a blocked caller cannot extend its own lockout.
func (a *Attempt) CountsTowardLimit() bool {
	return !a.Success && a.Reason != ReasonRateLimited
}

// NormalizeIdentifier lower-cases and trims the identifier so that "Teacher@School.edu " and
// "teacher@school.edu" share one failure window.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
