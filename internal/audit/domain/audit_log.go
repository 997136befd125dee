package domain

import "time"

// Security actions recorded by the auth core.
const (
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionLoginBlocked    = "login_rate_limited"
	ActionTokenRefreshed  = "token_refreshed"
	ActionReplayDetected  = "replay_detected"
	ActionSessionRevoked  = "session_revoked"
	ActionLogout          = "logout"
	ActionPasswordChanged = "password_changed"
)

// AuditLog represents one security event. Secrets, refresh tokens and digests never appear here.
type AuditLog struct {
	ID         string
	TenantID   string
	AccountID  string
	SessionID  string
	ChainID    string
	Action     string
	Identifier string // login identifier for attempts that matched no account
	Reason     string
	IP         string
	UserAgent  string
	Count      int // sessions affected, for revocations
	CreatedAt  time.Time
}
