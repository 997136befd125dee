package domain

import "time"

// Revocation reasons recorded on sessions.
const (
	ReasonLogout          = "logout"
	ReasonPasswordChanged = "password_changed"
	ReasonReplayDetected  = "replay_detected"
	ReasonAdmin           = "admin"
)

// Session represents one issued access token. Only Revoked/RevokedAt/RevocationReason ever change after creation.
type Session struct {
	ID               string
	AccountID        string
	TenantID         string
	JTI              string // jti embedded in the access token
	ChainID          string
	RefreshTokenID   string // refresh token minted alongside this session
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time // nil when not revoked
	RevocationReason string
	IP               string
	UserAgent        string
}

// ActiveAt reports whether the session can authenticate a request at t.
func (s *Session) ActiveAt(t time.Time) bool {
	return s != nil && !s.Revoked && t.Before(s.ExpiresAt)
}

// RefreshToken is one link in a rotation chain. The plaintext secret is never stored.
type RefreshToken struct {
	ID         string
	AccountID  string
	TenantID   string
	ChainID    string // shared by every token derived from one login
	SecretHash string
	Used       bool
	UsedAt     *time.Time
	Revoked    bool
	RevokedAt  *time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ReplacedBy string // empty until the token is consumed by a rotation
}

// ExpiredAt reports whether the token is past its expiry at t.
func (t *RefreshToken) ExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// RevokedSession identifies a session touched by a revocation; used to publish jti markers.
type RevokedSession struct {
	ID        string
	JTI       string
	ExpiresAt time.Time
}
