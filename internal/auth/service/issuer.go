package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"school-backoffice/backend/internal/security"
	sessiondomain "school-backoffice/backend/internal/session/domain"
)

// ClientMeta is the request metadata recorded on sessions and login attempts.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Subject identifies whom a pair is minted for.
type Subject struct {
	AccountID string
	TenantID  string
}

// IssuedPair is a freshly minted access and refresh token together with the rows that record them.
// RefreshToken is the only place the plaintext refresh secret exists; it is never persisted.
type IssuedPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Session      *sessiondomain.Session
	Refresh      *sessiondomain.RefreshToken
}

// Issuer mints access/refresh pairs. Mint builds the rows; Issue also persists a new chain root.
type Issuer struct {
	tokens     *security.TokenProvider
	ledger     LoginPairWriter
	refreshTTL time.Duration
}

// LoginPairWriter persists the first pair of a chain.
type LoginPairWriter interface {
	CreateLoginPair(ctx context.Context, rt *sessiondomain.RefreshToken, s *sessiondomain.Session) error
}

func NewIssuer(tokens *security.TokenProvider, ledger LoginPairWriter, refreshTTL time.Duration) *Issuer {
	return &Issuer{tokens: tokens, ledger: ledger, refreshTTL: refreshTTL}
}

// Mint creates one signed access token, one refresh secret, and the Session and RefreshToken rows
// describing them on chainID. Nothing is persisted.
func (i *Issuer) Mint(sub Subject, meta ClientMeta, chainID string) (*IssuedPair, error) {
	sessionID := uuid.New().String()
	access, err := i.tokens.IssueAccess(sessionID, sub.AccountID, sub.TenantID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	secret, err := security.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &sessiondomain.RefreshToken{
		ID:         uuid.New().String(),
		AccountID:  sub.AccountID,
		TenantID:   sub.TenantID,
		ChainID:    chainID,
		SecretHash: security.HashRefreshToken(secret),
		CreatedAt:  access.IssuedAt,
		ExpiresAt:  access.IssuedAt.Add(i.refreshTTL),
	}
	s := &sessiondomain.Session{
		ID:             sessionID,
		AccountID:      sub.AccountID,
		TenantID:       sub.TenantID,
		JTI:            access.JTI,
		ChainID:        chainID,
		RefreshTokenID: rt.ID,
		IssuedAt:       access.IssuedAt,
		ExpiresAt:      access.ExpiresAt,
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
	}
	return &IssuedPair{
		AccessToken:  access.Token,
		RefreshToken: secret,
		ExpiresIn:    access.ExpiresAt.Sub(access.IssuedAt),
		Session:      s,
		Refresh:      rt,
	}, nil
}

// Issue mints a pair on a new chain and persists it. Storage failures are returned as-is.
func (i *Issuer) Issue(ctx context.Context, sub Subject, meta ClientMeta) (*IssuedPair, error) {
	pair, err := i.Mint(sub, meta, uuid.New().String())
	if err != nil {
		return nil, err
	}
	if err := i.ledger.CreateLoginPair(ctx, pair.Refresh, pair.Session); err != nil {
		return nil, fmt.Errorf("persist login pair: %w", err)
	}
	return pair, nil
}
