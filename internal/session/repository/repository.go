package repository

import (
	"context"
	"errors"
	"time"

	"school-backoffice/backend/internal/session/domain"
)

// ErrClaimLost is returned by Rotate when the consumed token was no longer unused and unrevoked
// at the moment of the conditional update. Nothing is written in that case.
var ErrClaimLost = errors.New("refresh token already claimed")

// Ledger is the durable record of sessions and refresh-token chains. It is the only writer of those rows.
// Lookups return (nil, nil) when no row matches.
type Ledger interface {
	// CreateLoginPair persists the chain root and its session atomically.
	CreateLoginPair(ctx context.Context, rt *domain.RefreshToken, s *domain.Session) error
	GetRefreshTokenByHash(ctx context.Context, secretHash string) (*domain.RefreshToken, error)
	GetRefreshTokenByID(ctx context.Context, id string) (*domain.RefreshToken, error)
	// Rotate marks consumedID used (replaced by next) only if it is still unused and unrevoked, then
	// persists next and its session. All three writes commit together or not at all.
	Rotate(ctx context.Context, consumedID string, at time.Time, next *domain.RefreshToken, s *domain.Session) error
	GetSessionByJTI(ctx context.Context, jti string) (*domain.Session, error)
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)
	RevokeSession(ctx context.Context, sessionID, reason string, at time.Time) ([]domain.RevokedSession, error)
	RevokeChain(ctx context.Context, chainID, reason string, at time.Time) ([]domain.RevokedSession, error)
	// RevokeAllForAccount revokes every session and chain of the account. When exceptSessionID is set,
	// that session and the chain it belongs to stay live.
	RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID, reason string, at time.Time) ([]domain.RevokedSession, error)
	// RevokeForReplay revokes the implicated chain, every session minted from it, and every other
	// session and chain of the account in one transaction.
	RevokeForReplay(ctx context.Context, chainID, accountID string, at time.Time) ([]domain.RevokedSession, error)
	// PurgeExpired deletes sessions whose expiry is before cutoff, and refresh tokens of chains whose
	// every token expired before cutoff. Used tokens of a chain that can still rotate are kept so that
	// presenting them stays a replay.
	PurgeExpired(ctx context.Context, cutoff time.Time) (sessions int64, tokens int64, err error)
}
