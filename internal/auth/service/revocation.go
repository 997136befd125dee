package service

import (
	"context"
	"log"
	"time"

	authdomain "school-backoffice/backend/internal/auth/domain"
	sessiondomain "school-backoffice/backend/internal/session/domain"
	"school-backoffice/backend/internal/session/repository"
	"school-backoffice/backend/internal/telemetry/otel"
)

// RevocationPublisher receives every revoked session so request middleware can reject it without
// reading the ledger. Publishing is best-effort.
type RevocationPublisher interface {
	MarkRevoked(ctx context.Context, sessions []sessiondomain.RevokedSession) error
}

// Revoker invalidates sessions and chains. Every method is idempotent.
type Revoker struct {
	ledger    repository.Ledger
	publisher RevocationPublisher
	metrics   *otel.AuthMetrics
	now       func() time.Time
}

// NewRevoker returns a Revoker. publisher and metrics may be nil.
func NewRevoker(ledger repository.Ledger, publisher RevocationPublisher, metrics *otel.AuthMetrics) *Revoker {
	return &Revoker{ledger: ledger, publisher: publisher, metrics: metrics, now: time.Now}
}

// RevokeSession revokes one session.
func (r *Revoker) RevokeSession(ctx context.Context, sessionID, reason string) (int, error) {
	revoked, err := r.ledger.RevokeSession(ctx, sessionID, reason, r.now().UTC())
	return r.finish(ctx, reason, revoked, err)
}

// RevokeChain revokes every token of a chain and every session minted from it.
func (r *Revoker) RevokeChain(ctx context.Context, chainID, reason string) (int, error) {
	revoked, err := r.ledger.RevokeChain(ctx, chainID, reason, r.now().UTC())
	return r.finish(ctx, reason, revoked, err)
}

// RevokeAllForAccount revokes all sessions and chains of the account. A non-empty exceptSessionID keeps
// that session and its chain alive.
func (r *Revoker) RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID, reason string) (int, error) {
	revoked, err := r.ledger.RevokeAllForAccount(ctx, accountID, exceptSessionID, reason, r.now().UTC())
	return r.finish(ctx, reason, revoked, err)
}

// RevokeForReplay revokes the chain of a replayed token and everything else the account holds,
// in one ledger transaction. Either all of it is revoked or an Unavailable error is returned.
func (r *Revoker) RevokeForReplay(ctx context.Context, chainID, accountID string) (int, error) {
	revoked, err := r.ledger.RevokeForReplay(ctx, chainID, accountID, r.now().UTC())
	return r.finish(ctx, sessiondomain.ReasonReplayDetected, revoked, err)
}

func (r *Revoker) finish(ctx context.Context, reason string, revoked []sessiondomain.RevokedSession, err error) (int, error) {
	if err != nil {
		return 0, authdomain.Unavailable(err)
	}
	r.metrics.Revoked(ctx, reason, len(revoked))
	if r.publisher != nil && len(revoked) > 0 {
		if pubErr := r.publisher.MarkRevoked(ctx, revoked); pubErr != nil {
			log.Printf("auth: publish revoked sessions: %v", pubErr)
		}
	}
	return len(revoked), nil
}
