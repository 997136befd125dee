package service

import (
	"context"
	"errors"
	"time"

	"school-backoffice/backend/internal/audit"
	auditdomain "school-backoffice/backend/internal/audit/domain"
	authdomain "school-backoffice/backend/internal/auth/domain"
	"school-backoffice/backend/internal/security"
	sessiondomain "school-backoffice/backend/internal/session/domain"
	"school-backoffice/backend/internal/session/repository"
	"school-backoffice/backend/internal/telemetry/otel"
)

// RotationGuard exchanges a refresh token for a new pair exactly once.
//
// A chain has at most one unused token. Presenting it claims it with a single conditional update in the
// ledger; the new pair is written in the same transaction. Presenting any used token of a chain is a
// replay: the chain and every session of the account are revoked before ReplayDetected is returned.
type RotationGuard struct {
	ledger  repository.Ledger
	issuer  *Issuer
	revoker *Revoker
	audit   audit.AuditLogger
	metrics *otel.AuthMetrics
	now     func() time.Time
}

// NewRotationGuard returns a RotationGuard. audit and metrics may be nil.
func NewRotationGuard(ledger repository.Ledger, issuer *Issuer, revoker *Revoker, auditLogger audit.AuditLogger, metrics *otel.AuthMetrics) *RotationGuard {
	return &RotationGuard{ledger: ledger, issuer: issuer, revoker: revoker, audit: auditLogger, metrics: metrics, now: time.Now}
}

// Refresh consumes presented and returns the next pair of its chain.
func (g *RotationGuard) Refresh(ctx context.Context, presented string, meta ClientMeta) (*IssuedPair, error) {
	pair, err := g.refresh(ctx, presented, meta)
	if err != nil {
		g.metrics.Refresh(ctx, string(authdomain.KindOf(err)))
		return nil, err
	}
	g.metrics.Refresh(ctx, "success")
	return pair, nil
}

func (g *RotationGuard) refresh(ctx context.Context, presented string, meta ClientMeta) (*IssuedPair, error) {
	if !security.WellFormedRefreshToken(presented) {
		return nil, authdomain.ErrInvalidToken
	}
	rt, err := g.ledger.GetRefreshTokenByHash(ctx, security.HashRefreshToken(presented))
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	if rt == nil {
		return nil, authdomain.ErrInvalidToken
	}
	// A used token is a replay even when it has since expired or been revoked.
	if rt.Used {
		return nil, g.replay(ctx, rt, meta)
	}
	now := g.now().UTC()
	if rt.Revoked || rt.ExpiredAt(now) {
		return nil, authdomain.ErrInvalidToken
	}

	pair, err := g.issuer.Mint(Subject{AccountID: rt.AccountID, TenantID: rt.TenantID}, meta, rt.ChainID)
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	err = g.ledger.Rotate(ctx, rt.ID, now, pair.Refresh, pair.Session)
	if errors.Is(err, repository.ErrClaimLost) {
		return nil, g.classifyLostClaim(ctx, rt, meta)
	}
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	if g.audit != nil {
		g.audit.LogEvent(ctx, &auditdomain.AuditLog{
			Action:    auditdomain.ActionTokenRefreshed,
			TenantID:  rt.TenantID,
			AccountID: rt.AccountID,
			SessionID: pair.Session.ID,
			ChainID:   rt.ChainID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
		})
	}
	return pair, nil
}

// classifyLostClaim re-reads a token whose claim affected no row. Another caller consuming it first is
// a replay; a revocation or expiry that landed in between is an invalid token.
func (g *RotationGuard) classifyLostClaim(ctx context.Context, rt *sessiondomain.RefreshToken, meta ClientMeta) error {
	cur, err := g.ledger.GetRefreshTokenByID(ctx, rt.ID)
	if err != nil {
		return authdomain.Unavailable(err)
	}
	if cur == nil {
		return authdomain.ErrInvalidToken
	}
	if cur.Used {
		return g.replay(ctx, cur, meta)
	}
	return authdomain.ErrInvalidToken
}

// replay revokes everything the token's account holds. If the revocation fails the call fails with
// Unavailable; it never reports ReplayDetected over a partial revocation.
func (g *RotationGuard) replay(ctx context.Context, rt *sessiondomain.RefreshToken, meta ClientMeta) error {
	n, err := g.revoker.RevokeForReplay(ctx, rt.ChainID, rt.AccountID)
	if err != nil {
		return err
	}
	g.metrics.Replay(ctx)
	if g.audit != nil {
		g.audit.LogEvent(ctx, &auditdomain.AuditLog{
			Action:    auditdomain.ActionReplayDetected,
			TenantID:  rt.TenantID,
			AccountID: rt.AccountID,
			ChainID:   rt.ChainID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Count:     n,
		})
	}
	return authdomain.ErrReplayDetected
}
