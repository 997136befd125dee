// Package service implements the session/token state machine: login, refresh with replay detection,
// logout, session validity checks, and revocation on password change.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	accountdomain "school-backoffice/backend/internal/account/domain"
	"school-backoffice/backend/internal/audit"
	auditdomain "school-backoffice/backend/internal/audit/domain"
	authdomain "school-backoffice/backend/internal/auth/domain"
	attemptdomain "school-backoffice/backend/internal/loginattempt/domain"
	attemptservice "school-backoffice/backend/internal/loginattempt/service"
	policydomain "school-backoffice/backend/internal/policy/domain"
	"school-backoffice/backend/internal/security"
	sessiondomain "school-backoffice/backend/internal/session/domain"
	"school-backoffice/backend/internal/session/repository"
	"school-backoffice/backend/internal/telemetry/otel"
)

// RateLimiter gates login attempts on persisted failures.
type RateLimiter interface {
	IsBlocked(ctx context.Context, identifier string) (bool, time.Duration, error)
	CheckAndRecord(ctx context.Context, identifier string, outcome attemptservice.Outcome) (bool, error)
}

// PasswordPolicy is the strength predicate consulted on password change.
type PasswordPolicy interface {
	IsStrong(secret string) bool
}

// LoginPolicy decides whether a verified account may receive a session.
type LoginPolicy interface {
	EvaluateLogin(ctx context.Context, input policydomain.LoginInput) (policydomain.Decision, error)
}

// RevocationChecker reports jtis known to be revoked without reading the ledger. A false answer is
// not proof of validity.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Deps holds the collaborators of AuthService. Audit, Metrics, LoginPolicy and Cache are optional.
type Deps struct {
	Accounts       AccountRepo
	Hasher         PasswordHasher
	DummyDigest    string
	PasswordPolicy PasswordPolicy
	Limiter        RateLimiter
	Ledger         repository.Ledger
	Tokens         *security.TokenProvider
	RefreshTTL     time.Duration
	LoginPolicy    LoginPolicy
	Cache          interface {
		RevocationChecker
		RevocationPublisher
	}
	Audit   audit.AuditLogger
	Metrics *otel.AuthMetrics
}

// AuthService is the entry point used by HTTP and gRPC layers. All methods are safe for concurrent use;
// the only cross-request coordination is the atomic claim inside Refresh.
type AuthService struct {
	accounts    AccountRepo
	hasher      PasswordHasher
	passwords   PasswordPolicy
	limiter     RateLimiter
	ledger      repository.Ledger
	tokens      *security.TokenProvider
	loginPolicy LoginPolicy
	cache       RevocationChecker
	audit       audit.AuditLogger
	metrics     *otel.AuthMetrics

	verifier *Verifier
	issuer   *Issuer
	guard    *RotationGuard
	revoker  *Revoker
	now      func() time.Time
}

// NewAuthService wires the verifier, issuer, rotation guard and revoker over deps.
func NewAuthService(deps Deps) *AuthService {
	var (
		checker   RevocationChecker
		publisher RevocationPublisher
	)
	if deps.Cache != nil {
		checker, publisher = deps.Cache, deps.Cache
	}
	issuer := NewIssuer(deps.Tokens, deps.Ledger, deps.RefreshTTL)
	revoker := NewRevoker(deps.Ledger, publisher, deps.Metrics)
	return &AuthService{
		accounts:    deps.Accounts,
		hasher:      deps.Hasher,
		passwords:   deps.PasswordPolicy,
		limiter:     deps.Limiter,
		ledger:      deps.Ledger,
		tokens:      deps.Tokens,
		loginPolicy: deps.LoginPolicy,
		cache:       checker,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		verifier:    NewVerifier(deps.Accounts, deps.Hasher, deps.DummyDigest),
		issuer:      issuer,
		guard:       NewRotationGuard(deps.Ledger, issuer, revoker, deps.Audit, deps.Metrics),
		revoker:     revoker,
		now:         time.Now,
	}
}

// Login verifies identifier and secret and issues a pair on a new chain.
// Unknown identifiers, wrong secrets and accounts denied by the login policy all return
// InvalidCredentials. A blocked identifier returns RateLimited without consulting the verifier.
func (s *AuthService) Login(ctx context.Context, identifier, secret string, meta ClientMeta) (*IssuedPair, error) {
	pair, err := s.login(ctx, identifier, secret, meta)
	if err != nil {
		s.metrics.Login(ctx, string(authdomain.KindOf(err)))
		return nil, err
	}
	s.metrics.Login(ctx, "success")
	return pair, nil
}

func (s *AuthService) login(ctx context.Context, identifier, secret string, meta ClientMeta) (*IssuedPair, error) {
	blocked, retryAfter, err := s.limiter.IsBlocked(ctx, identifier)
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	if blocked {
		if _, err := s.limiter.CheckAndRecord(ctx, identifier, s.outcome(false, attemptdomain.ReasonRateLimited, meta)); err != nil {
			log.Printf("auth: record blocked login attempt: %v", err)
		}
		s.logAudit(ctx, &auditdomain.AuditLog{
			Action:     auditdomain.ActionLoginBlocked,
			Identifier: attemptdomain.NormalizeIdentifier(identifier),
			Reason:     attemptdomain.ReasonRateLimited,
			IP:         meta.IP,
			UserAgent:  meta.UserAgent,
		})
		return nil, authdomain.RateLimited(retryAfter)
	}

	acct, err := s.verifier.Verify(ctx, identifier, secret)
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	if acct == nil {
		return nil, s.loginFailed(ctx, identifier, nil, attemptdomain.ReasonInvalidCredentials, meta)
	}
	if reason, ok := s.allowed(ctx, acct, meta); !ok {
		return nil, s.loginFailed(ctx, identifier, acct, reason, meta)
	}

	pair, err := s.issuer.Issue(ctx, Subject{AccountID: acct.ID, TenantID: acct.TenantID}, meta)
	if err != nil {
		return nil, authdomain.Unavailable(err)
	}
	if _, err := s.limiter.CheckAndRecord(ctx, identifier, s.outcome(true, "", meta)); err != nil {
		log.Printf("auth: record successful login attempt: %v", err)
	}
	s.logAudit(ctx, &auditdomain.AuditLog{
		Action:    auditdomain.ActionLoginSuccess,
		TenantID:  acct.TenantID,
		AccountID: acct.ID,
		SessionID: pair.Session.ID,
		ChainID:   pair.Session.ChainID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return pair, nil
}

// allowed evaluates the login policy. Without a policy only active accounts pass.
// Evaluation errors deny.
func (s *AuthService) allowed(ctx context.Context, acct *accountdomain.Account, meta ClientMeta) (string, bool) {
	if s.loginPolicy == nil {
		if acct.Status != accountdomain.AccountStatusActive {
			return attemptdomain.ReasonAccountInactive, false
		}
		return "", true
	}
	d, err := s.loginPolicy.EvaluateLogin(ctx, policydomain.LoginInput{
		AccountID:     acct.ID,
		TenantID:      acct.TenantID,
		AccountStatus: string(acct.Status),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	})
	if err != nil {
		log.Printf("auth: login policy: %v", err)
	}
	if err != nil || !d.Allow {
		reason := d.DenyReason
		if reason == "" {
			reason = policydomain.DefaultDenyReason
		}
		return reason, false
	}
	return "", true
}

// loginFailed records a counted failure and returns InvalidCredentials. A failure that cannot be
// recorded fails the call, so storage trouble can never hide attempts from the limiter.
func (s *AuthService) loginFailed(ctx context.Context, identifier string, acct *accountdomain.Account, reason string, meta ClientMeta) error {
	if _, err := s.limiter.CheckAndRecord(ctx, identifier, s.outcome(false, reason, meta)); err != nil {
		return authdomain.Unavailable(err)
	}
	entry := &auditdomain.AuditLog{
		Action:     auditdomain.ActionLoginFailure,
		Identifier: attemptdomain.NormalizeIdentifier(identifier),
		Reason:     reason,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if acct != nil {
		entry.TenantID = acct.TenantID
		entry.AccountID = acct.ID
	}
	s.logAudit(ctx, entry)
	return authdomain.ErrInvalidCredentials
}

// Refresh exchanges a refresh token for the next pair of its chain.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*IssuedPair, error) {
	return s.guard.Refresh(ctx, refreshToken, meta)
}

// Logout revokes the session carried by accessToken and the chain it belongs to.
// Logging out an already revoked session succeeds.
func (s *AuthService) Logout(ctx context.Context, accessToken string, meta ClientMeta) error {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return authdomain.New(authdomain.KindInvalidToken, err)
	}
	sess, err := s.ledger.GetSessionByJTI(ctx, claims.ID)
	if err != nil {
		return authdomain.Unavailable(err)
	}
	if sess == nil {
		return authdomain.ErrInvalidToken
	}
	n, err := s.revoker.RevokeSession(ctx, sess.ID, sessiondomain.ReasonLogout)
	if err != nil {
		return err
	}
	m, err := s.revoker.RevokeChain(ctx, sess.ChainID, sessiondomain.ReasonLogout)
	if err != nil {
		return err
	}
	s.logAudit(ctx, &auditdomain.AuditLog{
		Action:    auditdomain.ActionLogout,
		TenantID:  sess.TenantID,
		AccountID: sess.AccountID,
		SessionID: sess.ID,
		ChainID:   sess.ChainID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Count:     n + m,
	})
	return nil
}

// IsSessionValid reports whether the session carrying jti exists, is unrevoked and unexpired.
// A revocation marker in the cache answers false immediately; otherwise the ledger decides.
func (s *AuthService) IsSessionValid(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	if s.cache != nil {
		revoked, err := s.cache.IsRevoked(ctx, jti)
		if err != nil {
			log.Printf("auth: revocation cache: %v", err)
		} else if revoked {
			return false, nil
		}
	}
	sess, err := s.ledger.GetSessionByJTI(ctx, jti)
	if err != nil {
		return false, authdomain.Unavailable(err)
	}
	return sess.ActiveAt(s.now().UTC()), nil
}

// Authenticate validates an access token and its session. Used by request middleware.
// A well-signed token whose session was revoked returns SessionRevoked.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error) {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, authdomain.New(authdomain.KindInvalidToken, err)
	}
	ok, err := s.IsSessionValid(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, authdomain.ErrSessionRevoked
	}
	return claims, nil
}

// OnPasswordChanged revokes every session and chain of the account. A non-empty exceptSessionID keeps
// the caller's session and chain alive.
func (s *AuthService) OnPasswordChanged(ctx context.Context, accountID, exceptSessionID string) error {
	n, err := s.revoker.RevokeAllForAccount(ctx, accountID, exceptSessionID, sessiondomain.ReasonPasswordChanged)
	if err != nil {
		return err
	}
	s.logAudit(ctx, &auditdomain.AuditLog{
		Action:    auditdomain.ActionSessionRevoked,
		AccountID: accountID,
		SessionID: exceptSessionID,
		Reason:    sessiondomain.ReasonPasswordChanged,
		Count:     n,
	})
	return nil
}

// ChangePassword verifies currentSecret, checks newSecret against the password policy, revokes sessions
// through OnPasswordChanged and then stores the new digest. The current-secret check shares the login
// failure window of the account's identifier. If revocation fails the digest is left unchanged, so a retry
// still presents the old secret.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentSecret, newSecret, exceptSessionID string, meta ClientMeta) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return authdomain.Unavailable(err)
	}
	if acct == nil {
		return authdomain.ErrInvalidCredentials
	}
	identifier := limiterIdentifier(acct)
	blocked, retryAfter, err := s.limiter.IsBlocked(ctx, identifier)
	if err != nil {
		return authdomain.Unavailable(err)
	}
	if blocked {
		if _, err := s.limiter.CheckAndRecord(ctx, identifier, s.outcome(false, attemptdomain.ReasonRateLimited, meta)); err != nil {
			log.Printf("auth: record blocked password change: %v", err)
		}
		return authdomain.RateLimited(retryAfter)
	}
	if err := s.hasher.Compare(acct.SecretDigest, []byte(currentSecret)); err != nil {
		return s.loginFailed(ctx, identifier, acct, attemptdomain.ReasonInvalidCredentials, meta)
	}
	if s.passwords != nil && !s.passwords.IsStrong(newSecret) {
		return authdomain.New(authdomain.KindWeakPassword, weakPasswordCause(s.passwords, newSecret))
	}
	digest, err := s.hasher.Hash([]byte(newSecret))
	if err != nil {
		return authdomain.Unavailable(fmt.Errorf("hash new secret: %w", err))
	}
	if err := s.OnPasswordChanged(ctx, accountID, exceptSessionID); err != nil {
		return err
	}
	if err := s.accounts.UpdateSecretDigest(ctx, accountID, digest); err != nil {
		return authdomain.Unavailable(err)
	}
	// Sessions issued against the old secret between revocation and the digest update.
	if _, err := s.revoker.RevokeAllForAccount(ctx, accountID, exceptSessionID, sessiondomain.ReasonPasswordChanged); err != nil {
		log.Printf("auth: revoke sessions after digest update for account %s: %v", accountID, err)
	}
	s.logAudit(ctx, &auditdomain.AuditLog{
		Action:    auditdomain.ActionPasswordChanged,
		TenantID:  acct.TenantID,
		AccountID: acct.ID,
		SessionID: exceptSessionID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// limiterIdentifier is the failure-window key for an account: its email, else its phone, else its id.
func limiterIdentifier(acct *accountdomain.Account) string {
	switch {
	case acct.Email != "":
		return acct.Email
	case acct.Phone != "":
		return acct.Phone
	default:
		return acct.ID
	}
}

func weakPasswordCause(p PasswordPolicy, secret string) error {
	if c, ok := p.(interface{ Check(string) error }); ok {
		if err := c.Check(secret); err != nil {
			return err
		}
	}
	return errors.New("password does not meet the strength policy")
}

func (s *AuthService) outcome(success bool, reason string, meta ClientMeta) attemptservice.Outcome {
	return attemptservice.Outcome{Success: success, Reason: reason, IP: meta.IP, UserAgent: meta.UserAgent}
}

func (s *AuthService) logAudit(ctx context.Context, entry *auditdomain.AuditLog) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, entry)
	}
}
