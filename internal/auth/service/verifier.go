package service

import (
	"context"
	"fmt"

	accountdomain "school-backoffice/backend/internal/account/domain"
)

// AccountRepo is the account collaborator needed by the auth core.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*accountdomain.Account, error)
	UpdateSecretDigest(ctx context.Context, id, digest string) error
}

// PasswordHasher is the opaque hashing primitive. Compare returns nil only when secret matches digest.
type PasswordHasher interface {
	Hash(secret []byte) (string, error)
	Compare(digest string, secret []byte) error
}

// Verifier matches an identifier and secret to an account.
type Verifier struct {
	accounts    AccountRepo
	hasher      PasswordHasher
	dummyDigest string
}

// NewVerifier returns a Verifier. dummyDigest is compared against when no account matches, so it must be
// produced by hasher with the same cost as real digests.
func NewVerifier(accounts AccountRepo, hasher PasswordHasher, dummyDigest string) *Verifier {
	return &Verifier{accounts: accounts, hasher: hasher, dummyDigest: dummyDigest}
}

// Verify returns the account for identifier when secret matches, or (nil, nil) for no match.
// The identifier is tried as an email first, then as a phone number. A hash comparison runs on
// every call, against the dummy digest when no account exists, so latency does not reveal existence.
// Errors are returned only for lookup failures.
func (v *Verifier) Verify(ctx context.Context, identifier, secret string) (*accountdomain.Account, error) {
	acct, err := v.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	digest := v.dummyDigest
	if acct != nil && acct.SecretDigest != "" {
		digest = acct.SecretDigest
	}
	matched := v.hasher.Compare(digest, []byte(secret)) == nil
	if acct == nil || !matched {
		return nil, nil
	}
	return acct, nil
}

func (v *Verifier) lookup(ctx context.Context, identifier string) (*accountdomain.Account, error) {
	if email := normalizeEmail(identifier); email != "" {
		acct, err := v.accounts.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("lookup by email: %w", err)
		}
		if acct != nil {
			return acct, nil
		}
	}
	if phone := normalizePhone(identifier); phone != "" {
		acct, err := v.accounts.GetByPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("lookup by phone: %w", err)
		}
		return acct, nil
	}
	return nil, nil
}
