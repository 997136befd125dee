package security

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies account secrets using bcrypt. Callers must not log or
// persist plaintext secrets.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt digest of secret suitable for storage.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies secret against the stored digest. Returns nil if they match; returns an
// error (including bcrypt.ErrMismatchedHashAndPassword) if they do not or the digest is invalid.
func (h *Hasher) Compare(digest string, secret []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(digest), secret)
}

// DummyDigest returns a digest of a random secret at the hasher's cost. Comparing against it
// takes as long as comparing against a real digest and never succeeds for a caller-supplied secret.
func (h *Hasher) DummyDigest() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return h.Hash([]byte(hex.EncodeToString(b)))
}
