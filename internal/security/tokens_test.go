package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	access, err := p.IssueAccess("s1", "acct-1", "school-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access.Token == "" || access.JTI == "" {
		t.Fatal("access token or jti empty")
	}
	if !access.ExpiresAt.After(access.IssuedAt) {
		t.Fatal("expires at must be after issued at")
	}
	if got := access.ExpiresAt.Sub(access.IssuedAt); got != 24*time.Hour {
		t.Errorf("lifetime = %v, want 24h", got)
	}

	claims, err := p.ValidateAccess(access.Token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.ID != access.JTI || claims.Subject != "acct-1" || claims.TenantID != "school-1" || claims.SessionID != "s1" {
		t.Errorf("ValidateAccess: got jti=%q sub=%q tenant=%q session=%q", claims.ID, claims.Subject, claims.TenantID, claims.SessionID)
	}
}

func TestTokenProvider_FreshJTIPerIssue(t *testing.T) {
	p, _ := NewTestTokenProvider()
	a, _ := p.IssueAccess("s1", "acct-1", "school-1")
	b, _ := p.IssueAccess("s1", "acct-1", "school-1")
	if a.JTI == b.JTI {
		t.Error("each issued token must carry a fresh jti")
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	access, _ := p.IssueAccess("s1", "acct-1", "school-1")
	parts := strings.Split(access.Token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for name, tok := range map[string]string{
		"garbage":  "invalid-token",
		"empty":    "",
		"tampered": tampered,
	} {
		if _, err := p.ValidateAccess(tok); err != ErrInvalidToken {
			t.Errorf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, _ := NewTestTokenProviderTTL(time.Minute)
	access, err := p.IssueAccess("s1", "acct-1", "school-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	later := p.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	if _, err := later.ValidateAccess(access.Token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongIssuerOrAudience(t *testing.T) {
	p, _ := NewTestTokenProvider()
	signer, pub, err := LoadKeyPair(testPrivateKeyPEM, testPublicKeyPEM)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	otherIss := NewTokenProvider(signer, pub, "other-issuer", "test-audience", time.Hour)
	otherAud := NewTokenProvider(signer, pub, "test-issuer", "other-audience", time.Hour)

	for name, issuer := range map[string]*TokenProvider{"issuer": otherIss, "audience": otherAud} {
		access, err := issuer.IssueAccess("s1", "acct-1", "school-1")
		if err != nil {
			t.Fatalf("IssueAccess: %v", err)
		}
		if _, err := p.ValidateAccess(access.Token); err != ErrInvalidToken {
			t.Errorf("wrong %s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_RejectsNoneAndHMAC(t *testing.T) {
	p, _ := NewTestTokenProvider()
	claims := AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "jti",
		Subject:   "acct-1",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testPublicKeyPEM))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	for name, tok := range map[string]string{"none": none, "hs256": hmac} {
		if _, err := p.ValidateAccess(tok); err != ErrInvalidToken {
			t.Errorf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_Ed25519(t *testing.T) {
	privPEM, pubPEM := generateEd25519PEM(t)
	signer, pub, err := LoadKeyPair(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	p := NewTokenProvider(signer, pub, "iss", "aud", time.Hour)
	access, err := p.IssueAccess("s1", "acct-1", "school-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(access.Token); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
}
