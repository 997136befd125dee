package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"school-backoffice/backend/internal/session/domain"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// newPair builds a refresh token and its session for accountID on chainID.
func newPair(accountID, chainID string, at time.Time) (*domain.RefreshToken, *domain.Session) {
	rt := &domain.RefreshToken{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		TenantID:   "school-1",
		ChainID:    chainID,
		SecretHash: uuid.New().String(),
		CreatedAt:  at,
		ExpiresAt:  at.Add(720 * time.Hour),
	}
	s := &domain.Session{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		TenantID:       "school-1",
		JTI:            uuid.New().String(),
		ChainID:        chainID,
		RefreshTokenID: rt.ID,
		IssuedAt:       at,
		ExpiresAt:      at.Add(24 * time.Hour),
		IP:             "10.0.0.7",
		UserAgent:      "test-agent",
	}
	return rt, s
}

// runLedgerContract exercises behaviour every Ledger implementation must share.
// seedAccount creates the account row when the backing store enforces foreign keys.
func runLedgerContract(t *testing.T, newLedger func(t *testing.T) Ledger, seedAccount func(t *testing.T, id string)) {
	ctx := context.Background()

	t.Run("login pair round trip", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		rt, s := newPair(acct, uuid.New().String(), baseTime)
		if err := l.CreateLoginPair(ctx, rt, s); err != nil {
			t.Fatalf("CreateLoginPair: %v", err)
		}
		gotRT, err := l.GetRefreshTokenByHash(ctx, rt.SecretHash)
		if err != nil || gotRT == nil {
			t.Fatalf("GetRefreshTokenByHash: %v, %v", gotRT, err)
		}
		if gotRT.ID != rt.ID || gotRT.Used || gotRT.ReplacedBy != "" {
			t.Errorf("token = %+v", gotRT)
		}
		gotS, err := l.GetSessionByJTI(ctx, s.JTI)
		if err != nil || gotS == nil {
			t.Fatalf("GetSessionByJTI: %v, %v", gotS, err)
		}
		if gotS.ID != s.ID || gotS.ChainID != rt.ChainID || gotS.IP != "10.0.0.7" {
			t.Errorf("session = %+v", gotS)
		}
		missing, err := l.GetSessionByJTI(ctx, "nope")
		if err != nil || missing != nil {
			t.Errorf("missing jti: %v, %v", missing, err)
		}
		missingRT, err := l.GetRefreshTokenByHash(ctx, "nope")
		if err != nil || missingRT != nil {
			t.Errorf("missing hash: %v, %v", missingRT, err)
		}
	})

	t.Run("rotate links chain", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		chain := uuid.New().String()
		rt, s := newPair(acct, chain, baseTime)
		if err := l.CreateLoginPair(ctx, rt, s); err != nil {
			t.Fatalf("CreateLoginPair: %v", err)
		}
		next, ns := newPair(acct, chain, baseTime.Add(time.Minute))
		if err := l.Rotate(ctx, rt.ID, baseTime.Add(time.Minute), next, ns); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		old, _ := l.GetRefreshTokenByID(ctx, rt.ID)
		if !old.Used || old.ReplacedBy != next.ID || old.UsedAt == nil {
			t.Errorf("consumed token = %+v", old)
		}
		again, an := newPair(acct, chain, baseTime.Add(2*time.Minute))
		if err := l.Rotate(ctx, rt.ID, baseTime.Add(2*time.Minute), again, an); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("second Rotate = %v, want ErrClaimLost", err)
		}
		if s, _ := l.GetSessionByJTI(ctx, an.JTI); s != nil {
			t.Error("losing rotation must not write a session")
		}
		if rt, _ := l.GetRefreshTokenByID(ctx, again.ID); rt != nil {
			t.Error("losing rotation must not write a refresh token")
		}
	})

	t.Run("rotate refuses expired and revoked", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		chain := uuid.New().String()
		rt, s := newPair(acct, chain, baseTime)
		if err := l.CreateLoginPair(ctx, rt, s); err != nil {
			t.Fatalf("CreateLoginPair: %v", err)
		}
		late := rt.ExpiresAt.Add(time.Second)
		next, ns := newPair(acct, chain, late)
		if err := l.Rotate(ctx, rt.ID, late, next, ns); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("expired Rotate = %v, want ErrClaimLost", err)
		}
		if _, err := l.RevokeChain(ctx, chain, domain.ReasonLogout, baseTime); err != nil {
			t.Fatalf("RevokeChain: %v", err)
		}
		next, ns = newPair(acct, chain, baseTime.Add(time.Minute))
		if err := l.Rotate(ctx, rt.ID, baseTime.Add(time.Minute), next, ns); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("revoked Rotate = %v, want ErrClaimLost", err)
		}
		got, _ := l.GetRefreshTokenByID(ctx, rt.ID)
		if got.Used {
			t.Error("revoked token must stay unused")
		}
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		chain := uuid.New().String()
		rt, s := newPair(acct, chain, baseTime)
		if err := l.CreateLoginPair(ctx, rt, s); err != nil {
			t.Fatalf("CreateLoginPair: %v", err)
		}
		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
			lost    int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, ns := newPair(acct, chain, baseTime.Add(time.Minute))
				err := l.Rotate(ctx, rt.ID, baseTime.Add(time.Minute), next, ns)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners++
				case errors.Is(err, ErrClaimLost):
					lost++
				default:
					t.Errorf("Rotate: %v", err)
				}
			}()
		}
		wg.Wait()
		if winners != 1 || lost != n-1 {
			t.Errorf("winners = %d, lost = %d", winners, lost)
		}
	})

	t.Run("revocation is monotonic and scoped", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		other := uuid.New().String()
		seedAccount(t, acct)
		seedAccount(t, other)
		rtA, sA := newPair(acct, uuid.New().String(), baseTime)
		rtB, sB := newPair(acct, uuid.New().String(), baseTime)
		rtO, sO := newPair(other, uuid.New().String(), baseTime)
		for _, p := range []struct {
			rt *domain.RefreshToken
			s  *domain.Session
		}{{rtA, sA}, {rtB, sB}, {rtO, sO}} {
			if err := l.CreateLoginPair(ctx, p.rt, p.s); err != nil {
				t.Fatalf("CreateLoginPair: %v", err)
			}
		}

		revoked, err := l.RevokeSession(ctx, sA.ID, domain.ReasonLogout, baseTime.Add(time.Minute))
		if err != nil {
			t.Fatalf("RevokeSession: %v", err)
		}
		if len(revoked) != 1 || revoked[0].JTI != sA.JTI {
			t.Errorf("RevokeSession returned %+v", revoked)
		}
		again, err := l.RevokeSession(ctx, sA.ID, domain.ReasonAdmin, baseTime.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("RevokeSession again: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("second revoke returned %+v, want none", again)
		}
		got, _ := l.GetSessionByID(ctx, sA.ID)
		if !got.Revoked || got.RevocationReason != domain.ReasonLogout || !got.RevokedAt.Equal(baseTime.Add(time.Minute)) {
			t.Errorf("session after double revoke = %+v", got)
		}

		revoked, err = l.RevokeAllForAccount(ctx, acct, sB.ID, domain.ReasonPasswordChanged, baseTime.Add(3*time.Minute))
		if err != nil {
			t.Fatalf("RevokeAllForAccount: %v", err)
		}
		if len(revoked) != 0 {
			t.Errorf("except-session revoke returned %+v", revoked)
		}
		if s, _ := l.GetSessionByID(ctx, sB.ID); s.Revoked {
			t.Error("excepted session must stay live")
		}
		if tok, _ := l.GetRefreshTokenByID(ctx, rtB.ID); tok.Revoked {
			t.Error("excepted chain must stay live")
		}
		if tok, _ := l.GetRefreshTokenByID(ctx, rtA.ID); !tok.Revoked {
			t.Error("other chain of the account must be revoked")
		}

		revoked, err = l.RevokeAllForAccount(ctx, acct, "", domain.ReasonPasswordChanged, baseTime.Add(4*time.Minute))
		if err != nil {
			t.Fatalf("RevokeAllForAccount: %v", err)
		}
		if len(revoked) != 1 || revoked[0].ID != sB.ID {
			t.Errorf("revoke all returned %+v", revoked)
		}
		if s, _ := l.GetSessionByID(ctx, sO.ID); s.Revoked {
			t.Error("other account must be untouched")
		}
		if tok, _ := l.GetRefreshTokenByID(ctx, rtO.ID); tok.Revoked {
			t.Error("other account chain must be untouched")
		}
	})

	t.Run("replay revocation covers chain and account", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		chain := uuid.New().String()
		rt, s := newPair(acct, chain, baseTime)
		sibling, ss := newPair(acct, uuid.New().String(), baseTime)
		if err := l.CreateLoginPair(ctx, rt, s); err != nil {
			t.Fatal(err)
		}
		if err := l.CreateLoginPair(ctx, sibling, ss); err != nil {
			t.Fatal(err)
		}
		next, ns := newPair(acct, chain, baseTime.Add(time.Minute))
		if err := l.Rotate(ctx, rt.ID, baseTime.Add(time.Minute), next, ns); err != nil {
			t.Fatal(err)
		}
		revoked, err := l.RevokeForReplay(ctx, chain, acct, baseTime.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("RevokeForReplay: %v", err)
		}
		if len(revoked) != 3 {
			t.Errorf("revoked %d sessions, want 3", len(revoked))
		}
		for _, jti := range []string{s.JTI, ns.JTI, ss.JTI} {
			got, _ := l.GetSessionByJTI(ctx, jti)
			if !got.Revoked || got.RevocationReason != domain.ReasonReplayDetected {
				t.Errorf("session %s = %+v", jti, got)
			}
		}
		for _, id := range []string{next.ID, sibling.ID} {
			if tok, _ := l.GetRefreshTokenByID(ctx, id); !tok.Revoked {
				t.Errorf("token %s not revoked", id)
			}
		}
	})

	t.Run("purge removes only expired rows", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		old, oldSession := newPair(acct, uuid.New().String(), baseTime.Add(-2000*time.Hour))
		live, ls := newPair(acct, uuid.New().String(), baseTime)
		if err := l.CreateLoginPair(ctx, old, oldSession); err != nil {
			t.Fatal(err)
		}
		if err := l.CreateLoginPair(ctx, live, ls); err != nil {
			t.Fatal(err)
		}
		sessions, tokens, err := l.PurgeExpired(ctx, baseTime.Add(-720*time.Hour))
		if err != nil {
			t.Fatalf("PurgeExpired: %v", err)
		}
		if sessions != 1 || tokens != 1 {
			t.Errorf("purged sessions=%d tokens=%d, want 1/1", sessions, tokens)
		}
		if s, _ := l.GetSessionByID(ctx, ls.ID); s == nil {
			t.Error("live session purged")
		}
		if rt, _ := l.GetRefreshTokenByID(ctx, old.ID); rt != nil {
			t.Error("expired token kept")
		}
	})

	t.Run("purge keeps used tokens of a chain that can still rotate", func(t *testing.T) {
		l := newLedger(t)
		acct := uuid.New().String()
		seedAccount(t, acct)
		chain := uuid.New().String()
		first, fs := newPair(acct, chain, baseTime.Add(-2000*time.Hour))
		if err := l.CreateLoginPair(ctx, first, fs); err != nil {
			t.Fatal(err)
		}
		rotatedAt := first.ExpiresAt.Add(-time.Hour)
		next, ns := newPair(acct, chain, baseTime)
		if err := l.Rotate(ctx, first.ID, rotatedAt, next, ns); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
		_, tokens, err := l.PurgeExpired(ctx, baseTime.Add(-720*time.Hour))
		if err != nil {
			t.Fatalf("PurgeExpired: %v", err)
		}
		if tokens != 0 {
			t.Errorf("purged tokens = %d, want 0", tokens)
		}
		if rt, _ := l.GetRefreshTokenByID(ctx, first.ID); rt == nil || !rt.Used {
			t.Errorf("used token of a live chain = %+v, want kept and used", rt)
		}

		_, tokens, err = l.PurgeExpired(ctx, next.ExpiresAt.Add(time.Hour))
		if err != nil {
			t.Fatalf("PurgeExpired: %v", err)
		}
		if tokens != 2 {
			t.Errorf("purged tokens of a dead chain = %d, want 2", tokens)
		}
	})
}
