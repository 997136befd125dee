package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	attemptdomain "school-backoffice/backend/internal/loginattempt/domain"
	attemptrepo "school-backoffice/backend/internal/loginattempt/repository"
	sessiondomain "school-backoffice/backend/internal/session/domain"
	"school-backoffice/backend/internal/session/repository"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedPair(t *testing.T, ledger *repository.MemoryLedger, issued time.Time) {
	t.Helper()
	chain := uuid.New().String()
	rt := &sessiondomain.RefreshToken{
		ID: uuid.New().String(), AccountID: "acct-1", TenantID: "school-1", ChainID: chain,
		SecretHash: uuid.New().String(), CreatedAt: issued, ExpiresAt: issued.Add(720 * time.Hour),
	}
	s := &sessiondomain.Session{
		ID: uuid.New().String(), AccountID: "acct-1", TenantID: "school-1", JTI: uuid.New().String(),
		ChainID: chain, RefreshTokenID: rt.ID, IssuedAt: issued, ExpiresAt: issued.Add(24 * time.Hour),
	}
	if err := ledger.CreateLoginPair(context.Background(), rt, s); err != nil {
		t.Fatalf("CreateLoginPair: %v", err)
	}
}

func TestRunOnce_RespectsRetention(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	seedPair(t, ledger, now.Add(-2000*time.Hour)) // session and token long expired
	seedPair(t, ledger, now.Add(-100*time.Hour))  // session expired inside retention, token live
	seedPair(t, ledger, now)

	attempts := attemptrepo.NewMemoryRepository()
	for _, at := range []time.Time{now.Add(-27000 * time.Hour), now.Add(-time.Hour)} {
		if err := attempts.Record(ctx, &attemptdomain.Attempt{ID: uuid.New().String(), Identifier: "a@school.edu", AttemptedAt: at}); err != nil {
			t.Fatal(err)
		}
	}

	s := New(ledger, attempts, 720*time.Hour, 26280*time.Hour)
	s.now = func() time.Time { return now }
	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Sessions != 1 || res.RefreshTokens != 1 || res.LoginAttempts != 1 {
		t.Errorf("result = %+v, want 1/1/1", res)
	}
	if got := len(attempts.All()); got != 1 {
		t.Errorf("attempts left = %d, want 1", got)
	}

	res, err = s.RunOnce(ctx)
	if err != nil || res != (Result{}) {
		t.Errorf("second sweep = %+v, %v; want nothing removed", res, err)
	}
}

type failingLedger struct{}

func (failingLedger) PurgeExpired(context.Context, time.Time) (int64, int64, error) {
	return 0, 0, errors.New("db down")
}

func TestRunOnce_Errors(t *testing.T) {
	if _, err := New(failingLedger{}, nil, time.Hour, time.Hour).RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(nil, nil, time.Hour, time.Hour).RunOnce(context.Background()); err != nil {
		t.Fatalf("nil purgers: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(repository.NewMemoryLedger(), attemptrepo.NewMemoryRepository(), time.Hour, time.Hour).Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
