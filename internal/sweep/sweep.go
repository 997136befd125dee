// Package sweep purges expired sessions, refresh tokens and old login attempts on a schedule.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"
)

// LedgerPurger is implemented by the session ledger.
type LedgerPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (sessions int64, tokens int64, err error)
}

// AttemptPurger is implemented by the login attempt repository.
type AttemptPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result counts rows removed by one sweep.
type Result struct {
	Sessions      int64
	RefreshTokens int64
	LoginAttempts int64
}

// Sweeper deletes ledger rows that expired more than sessionRetention ago and login attempts older than
// attemptRetention. Rows inside the retention windows stay available for audit and the rate limiter.
type Sweeper struct {
	ledger           LedgerPurger
	attempts         AttemptPurger
	sessionRetention time.Duration
	attemptRetention time.Duration
	now              func() time.Time
}

// New returns a Sweeper. Either purger may be nil to skip that table.
func New(ledger LedgerPurger, attempts AttemptPurger, sessionRetention, attemptRetention time.Duration) *Sweeper {
	return &Sweeper{
		ledger:           ledger,
		attempts:         attempts,
		sessionRetention: sessionRetention,
		attemptRetention: attemptRetention,
		now:              time.Now,
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.now().UTC()
	if s.ledger != nil {
		sessions, tokens, err := s.ledger.PurgeExpired(ctx, now.Add(-s.sessionRetention))
		if err != nil {
			return res, fmt.Errorf("purge ledger: %w", err)
		}
		res.Sessions, res.RefreshTokens = sessions, tokens
	}
	if s.attempts != nil {
		n, err := s.attempts.PurgeBefore(ctx, now.Add(-s.attemptRetention))
		if err != nil {
			return res, fmt.Errorf("purge login attempts: %w", err)
		}
		res.LoginAttempts = n
	}
	return res, nil
}

// Run sweeps immediately and then every interval until ctx is done. Failures are logged and retried on
// the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		res, err := s.RunOnce(ctx)
		if err != nil {
			log.Printf("sweep: %v", err)
		} else {
			log.Printf("sweep: removed %d sessions, %d refresh tokens, %d login attempts",
				res.Sessions, res.RefreshTokens, res.LoginAttempts)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
