package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"school-backoffice/backend/internal/loginattempt/domain"
)

// AttemptRepo is the minimal login attempt repository needed by the limiter.
type AttemptRepo interface {
	Record(ctx context.Context, a *domain.Attempt) error
	FailureTimes(ctx context.Context, identifier string, since, until time.Time) ([]time.Time, error)
}

// Outcome describes one finished login call.
type Outcome struct {
	Success   bool
	Reason    string
	IP        string
	UserAgent string
}

// Limiter blocks an identifier once MaxFailures credential failures fall inside the trailing window.
// It keeps no in-process counters: every decision is computed from persisted attempts, so it holds
// across restarts and across instances sharing one database.
type Limiter struct {
	repo        AttemptRepo
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

// NewLimiter returns a limiter over repo. Non-positive values fall back to 5 failures in 15 minutes.
func NewLimiter(repo AttemptRepo, maxFailures int, window time.Duration) *Limiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Limiter{repo: repo, maxFailures: maxFailures, window: window, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// IsBlocked reports whether identifier has reached the failure limit inside [now-window, now].
// When blocked, retryAfter is the time until enough counted failures age out to drop below the limit.
func (l *Limiter) IsBlocked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	now := l.now().UTC()
	times, err := l.repo.FailureTimes(ctx, identifier, now.Add(-l.window), now)
	if err != nil {
		return false, 0, fmt.Errorf("count login failures: %w", err)
	}
	if len(times) < l.maxFailures {
		return false, 0, nil
	}
	// The block lifts once the failure at this index leaves the window.
	pivot := times[len(times)-l.maxFailures]
	retryAfter := pivot.Add(l.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter, nil
}

// CheckAndRecord appends the outcome as an immutable attempt row and reports whether the identifier
// may still try again afterwards.
func (l *Limiter) CheckAndRecord(ctx context.Context, identifier string, outcome Outcome) (bool, error) {
	a := &domain.Attempt{
		ID:          uuid.New().String(),
		Identifier:  domain.NormalizeIdentifier(identifier),
		AttemptedAt: l.now().UTC(),
		Success:     outcome.Success,
		Reason:      outcome.Reason,
		IP:          outcome.IP,
		UserAgent:   outcome.UserAgent,
	}
	if a.Success {
		a.Reason = ""
	}
	if err := l.repo.Record(ctx, a); err != nil {
		return false, fmt.Errorf("record login attempt: %w", err)
	}
	blocked, _, err := l.IsBlocked(ctx, identifier)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
