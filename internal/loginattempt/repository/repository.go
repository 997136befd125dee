package repository

import (
	"context"
	"time"

	"school-backoffice/backend/internal/loginattempt/domain"
)

// Repository persists login attempts. Rows are append-only; only the retention purge deletes them.
type Repository interface {
	Record(ctx context.Context, a *domain.Attempt) error
	// FailureTimes returns, oldest first, the timestamps of counted failures for identifier in [since, until].
	FailureTimes(ctx context.Context, identifier string, since, until time.Time) ([]time.Time, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
