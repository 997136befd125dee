package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"school-backoffice/backend/internal/loginattempt/domain"
)

// MemoryRepository keeps attempts in process. Used by tests and local tooling.
type MemoryRepository struct {
	mu       sync.Mutex
	attempts []domain.Attempt
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Record(_ context.Context, a *domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *MemoryRepository) FailureTimes(_ context.Context, identifier string, since, until time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for i := range m.attempts {
		a := &m.attempts[i]
		if a.Identifier != identifier || !a.CountsTowardLimit() {
			continue
		}
		if a.AttemptedAt.Before(since) || a.AttemptedAt.After(until) {
			continue
		}
		out = append(out, a.AttemptedAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *MemoryRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[:0]
	var n int64
	for _, a := range m.attempts {
		if a.AttemptedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.attempts = kept
	return n, nil
}

// All returns a copy of every recorded attempt in insertion order.
func (m *MemoryRepository) All() []domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Attempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}
