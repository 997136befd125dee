package repository

import (
	"context"
	"sort"
	"sync"

	"school-backoffice/backend/internal/audit/domain"
)

// MemoryRepository is an in-memory Repository for tests and local runs without Postgres.
type MemoryRepository struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *a)
	return nil
}

func (m *MemoryRepository) ListByAccount(_ context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.AuditLog
	for i := range m.logs {
		if m.logs[i].AccountID == accountID {
			c := m.logs[i]
			matched = append(matched, &c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
