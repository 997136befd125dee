package repository

import (
	"context"

	"school-backoffice/backend/internal/audit/domain"
)

// Repository persists security events. Rows are append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByAccount returns the account's events, newest first.
	ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error)
}
