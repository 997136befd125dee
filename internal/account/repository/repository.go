package repository

import (
	"context"

	"school-backoffice/backend/internal/account/domain"
)

// Repository is the account collaborator consumed by the auth core.
// Lookups return (nil, nil) when no account matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	UpdateSecretDigest(ctx context.Context, id, digest string) error
}
