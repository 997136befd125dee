package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"school-backoffice/backend/internal/account/domain"
)

// ErrAccountNotFound is returned by UpdateSecretDigest when no account has the given id.
var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `id, tenant_id, email, phone, secret_digest, status, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail returns the account with the given (already normalized) email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// GetByPhone returns the account with the given (already normalized) phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

// Create persists the account. The account must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.TenantID, nullString(a.Email), nullString(a.Phone), a.SecretDigest, string(a.Status), a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateSecretDigest replaces the stored secret digest. Returns ErrAccountNotFound if no row matched.
func (r *PostgresRepository) UpdateSecretDigest(ctx context.Context, id, digest string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET secret_digest = $2, updated_at = $3 WHERE id = $1
	`, id, digest, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var (
		a      domain.Account
		email  sql.NullString
		phone  sql.NullString
		status string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.TenantID, &email, &phone, &a.SecretDigest, &status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Email = email.String
	a.Phone = phone.String
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
