package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"school-backoffice/backend/internal/loginattempt/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a login attempt repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record inserts the attempt. The attempt must have ID set.
func (r *PostgresRepository) Record(ctx context.Context, a *domain.Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (id, identifier, attempted_at, success, reason, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Identifier, a.AttemptedAt, a.Success, a.Reason, nullString(a.IP), nullString(a.UserAgent))
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FailureTimes(ctx context.Context, identifier string, since, until time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attempted_at
		FROM login_attempts
		WHERE identifier = $1
		  AND success = false
		  AND reason <> $2
		  AND attempted_at >= $3
		  AND attempted_at <= $4
		ORDER BY attempted_at ASC
	`, identifier, domain.ReasonRateLimited, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

// PurgeBefore deletes attempts older than cutoff and returns how many were removed.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge login attempts: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
