package repository

import (
	"context"
	"database/sql"

	"school-backoffice/backend/internal/audit/domain"
)

const auditColumns = `id, tenant_id, account_id, session_id, chain_id, action, identifier, reason, ip, user_agent, count, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.TenantID, nullString(a.AccountID), nullString(a.SessionID), nullString(a.ChainID), a.Action,
		nullString(a.Identifier), nullString(a.Reason), a.IP, nullString(a.UserAgent), a.Count, a.CreatedAt)
	return err
}

// ListByAccount returns audit logs for the account, newest first, paginated by limit and offset.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM auth_audit_logs
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                                                        domain.AuditLog
			accountIDCol, sessionID, chainID, identifier, reason, ua sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &accountIDCol, &sessionID, &chainID, &a.Action,
			&identifier, &reason, &a.IP, &ua, &a.Count, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AccountID, a.SessionID, a.ChainID = accountIDCol.String, sessionID.String, chainID.String
		a.Identifier, a.Reason, a.UserAgent = identifier.String, reason.String, ua.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
