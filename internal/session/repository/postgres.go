package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"school-backoffice/backend/internal/db"
	"school-backoffice/backend/internal/session/domain"
)

const (
	sessionColumns = `id, account_id, tenant_id, jti, chain_id, refresh_token_id, issued_at, expires_at,
		revoked, revoked_at, revocation_reason, ip, user_agent`
	refreshColumns = `id, account_id, tenant_id, chain_id, secret_hash, used, used_at, revoked, revoked_at,
		created_at, expires_at, replaced_by`
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session ledger that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// CreateLoginPair inserts the chain root before the session that references it.
func (r *PostgresRepository) CreateLoginPair(ctx context.Context, rt *domain.RefreshToken, s *domain.Session) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertRefreshToken(ctx, tx, rt); err != nil {
			return err
		}
		return insertSession(ctx, tx, s)
	})
}

// GetRefreshTokenByHash returns the refresh token with the given secret hash, or nil if not found.
func (r *PostgresRepository) GetRefreshTokenByHash(ctx context.Context, secretHash string) (*domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE secret_hash = $1`, secretHash))
}

// GetRefreshTokenByID returns the refresh token for id, or nil if not found.
func (r *PostgresRepository) GetRefreshTokenByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1`, id))
}

// Rotate claims consumedID with a single conditional UPDATE and, only if exactly one row changed,
// inserts the next link and its session in the same transaction. replaced_by is a deferred foreign key,
// so it may name the next token before that row exists.
func (r *PostgresRepository) Rotate(ctx context.Context, consumedID string, at time.Time, next *domain.RefreshToken, s *domain.Session) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET used = true, used_at = $2, replaced_by = $3
			WHERE id = $1 AND used = false AND revoked = false AND expires_at > $2
		`, consumedID, at, next.ID)
		if err != nil {
			return fmt.Errorf("claim refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrClaimLost
		}
		if err := insertRefreshToken(ctx, tx, next); err != nil {
			return err
		}
		return insertSession(ctx, tx, s)
	})
}

// GetSessionByJTI returns the session carrying jti, or nil if not found.
func (r *PostgresRepository) GetSessionByJTI(ctx context.Context, jti string) (*domain.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE jti = $1`, jti))
}

// GetSessionByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// RevokeSession revokes one session. Already-revoked sessions keep their original timestamp and reason.
func (r *PostgresRepository) RevokeSession(ctx context.Context, sessionID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	return revokeSessions(ctx, r.db, `id = $3`, reason, at, sessionID)
}

// RevokeChain revokes every token of the chain and every session minted from it.
func (r *PostgresRepository) RevokeChain(ctx context.Context, chainID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	var out []domain.RevokedSession
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := revokeTokens(ctx, tx, `chain_id = $2`, at, chainID); err != nil {
			return err
		}
		var err error
		out, err = revokeSessions(ctx, tx, `chain_id = $3`, reason, at, chainID)
		return err
	})
	return out, err
}

// RevokeAllForAccount revokes all sessions and chains of the account, sparing exceptSessionID and its chain when set.
func (r *PostgresRepository) RevokeAllForAccount(ctx context.Context, accountID, exceptSessionID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	var out []domain.RevokedSession
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		exceptChain := ""
		if exceptSessionID != "" {
			err := tx.QueryRowContext(ctx, `SELECT chain_id FROM sessions WHERE id = $1 AND account_id = $2`,
				exceptSessionID, accountID).Scan(&exceptChain)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		if err := revokeTokens(ctx, tx, `account_id = $2 AND chain_id <> $3`, at, accountID, exceptChain); err != nil {
			return err
		}
		var err error
		out, err = revokeSessions(ctx, tx, `account_id = $3 AND id <> $4`, reason, at, accountID, exceptSessionID)
		return err
	})
	return out, err
}

// RevokeForReplay revokes the chain and everything else the account holds in one transaction.
func (r *PostgresRepository) RevokeForReplay(ctx context.Context, chainID, accountID string, at time.Time) ([]domain.RevokedSession, error) {
	var out []domain.RevokedSession
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := revokeTokens(ctx, tx, `(chain_id = $2 OR account_id = $3)`, at, chainID, accountID); err != nil {
			return err
		}
		var err error
		out, err = revokeSessions(ctx, tx, `(chain_id = $3 OR account_id = $4)`, domain.ReasonReplayDetected, at, chainID, accountID)
		return err
	})
	return out, err
}

// PurgeExpired deletes sessions first so no session points at a deleted token.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	var sessions, tokens int64
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		if sessions, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			DELETE FROM refresh_tokens rt
			WHERE rt.expires_at < $1
			  AND NOT EXISTS (
				SELECT 1 FROM refresh_tokens live
				WHERE live.chain_id = rt.chain_id AND live.expires_at >= $1
			  )`, cutoff)
		if err != nil {
			return fmt.Errorf("purge refresh tokens: %w", err)
		}
		tokens, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return sessions, tokens, nil
}

// revokeTokens sets revoked on unrevoked tokens matching where; $1 is the revocation time.
func revokeTokens(ctx context.Context, q execer, where string, at time.Time, args ...any) error {
	_, err := q.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = true, revoked_at = COALESCE(revoked_at, $1)
		WHERE revoked = false AND `+where, append([]any{at}, args...)...)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// revokeSessions sets revoked on unrevoked sessions matching where; $1 is the time, $2 the reason.
func revokeSessions(ctx context.Context, q execer, where, reason string, at time.Time, args ...any) ([]domain.RevokedSession, error) {
	rows, err := q.QueryContext(ctx, `
		UPDATE sessions SET revoked = true, revoked_at = COALESCE(revoked_at, $1), revocation_reason = $2
		WHERE revoked = false AND `+where+`
		RETURNING id, jti, expires_at`, append([]any{at, reason}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	defer rows.Close()
	var out []domain.RevokedSession
	for rows.Next() {
		var rs domain.RevokedSession
		if err := rows.Scan(&rs.ID, &rs.JTI, &rs.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func insertRefreshToken(ctx context.Context, tx *sql.Tx, rt *domain.RefreshToken) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rt.ID, rt.AccountID, rt.TenantID, rt.ChainID, rt.SecretHash, rt.Used, timeToNullTime(rt.UsedAt),
		rt.Revoked, timeToNullTime(rt.RevokedAt), rt.CreatedAt, rt.ExpiresAt, nullString(rt.ReplacedBy))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, s *domain.Session) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, s.ID, s.AccountID, s.TenantID, s.JTI, s.ChainID, nullString(s.RefreshTokenID), s.IssuedAt, s.ExpiresAt,
		s.Revoked, timeToNullTime(s.RevokedAt), nullString(s.RevocationReason), nullString(s.IP), nullString(s.UserAgent))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var (
		s                         domain.Session
		refreshID, reason, ip, ua sql.NullString
		revokedAt                 sql.NullTime
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.TenantID, &s.JTI, &s.ChainID, &refreshID, &s.IssuedAt, &s.ExpiresAt,
		&s.Revoked, &revokedAt, &reason, &ip, &ua)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.RefreshTokenID = refreshID.String
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.RevocationReason = reason.String
	s.IP = ip.String
	s.UserAgent = ua.String
	return &s, nil
}

func scanRefreshToken(row *sql.Row) (*domain.RefreshToken, error) {
	var (
		rt                domain.RefreshToken
		usedAt, revokedAt sql.NullTime
		replacedBy        sql.NullString
	)
	err := row.Scan(&rt.ID, &rt.AccountID, &rt.TenantID, &rt.ChainID, &rt.SecretHash, &rt.Used, &usedAt,
		&rt.Revoked, &revokedAt, &rt.CreatedAt, &rt.ExpiresAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rt.UsedAt = nullTimeToPtr(usedAt)
	rt.RevokedAt = nullTimeToPtr(revokedAt)
	rt.ReplacedBy = replacedBy.String
	return &rt, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
