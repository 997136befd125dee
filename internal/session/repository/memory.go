package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"school-backoffice/backend/internal/session/domain"
)

// MemoryLedger is an in-process Ledger. A single mutex makes the claim in Rotate a compare-and-set,
// matching the conditional UPDATE of the Postgres ledger. Used by tests and local tooling.
type MemoryLedger struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	tokens    map[string]*domain.RefreshToken
	byHash    map[string]string
	byJTI     map[string]string
	revokeErr error
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		sessions: make(map[string]*domain.Session),
		tokens:   make(map[string]*domain.RefreshToken),
		byHash:   make(map[string]string),
		byJTI:    make(map[string]string),
	}
}

// FailRevocations makes every later revocation return err without changing state. nil restores normal behaviour.
func (m *MemoryLedger) FailRevocations(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeErr = err
}

func (m *MemoryLedger) CreateLoginPair(_ context.Context, rt *domain.RefreshToken, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInsert(rt, s, ""); err != nil {
		return err
	}
	m.put(rt, s)
	return nil
}

func (m *MemoryLedger) GetRefreshTokenByHash(_ context.Context, secretHash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[secretHash]
	if !ok {
		return nil, nil
	}
	return copyToken(m.tokens[id]), nil
}

func (m *MemoryLedger) GetRefreshTokenByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyToken(m.tokens[id]), nil
}

func (m *MemoryLedger) Rotate(_ context.Context, consumedID string, at time.Time, next *domain.RefreshToken, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tokens[consumedID]
	if !ok || cur.Used || cur.Revoked || cur.ExpiredAt(at) {
		return ErrClaimLost
	}
	if err := m.checkInsert(next, s, consumedID); err != nil {
		return err
	}
	usedAt := at
	cur.Used = true
	cur.UsedAt = &usedAt
	cur.ReplacedBy = next.ID
	m.put(next, s)
	return nil
}

func (m *MemoryLedger) GetSessionByJTI(_ context.Context, jti string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byJTI[jti]
	if !ok {
		return nil, nil
	}
	return copySession(m.sessions[id]), nil
}

func (m *MemoryLedger) GetSessionByID(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.sessions[id]), nil
}

func (m *MemoryLedger) RevokeSession(_ context.Context, sessionID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	return m.revokeSessionsWhere(func(s *domain.Session) bool { return s.ID == sessionID }, reason, at), nil
}

func (m *MemoryLedger) RevokeChain(_ context.Context, chainID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	m.revokeTokensWhere(func(t *domain.RefreshToken) bool { return t.ChainID == chainID }, at)
	return m.revokeSessionsWhere(func(s *domain.Session) bool { return s.ChainID == chainID }, reason, at), nil
}

func (m *MemoryLedger) RevokeAllForAccount(_ context.Context, accountID, exceptSessionID, reason string, at time.Time) ([]domain.RevokedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	exceptChain := ""
	if s, ok := m.sessions[exceptSessionID]; ok && s.AccountID == accountID {
		exceptChain = s.ChainID
	}
	m.revokeTokensWhere(func(t *domain.RefreshToken) bool {
		return t.AccountID == accountID && (exceptChain == "" || t.ChainID != exceptChain)
	}, at)
	return m.revokeSessionsWhere(func(s *domain.Session) bool {
		return s.AccountID == accountID && s.ID != exceptSessionID
	}, reason, at), nil
}

func (m *MemoryLedger) RevokeForReplay(_ context.Context, chainID, accountID string, at time.Time) ([]domain.RevokedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	m.revokeTokensWhere(func(t *domain.RefreshToken) bool { return t.ChainID == chainID || t.AccountID == accountID }, at)
	return m.revokeSessionsWhere(func(s *domain.Session) bool {
		return s.ChainID == chainID || s.AccountID == accountID
	}, domain.ReasonReplayDetected, at), nil
}

func (m *MemoryLedger) PurgeExpired(_ context.Context, cutoff time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions, tokens int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.byJTI, s.JTI)
			delete(m.sessions, id)
			sessions++
		}
	}
	liveChains := make(map[string]bool)
	for _, t := range m.tokens {
		if !t.ExpiresAt.Before(cutoff) {
			liveChains[t.ChainID] = true
		}
	}
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) && !liveChains[t.ChainID] {
			delete(m.byHash, t.SecretHash)
			delete(m.tokens, id)
			tokens++
		}
	}
	return sessions, tokens, nil
}

// checkInsert mirrors the unique constraints of the Postgres schema. consumedID names a token being marked
// used in the same step, so it does not count as the chain's unused token. Callers hold mu.
func (m *MemoryLedger) checkInsert(rt *domain.RefreshToken, s *domain.Session, consumedID string) error {
	if _, ok := m.tokens[rt.ID]; ok {
		return fmt.Errorf("refresh token %s already exists", rt.ID)
	}
	if _, ok := m.byHash[rt.SecretHash]; ok {
		return fmt.Errorf("refresh token hash already exists")
	}
	for _, t := range m.tokens {
		if t.ID != consumedID && t.ChainID == rt.ChainID && !t.Used {
			return fmt.Errorf("chain %s already has an unused refresh token", rt.ChainID)
		}
	}
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if _, ok := m.byJTI[s.JTI]; ok {
		return fmt.Errorf("jti already exists")
	}
	return nil
}

func (m *MemoryLedger) put(rt *domain.RefreshToken, s *domain.Session) {
	t := copyToken(rt)
	m.tokens[t.ID] = t
	m.byHash[t.SecretHash] = t.ID
	cs := copySession(s)
	m.sessions[cs.ID] = cs
	m.byJTI[cs.JTI] = cs.ID
}

func (m *MemoryLedger) revokeTokensWhere(match func(*domain.RefreshToken) bool, at time.Time) {
	for _, t := range m.tokens {
		if !t.Revoked && match(t) {
			revokedAt := at
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
}

func (m *MemoryLedger) revokeSessionsWhere(match func(*domain.Session) bool, reason string, at time.Time) []domain.RevokedSession {
	var out []domain.RevokedSession
	for _, s := range m.sessions {
		if !s.Revoked && match(s) {
			revokedAt := at
			s.Revoked = true
			s.RevokedAt = &revokedAt
			s.RevocationReason = reason
			out = append(out, domain.RevokedSession{ID: s.ID, JTI: s.JTI, ExpiresAt: s.ExpiresAt})
		}
	}
	return out
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
