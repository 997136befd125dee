package domain

import (
	"testing"
	"time"
)

func TestSession_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		s    *Session
		want bool
	}{
		{"nil", nil, false},
		{"live", &Session{ExpiresAt: now.Add(time.Hour)}, true},
		{"revoked but unexpired", &Session{ExpiresAt: now.Add(time.Hour), Revoked: true}, false},
		{"expired", &Session{ExpiresAt: now}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.ActiveAt(now); got != tc.want {
				t.Errorf("ActiveAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRefreshToken_ExpiredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := &RefreshToken{ExpiresAt: now}
	if !rt.ExpiredAt(now) {
		t.Error("token should be expired at its expiry instant")
	}
	if rt.ExpiredAt(now.Add(-time.Second)) {
		t.Error("token should be valid before expiry")
	}
}
