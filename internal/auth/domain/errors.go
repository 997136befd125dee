// Package domain holds the caller-visible outcomes of the auth core. Transport layers translate
// a Kind to their own codes; nothing below the boundary knows about HTTP or gRPC.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one terminal outcome of an auth operation.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindRateLimited        Kind = "rate_limited"
	KindInvalidToken       Kind = "invalid_token"
	KindReplayDetected     Kind = "token_replay_detected"
	KindSessionRevoked     Kind = "session_revoked"
	KindUnavailable        Kind = "unavailable"
	KindWeakPassword       Kind = "weak_password"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken}
	ErrReplayDetected     = &Error{Kind: KindReplayDetected}
	ErrSessionRevoked     = &Error{Kind: KindSessionRevoked}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
	ErrWeakPassword       = &Error{Kind: KindWeakPassword}
)

// Error carries a Kind, an optional retry hint, and the underlying cause (never shown to clients).
type Error struct {
	Kind       Kind
	RetryAfter time.Duration // set for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrReplayDetected) works on wrapped values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an *Error of kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Unavailable wraps a storage or infrastructure failure. Callers may retry.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Err: cause}
}

// RateLimited returns a rate-limit error with the time until the caller may try again.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter}
}

// KindOf returns the Kind of err, or KindUnavailable for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// RetryAfterOf returns the retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
