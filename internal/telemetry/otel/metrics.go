package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AuthMetrics holds the counters of the auth core. A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	logins      metric.Int64Counter
	refreshes   metric.Int64Counter
	replays     metric.Int64Counter
	revocations metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on provider. A nil provider yields no-op instruments.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(scopeName)
	logins, err := meter.Int64Counter("auth.logins", metric.WithDescription("Login calls by outcome"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refreshes", metric.WithDescription("Refresh calls by outcome"))
	if err != nil {
		return nil, err
	}
	replays, err := meter.Int64Counter("auth.replays_detected", metric.WithDescription("Refresh token replays detected"))
	if err != nil {
		return nil, err
	}
	revocations, err := meter.Int64Counter("auth.sessions_revoked", metric.WithDescription("Sessions revoked by reason"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{logins: logins, refreshes: refreshes, replays: replays, revocations: revocations}, nil
}

// Login counts one login call with the given outcome ("success" or an error kind).
func (m *AuthMetrics) Login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Refresh counts one refresh call with the given outcome.
func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *AuthMetrics) Replay(ctx context.Context) {
	if m == nil {
		return
	}
	m.replays.Add(ctx, 1)
}

// Revoked counts n sessions revoked for reason.
func (m *AuthMetrics) Revoked(ctx context.Context, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.revocations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}
