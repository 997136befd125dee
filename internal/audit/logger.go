package audit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"school-backoffice/backend/internal/audit/domain"
	"school-backoffice/backend/internal/telemetry"
	telemetrydomain "school-backoffice/backend/internal/telemetry/domain"
)

// SentinelTenantID is the tenant used for events that have no account (e.g. login_failure for an unknown identifier).
const SentinelTenantID = "_system"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger records a single security event. Used by the auth service.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, entry *domain.AuditLog)
}

// Store persists audit logs. Implemented by repository.PostgresRepository.
type Store interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}

// storeTimeout bounds a single audit insert.
const storeTimeout = 2 * time.Second

// Logger implements AuditLogger by writing a log line, exporting the event as an OTel log record and,
// when a store is attached, persisting it.
type Logger struct {
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	store       Store
}

// NewLogger returns an AuditLogger that exports through emitter and uses ipExtractor when the entry has no IP.
// Both may be nil; then events are only written to the process log and IP is recorded as "unknown".
func NewLogger(emitter telemetry.EventEmitter, ipExtractor IPExtractor) *Logger {
	return &Logger{emitter: emitter, ipExtractor: ipExtractor}
}

// WithStore attaches a persistent store. Store failures are logged and never reach the caller.
func (l *Logger) WithStore(store Store) *Logger {
	l.store = store
	return l
}

// LogEvent fills defaults on entry and emits it asynchronously.
func (l *Logger) LogEvent(ctx context.Context, entry *domain.AuditLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.TenantID == "" {
		entry.TenantID = SentinelTenantID
	}
	if entry.IP == "" {
		entry.IP = "unknown"
		if l.ipExtractor != nil {
			entry.IP = l.ipExtractor(ctx)
		}
	}
	log.Printf("audit: %s tenant=%s account=%s session=%s reason=%s ip=%s",
		entry.Action, entry.TenantID, entry.AccountID, entry.SessionID, entry.Reason, entry.IP)
	if l.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		if err := l.store.Create(storeCtx, entry); err != nil {
			log.Printf("audit: failed to persist audit log: %v", err)
		}
		cancel()
	}
	telemetry.EmitAsync(l.emitter, ctx, toEvent(entry))
}

func toEvent(entry *domain.AuditLog) *telemetrydomain.Event {
	attrs := map[string]string{
		"audit_id":   entry.ID,
		"chain_id":   entry.ChainID,
		"identifier": entry.Identifier,
		"reason":     entry.Reason,
		"client_ip":  entry.IP,
		"user_agent": entry.UserAgent,
	}
	if entry.Count > 0 {
		attrs["count"] = strconv.Itoa(entry.Count)
	}
	return &telemetrydomain.Event{
		TenantID:   entry.TenantID,
		AccountID:  entry.AccountID,
		SessionID:  entry.SessionID,
		EventType:  entry.Action,
		Source:     "auth",
		Attributes: attrs,
		CreatedAt:  entry.CreatedAt,
	}
}
