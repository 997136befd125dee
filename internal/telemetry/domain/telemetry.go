package domain

import "time"

// Event is one telemetry record (security event or request trace) exported as an OTel log record.
type Event struct {
	TenantID   string
	AccountID  string
	SessionID  string
	EventType  string
	Source     string
	Attributes map[string]string
	Metadata   []byte // JSON body, optional
	CreatedAt  time.Time
}
