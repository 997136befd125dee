package domain

// LoginInput is the document a login policy is evaluated against.
type LoginInput struct {
	AccountID     string
	TenantID      string
	AccountStatus string
	IP            string
	UserAgent     string
}

// Decision is the outcome of a login policy.
type Decision struct {
	Allow bool
	// DenyReason is recorded on the login attempt; it is never shown to the caller.
	DenyReason string
}

// DefaultDenyReason is used when a policy denies without naming a reason, and when evaluation fails.
const DefaultDenyReason = "account_inactive"
