package interceptors

import (
	"context"

	"school-backoffice/backend/internal/security"
)

type contextKey struct{ name string }

var (
	accountIDKey = contextKey{"account_id"}
	tenantIDKey  = contextKey{"tenant_id"}
	sessionIDKey = contextKey{"session_id"}
	jtiKey       = contextKey{"jti"}
)

// WithIdentity returns a context carrying the account, tenant, session and jti of validated claims.
// Both the gRPC interceptor and the HTTP middleware set it; handlers read it with the getters below.
func WithIdentity(ctx context.Context, claims *security.AccessClaims) context.Context {
	if claims == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, accountIDKey, claims.Subject)
	ctx = context.WithValue(ctx, tenantIDKey, claims.TenantID)
	ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
	ctx = context.WithValue(ctx, jtiKey, claims.ID)
	return ctx
}

// GetAccountID returns the account_id from context and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	return v, ok
}

// GetTenantID returns the tenant_id from context and true if set; otherwise "", false.
func GetTenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetJTI returns the access token id from context and true if set; otherwise "", false.
func GetJTI(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(jtiKey).(string)
	return v, ok
}
