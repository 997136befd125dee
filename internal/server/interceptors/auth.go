package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"school-backoffice/backend/internal/security"
)

const bearerPrefix = "bearer "

// Authenticator validates an access token and the session behind it.
// *service.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token from gRPC
// metadata, rejects tokens whose session was revoked, and sets the identity in context.
// publicMethods is the set of full method names that do not require a Bearer token (e.g. health checks).
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := ExtractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		claims, err := auth.Authenticate(ctx, token)
		if err != nil {
			return nil, ToStatus(err)
		}
		return handler(WithIdentity(ctx, claims), req)
	}
}

// ExtractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func ExtractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return ParseBearer(vals[0])
}

// ParseBearer returns the token of an "Authorization: Bearer <token>" value, or "".
func ParseBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
