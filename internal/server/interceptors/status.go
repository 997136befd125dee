package interceptors

import (
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authdomain "school-backoffice/backend/internal/auth/domain"
)

// ToStatus maps an auth error to a gRPC status. The message is the stable kind string; causes stay internal.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	kind := authdomain.KindOf(err)
	switch kind {
	case authdomain.KindRateLimited:
		secs := int64(math.Ceil(authdomain.RetryAfterOf(err).Seconds()))
		return status.Error(codes.ResourceExhausted, fmt.Sprintf("%s: retry after %ds", kind, secs))
	case authdomain.KindUnavailable:
		return status.Error(codes.Unavailable, string(kind))
	case authdomain.KindWeakPassword:
		return status.Error(codes.InvalidArgument, string(kind))
	default:
		return status.Error(codes.Unauthenticated, string(kind))
	}
}
