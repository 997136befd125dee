package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"school-backoffice/backend/internal/server/interceptors"
	"school-backoffice/backend/internal/telemetry"
)

// Health methods are reachable without a bearer token and are not traced as telemetry events.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	// Auth validates bearer tokens and their sessions on every non-public RPC.
	Auth interceptors.Authenticator
	// Emitter receives one grpc_request event per RPC. If nil, no request events are emitted.
	Emitter telemetry.EventEmitter
	// Health is the grpc.health.v1 implementation. If nil, a new one is created.
	Health *health.Server
}

// NewGRPCServer returns a server with the telemetry and auth interceptors chained, OTel stats, and the
// standard health service registered. Other back-office services register their own services on it.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(deps.Emitter, publicMethods),
			interceptors.AuthUnary(deps.Auth, publicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
