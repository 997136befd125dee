// server runs the auth core: the HTTP auth API and a gRPC server carrying the session interceptor and health.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"school-backoffice/backend/internal/account/repository"
	"school-backoffice/backend/internal/audit"
	auditrepo "school-backoffice/backend/internal/audit/repository"
	authhandler "school-backoffice/backend/internal/auth/handler"
	authservice "school-backoffice/backend/internal/auth/service"
	"school-backoffice/backend/internal/config"
	"school-backoffice/backend/internal/db"
	"school-backoffice/backend/internal/health"
	attemptrepo "school-backoffice/backend/internal/loginattempt/repository"
	attemptservice "school-backoffice/backend/internal/loginattempt/service"
	"school-backoffice/backend/internal/policy/engine"
	"school-backoffice/backend/internal/security"
	"school-backoffice/backend/internal/server"
	"school-backoffice/backend/internal/server/interceptors"
	"school-backoffice/backend/internal/session/cache"
	sessionrepo "school-backoffice/backend/internal/session/repository"
	"school-backoffice/backend/internal/telemetry"
	telemetryotel "school-backoffice/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	hasher := security.NewHasher(cfg.BcryptCost)
	dummyDigest, err := hasher.DummyDigest()
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}

	loginPolicy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.LoginPolicyFile)
	if err != nil {
		log.Fatalf("login policy: %v", err)
	}

	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)
	metrics, err := telemetryotel.NewAuthMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	attempts := attemptrepo.NewPostgresRepository(conn)
	deps := authservice.Deps{
		Accounts:       repository.NewPostgresRepository(conn),
		Hasher:         hasher,
		DummyDigest:    dummyDigest,
		PasswordPolicy: security.DefaultPasswordPolicy,
		Limiter:        attemptservice.NewLimiter(attempts, cfg.LoginMaxFailures, cfg.FailureWindow()),
		Ledger:         sessionrepo.NewPostgresRepository(conn),
		Tokens:         tokens,
		RefreshTTL:     cfg.RefreshTTL(),
		LoginPolicy:    loginPolicy,
		Audit:          audit.NewLogger(emitter, interceptors.ClientIP).WithStore(auditrepo.NewPostgresRepository(conn)),
		Metrics:        metrics,
	}

	var cachePinger health.CachePinger
	if cfg.RedisURL != "" {
		revocations, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			// Revocation checks fall back to the database.
			log.Printf("redis: revocation cache disabled: %v", err)
		} else {
			defer revocations.Close()
			deps.Cache = revocations
			cachePinger = revocations
		}
	}

	authSvc := authservice.NewAuthService(deps)
	checker := health.NewChecker(conn, cachePinger, loginPolicy)

	grpcSrv, healthSrv := server.NewGRPCServer(server.Deps{Auth: authSvc, Emitter: emitter})
	go checker.Watch(ctx, healthSrv, 15*time.Second)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: authhandler.NewRouter(authhandler.NewAuthHandler(authSvc), authSvc, authhandler.RouterOptions{
			Health:         checker,
			AllowedOrigins: cfg.AllowedOrigins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc serve: %v", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http serve: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	wg.Wait()

	// Let in-flight audit emits finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("server stopped")
}
