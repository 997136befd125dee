// worker runs the retention sweep: it purges sessions and refresh tokens that expired more than
// SESSION_RETENTION ago and login attempts older than LOGIN_ATTEMPT_RETENTION, every SWEEP_INTERVAL.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"school-backoffice/backend/internal/config"
	"school-backoffice/backend/internal/db"
	attemptrepo "school-backoffice/backend/internal/loginattempt/repository"
	sessionrepo "school-backoffice/backend/internal/session/repository"
	"school-backoffice/backend/internal/sweep"
)

func main() {
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	sweeper := sweep.New(
		sessionrepo.NewPostgresRepository(conn),
		attemptrepo.NewPostgresRepository(conn),
		cfg.SessionRetentionPeriod(),
		cfg.LoginAttemptRetentionPeriod(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		res, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		log.Printf("worker: removed %d sessions, %d refresh tokens, %d login attempts",
			res.Sessions, res.RefreshTokens, res.LoginAttempts)
		return
	}

	log.Printf("worker: sweeping every %s", cfg.SweepEvery())
	sweeper.Run(ctx, cfg.SweepEvery())
	log.Println("worker: stopped")
}
