// seed inserts development accounts for local testing. Run after cmd/migrate.
// Idempotent: accounts whose email already exists are skipped.
package main

import (
	"context"
	"log"
	"time"

	"school-backoffice/backend/internal/account/domain"
	"school-backoffice/backend/internal/account/repository"
	"school-backoffice/backend/internal/config"
	"school-backoffice/backend/internal/db"
	"school-backoffice/backend/internal/security"
)

const (
	devTenantID = "dev-school-001"
	devPassword = "Backoffice-Dev-2024!"
)

var devAccounts = []domain.Account{
	{ID: "dev-account-teacher", Email: "teacher@school.edu", Phone: "+15550100199", Status: domain.AccountStatusActive},
	{ID: "dev-account-office", Email: "office@school.edu", Status: domain.AccountStatusActive},
	{ID: "dev-account-suspended", Email: "suspended@school.edu", Status: domain.AccountStatusSuspended},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	accounts := repository.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	digest, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for _, a := range devAccounts {
		existing, err := accounts.GetByEmail(ctx, a.Email)
		if err != nil {
			log.Fatalf("seed check %s: %v", a.Email, err)
		}
		if existing != nil {
			log.Printf("seed: %s exists, skipping", a.Email)
			continue
		}
		a.TenantID = devTenantID
		a.SecretDigest = digest
		a.CreatedAt, a.UpdatedAt = now, now
		if err := accounts.Create(ctx, &a); err != nil {
			log.Fatalf("create %s: %v", a.Email, err)
		}
		log.Printf("seed: created %s (%s)", a.Email, a.Status)
	}
	log.Printf("seed: done; password for all dev accounts is %q", devPassword)
}
