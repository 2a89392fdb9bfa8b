package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/identity-service/config"
	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
	pginfra "github.com/oksasatya/identity-service/internal/infrastructure/postgres"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// Seeds a verified administrator. SEED_ADMIN_EMAIL / SEED_ADMIN_PASSWORD override the defaults.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)
	ctx := context.Background()

	email := envOr("SEED_ADMIN_EMAIL", "admin@example.com")
	password := envOr("SEED_ADMIN_PASSWORD", "password123")

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, cfg.DBMaxConnLife)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	cipher, err := helpers.NewCredentialCipher(cfg.CredentialKey, cfg.CredentialIV)
	if err != nil {
		logger.WithError(err).Fatal("failed to init credential cipher")
	}
	identities := pginfra.NewIdentityRepository(pool)

	if existing, err := identities.FindByEmail(ctx, email); err == nil {
		logger.WithField("id", existing.ID().String()).Info("admin already seeded")
		return
	} else if !errors.Is(err, repo.ErrNotFound) {
		logger.WithError(err).Fatal("lookup failed")
	}

	secret, err := cipher.Encrypt(password)
	if err != nil {
		logger.WithError(err).Fatal("encrypt password")
	}
	admin, err := entity.NewIdentity("Administrator", email, "", "", secret, entity.RoleAdmin, time.Now().UTC())
	if err != nil {
		logger.WithError(err).Fatal("build admin")
	}
	admin.VerifyEmail()
	if err := identities.Create(ctx, admin); err != nil {
		logger.WithError(err).Fatal("failed to seed admin")
	}
	logger.WithField("id", admin.ID().String()).WithField("email", email).Info("seeded admin")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
