package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/oksasatya/identity-service/config"
	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/container"
	"github.com/oksasatya/identity-service/internal/infrastructure/memory"
	"github.com/oksasatya/identity-service/internal/infrastructure/oidc"
	pginfra "github.com/oksasatya/identity-service/internal/infrastructure/postgres"
	"github.com/oksasatya/identity-service/internal/infrastructure/search"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/internal/router"
	"github.com/oksasatya/identity-service/pkg/helpers"
	"github.com/oksasatya/identity-service/pkg/mailer"
	"github.com/oksasatya/identity-service/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()
	container.SetConfig(cfg)
	container.SetLogger(logger)

	// Identity store
	switch cfg.StoreDriver {
	case "memory":
		st, err := memory.NewStore()
		if err != nil {
			logger.WithError(err).Fatal("failed to init memory store")
		}
		container.SetMemoryStore(st)
		logger.Warn("using in-memory identity store; data is lost on restart")
	default:
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pool.Close()
		if err := runMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		container.SetPGPool(pool)
	}

	// Credential cipher and JWT
	cipher, err := helpers.NewCredentialCipher(cfg.CredentialKey, cfg.CredentialIV)
	if err != nil {
		logger.WithError(err).Fatal("failed to init credential cipher")
	}
	container.SetCipher(cipher)
	jwtManager, err := helpers.NewJWTManager(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		logger.WithError(err).Fatal("failed to init jwt manager")
	}
	container.SetJWT(jwtManager)

	// Redis session cache
	if rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		if !cfg.IsDevelopment() {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		logger.WithError(err).Warn("redis unavailable; sessions are not tracked")
	} else {
		defer func() { _ = rdb.Close() }()
		container.SetRedis(rdb)
	}

	// Avatar storage
	if cfg.GCSBucket != "" {
		gcsClient, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to init GCS client")
		}
		defer func() { _ = gcsClient.Close() }()
		container.SetGCS(gcsClient)
	}

	// Search index
	if es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass); err != nil {
		logger.WithError(err).Warn("elasticsearch disabled")
	} else if err := search.NewIdentityIndex(es, cfg.ESUsersIndex).EnsureIndex(ctx); err != nil {
		logger.WithError(err).Warn("elasticsearch unavailable; search disabled")
	} else {
		container.SetES(es)
	}

	// Google sign-in
	if cfg.GoogleClientID != "" {
		v, err := oidc.NewGoogleValidator(ctx, cfg.GoogleClientID)
		if err != nil {
			logger.WithError(err).Fatal("failed to init google validator")
		}
		container.SetExternalValidator(v)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set; external login disabled")
	}

	// Email
	sender, closeSender := buildMailSender(cfg, logger)
	defer closeSender()
	container.SetMailSender(sender)

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	if cfg.HTTPLogEnabled || cfg.IsDevelopment() {
		r.Use(middleware.AccessLog(logger))
	}
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{cfg.FrontendBaseURL}
	}
	r.Use(cors.New(corsCfg))

	reg := router.NewRegistry(r)
	if err := router.InitModules(reg); err != nil {
		logger.WithError(err).Fatal("failed to init modules")
	}
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.WithField("store", cfg.StoreDriver).Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	logger.Info("server exited properly")
}

// buildMailSender picks how account emails leave the process.
func buildMailSender(cfg *config.Config, logger *logrus.Logger) (application.EmailSender, func()) {
	noop := func() {}
	if !cfg.MailSendEnabled {
		return &mailer.LogSender{Logger: logger}, noop
	}
	if cfg.MailDelivery == "direct" {
		return mailer.NewDirectSender(mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), cfg), noop
	}
	pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
	if err != nil {
		logger.WithError(err).Warn("rabbitmq unavailable; logging email links instead")
		return &mailer.LogSender{Logger: logger}, noop
	}
	return mailer.NewQueueSender(pub, cfg), pub.Close
}

func runMigrations(dsn string, migrationsDir string, logger *logrus.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsDir), "postgres", driver)
	if err != nil {
		return err
	}
	logger.Info("running migrations...")
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to run")
		return nil
	}
	return err
}
