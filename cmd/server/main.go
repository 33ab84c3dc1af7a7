package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/api"
	"github.com/todmy/docguard/internal/app"
	"github.com/todmy/docguard/internal/auth"
	"github.com/todmy/docguard/internal/config"
	"github.com/todmy/docguard/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	services, err := app.New(ctx, cfg, app.PostgresStores(db), logger)
	if err != nil {
		return err
	}

	serverCfg := api.ServerConfig{
		Modules:    services.Stores.Modules,
		Pipeline:   services.Pipeline,
		Decomposer: services.Decomposer,
		Index:      services.Index,
		Detector:   services.Detector,
		Engine:     services.Engine,
		Logger:     logger,
	}
	if cfg.JWTSecret != "" {
		authCfg := auth.DefaultConfig()
		authCfg.SecretKey = cfg.JWTSecret
		verifier, err := auth.NewVerifier(authCfg)
		if err != nil {
			return err
		}
		serverCfg.Auth = verifier
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	return api.NewServer(serverCfg).Run(ctx, ":"+cfg.Port)
}
