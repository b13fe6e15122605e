package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"foundry/internal/platform"
	"foundry/shared/database"
	sharedLogger "foundry/shared/logger"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type migrateConfig struct {
	SourceURL string `envconfig:"SOURCE_DATABASE_URL" required:"true"`
	TargetURL string `envconfig:"TARGET_DATABASE_URL" required:"true"`
	BatchSize int    `envconfig:"MIGRATE_BATCH_SIZE" default:"100"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// migrate копирует документы Foundry из одной базы в другую.
func main() {
	var cfg migrateConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{Level: cfg.LogLevel, Encoding: "console", Service: "foundry-migrate"})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := platform.ConnectPostgres(ctx, platform.PostgresOptions{URL: cfg.SourceURL, MaxRetries: 3}, logger.Named("source"))
	if err != nil {
		logger.Fatal("Failed to connect to source database", zap.Error(err))
	}
	defer source.Close()

	target, err := platform.ConnectPostgres(ctx, platform.PostgresOptions{URL: cfg.TargetURL, MaxRetries: 3}, logger.Named("target"))
	if err != nil {
		logger.Fatal("Failed to connect to target database", zap.Error(err))
	}
	defer target.Close()

	if err := database.RunMigrations(ctx, target, logger); err != nil {
		logger.Fatal("Failed to apply migrations on target", zap.Error(err))
	}

	c := &copier{
		source:    database.NewPgDocumentStore(source, logger),
		target:    database.NewPgDocumentStore(target, logger),
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
	if err := c.copyAll(ctx); err != nil {
		logger.Fatal("Migration aborted", zap.Error(err))
	}
	logger.Info("Migration finished")
}
