package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	defaultMigrationsTable = "schema_migrations"
	lockTimeout            = 30 * time.Second
)

// Config описывает источник встроенных миграций.
type Config struct {
	MigrationsFS   fs.FS
	MigrationsPath string
	// MigrationsTable по умолчанию schema_migrations.
	MigrationsTable string
}

// Migrator применяет миграции поверх существующего пула pgx.
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewMigrator(config Config, pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	if config.MigrationsTable == "" {
		config.MigrationsTable = defaultMigrationsTable
	}
	return &Migrator{
		config: config,
		pool:   pool,
		logger: logger.Named("Migrator"),
	}
}

// Up применяет все новые миграции и возвращает итоговую версию схемы.
// Грязная схема (прерванная миграция) считается ошибкой.
func (m *Migrator) Up(ctx context.Context) (uint, error) {
	mg, err := m.open(ctx)
	if err != nil {
		return 0, err
	}
	defer mg.Close()

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := mg.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		version = 0
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return uint(version), fmt.Errorf("schema version %d is dirty", version)
	}

	m.logger.Info("Database schema is up to date", zap.Uint("version", uint(version)))
	return uint(version), nil
}

func (m *Migrator) open(ctx context.Context) (*migrate.Migrate, error) {
	if m.config.MigrationsFS == nil {
		return nil, errors.New("migrations filesystem is not set")
	}
	if err := m.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(stdlib.OpenDBFromPool(m.pool), &postgres.Config{
		MigrationsTable: m.config.MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	mg.LockTimeout = lockTimeout
	return mg, nil
}
