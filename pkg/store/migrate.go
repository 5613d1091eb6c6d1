package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store/migrations"
)

// Migrator applies and reverts the schema. PostgreSQL uses the embedded
// SQL migrations through golang-migrate; SQLite uses GORM's AutoMigrate.
type Migrator struct {
	store *GORMStore
}

// Migrator returns a schema migrator for this store.
func (s *GORMStore) Migrator() *Migrator {
	return &Migrator{store: s}
}

// Up creates or upgrades the schema. Running it on an up-to-date database
// is a no-op.
func (m *Migrator) Up(ctx context.Context) error {
	logger.InfoCtx(ctx, "Running database migrations", logger.KeyDatabase, string(m.store.config.Type))

	if m.store.config.Type == DatabaseTypePostgres {
		return m.withMigrate(ctx, func(mg *migrate.Migrate) error {
			err := mg.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				logger.InfoCtx(ctx, "No migrations to apply (database is up to date)")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logVersion(ctx, mg)
			return nil
		})
	}

	if err := m.store.db.WithContext(ctx).AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.InfoCtx(ctx, "Migrations completed successfully")
	return nil
}

// Down reverts every migration, dropping all tables.
func (m *Migrator) Down(ctx context.Context) error {
	logger.WarnCtx(ctx, "Reverting database migrations", logger.KeyDatabase, string(m.store.config.Type))

	if m.store.config.Type == DatabaseTypePostgres {
		return m.withMigrate(ctx, func(mg *migrate.Migrate) error {
			err := mg.Down()
			if errors.Is(err, migrate.ErrNoChange) {
				logger.InfoCtx(ctx, "No migrations to revert")
				return nil
			}
			if err != nil {
				return fmt.Errorf("revert failed: %w", err)
			}
			return nil
		})
	}

	all := models.AllModels()
	slices.Reverse(all)
	if err := m.store.db.WithContext(ctx).Migrator().DropTable(all...); err != nil {
		return fmt.Errorf("revert failed: %w", err)
	}
	logger.InfoCtx(ctx, "Migrations reverted")
	return nil
}

// Version returns the applied PostgreSQL schema version. SQLite schemas
// are not versioned and always report 0.
func (m *Migrator) Version(ctx context.Context) (version uint, dirty bool, err error) {
	if m.store.config.Type != DatabaseTypePostgres {
		return 0, false, nil
	}

	err = m.withMigrate(ctx, func(mg *migrate.Migrate) error {
		var verr error
		version, dirty, verr = mg.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// withMigrate opens a dedicated connection for golang-migrate, which closes
// the database it is given.
func (m *Migrator) withMigrate(ctx context.Context, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("pgx", m.store.config.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer mg.Close()

	return fn(mg)
}

func logVersion(ctx context.Context, mg *migrate.Migrate) {
	version, dirty, err := mg.Version()
	if err != nil {
		return
	}
	logger.InfoCtx(ctx, "Current schema version", logger.KeyVersion, version, logger.KeyDirty, dirty)
	if dirty {
		logger.WarnCtx(ctx, "Database schema is in dirty state - manual intervention may be required")
	}
}
