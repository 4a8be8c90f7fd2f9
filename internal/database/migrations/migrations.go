package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// Driver is the database driver in use: postgres or sqlite
	Driver string
	// AutoMigrate determines whether to run migrations automatically on startup
	AutoMigrate bool
}

// Runner handles database migrations. Postgres schemas are versioned with
// golang-migrate; sqlite databases (local runs, tests) get the schema from
// the bun models.
type Runner struct {
	bunDB    *bun.DB
	options  MigrateOptions
	migrator *migrate.Migrate
	log      *logger.Logger
}

func NewRunner(bunDB *bun.DB, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{bunDB: bunDB, options: opts, log: log}
}

// Initialize prepares the golang-migrate instance over the embedded files.
func (r *Runner) Initialize() error {
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	source, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// RunMigrations brings the schema up to date.
func (r *Runner) RunMigrations(ctx context.Context) error {
	if !r.options.AutoMigrate {
		r.log.Info("MIGRATE", "Auto-migration disabled, skipping")
		return nil
	}

	switch r.options.Driver {
	case "sqlite":
		if err := CreateSchema(ctx, r.bunDB); err != nil {
			return err
		}
		r.log.Info("MIGRATE", "SQLite schema ensured from models")
		return nil
	case "postgres":
		if err := r.MigrateUp(); err != nil {
			return err
		}
		version, dirty, err := r.migrator.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		r.log.Info("MIGRATE", fmt.Sprintf("Current schema version: %d (dirty=%t)", version, dirty))
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", r.options.Driver)
	}
}

// MigrateUp runs all pending migrations
func (r *Runner) MigrateUp() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}

// CreateSchema creates the attendees table and its indexes from the model.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.Attendee)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create attendees table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Attendee)(nil)).
		Index("attendees__source__code").
		Unique().
		IfNotExists().
		Column("source", "code").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create dedup index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Attendee)(nil)).
		Index("attendees__role__raffled").
		IfNotExists().
		Column("role", "raffled").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create role index: %w", err)
	}
	return nil
}
