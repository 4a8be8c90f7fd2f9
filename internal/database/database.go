// Package database opens the bun handle for the configured driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
)

const maxConnectAttempts = 5

// Open connects to sqlite or postgres and pings the database, retrying a
// few times while the server comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var (
		driverName string
		newDB      func(*sql.DB) *bun.DB
	)
	switch cfg.Driver {
	case "postgres":
		driverName = "postgres"
		newDB = func(sqldb *sql.DB) *bun.DB { return bun.NewDB(sqldb, pgdialect.New()) }
	case "sqlite":
		driverName = sqliteshim.ShimName
		newDB = func(sqldb *sql.DB) *bun.DB { return bun.NewDB(sqldb, sqlitedialect.New()) }
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	sqldb, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	configurePool(sqldb, cfg)

	attempt := 0
	ping := func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", cfg.Driver, attempt, maxConnectAttempts))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return sqldb.PingContext(pingCtx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), maxConnectAttempts-1), ctx)
	notify := func(err error, wait time.Duration) {
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v (retrying in %s)", cfg.Driver, err, wait))
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Driver, attempt, err)
	}

	log.Info("DATABASE", fmt.Sprintf("%s connection successful", cfg.Driver))
	return newDB(sqldb), nil
}

func configurePool(sqldb *sql.DB, cfg config.DatabaseConfig) {
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; serializing avoids SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	}
}
