// Command import pulls both vendors once and prints the run summary, for
// cron jobs and manual reconciliation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-checkin/internal/attendees/db"
	"ms-checkin/internal/clock"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/importer"
	importredis "ms-checkin/internal/importer/redis"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/vendors"
	"ms-checkin/internal/vendors/classifier"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present

	logger := logger.NewLogger()
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{Driver: cfg.Database.Driver, AutoMigrate: cfg.Database.AutoMigrate}, logger)
	if err := runner.RunMigrations(ctx); err != nil {
		logger.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var events kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		events = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
	}
	defer events.Close()

	var status importer.StatusStore
	if cfg.Redis.Enabled {
		client, err := importredis.Connect(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("REDIS", fmt.Sprintf("Import status cache unavailable: %v", err))
		} else {
			defer client.Close()
			status = importredis.NewStatusCache(client, 0)
		}
	}

	reconciler := importer.NewReconciler(
		vendors.FromConfig(cfg.Vendors, &http.Client{}),
		classifier.New(cfg.Vendors, logger),
		db.New(bunDB, clock.NewSystem()),
		status,
		events,
		clock.NewSystem(),
		logger,
	)

	result, err := reconciler.Import(ctx)
	if err != nil {
		logger.Fatal("IMPORT", fmt.Sprintf("Import failed: %v", err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}
