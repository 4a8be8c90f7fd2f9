// Command migrate manages the attendee schema outside the service:
//
//	migrate --action up|down|seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
)

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	action, err := parseAction(os.Args[1:])
	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}

	_ = godotenv.Load() // Loads .env file if present

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx := context.Background()
	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{Driver: cfg.Database.Driver, AutoMigrate: true}, logger)
	defer runner.Close()

	if err := run(ctx, action, cfg.Database.Driver, bunDB, runner, logger); err != nil {
		logger.Fatal("MIGRATE", fmt.Sprintf("%s failed: %v", action, err))
	}
	logger.Info("MIGRATE", fmt.Sprintf("%s done", action))
}

func parseAction(args []string) (string, error) {
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	action := flagSet.StringP("action", "a", "up", "up, down or seed")
	if err := flagSet.Parse(args); err != nil {
		return "", err
	}
	switch *action {
	case "up", "down", "seed":
		return *action, nil
	default:
		return "", fmt.Errorf("unknown action %q", *action)
	}
}

func run(ctx context.Context, action, driver string, bunDB *bun.DB, runner *migrations.Runner, log *logger.Logger) error {
	switch action {
	case "up":
		return runner.RunMigrations(ctx)
	case "down":
		if driver == "postgres" {
			return runner.MigrateDown()
		}
		return migrations.DropSchema(ctx, bunDB)
	case "seed":
		if err := runner.RunMigrations(ctx); err != nil {
			return err
		}
		n, err := migrations.Seed(ctx, bunDB, time.Now().UTC().Truncate(time.Second))
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("Seeded %d demo attendees", n))
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
