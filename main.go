package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-checkin/internal/attendees/attendee_api"
	"ms-checkin/internal/attendees/db"
	attendees "ms-checkin/internal/attendees/service"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/badges"
	"ms-checkin/internal/clock"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/importer"
	importredis "ms-checkin/internal/importer/redis"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/raffle"
	"ms-checkin/internal/vendors"
	"ms-checkin/internal/vendors/classifier"
)

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Check-in Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

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

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{Driver: cfg.Database.Driver, AutoMigrate: cfg.Database.AutoMigrate}, logger)
	if err := runner.RunMigrations(ctx); err != nil {
		logger.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var events kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.Checkin, cfg.Kafka.Topics.RaffleWinner, cfg.Kafka.Topics.ImportComplete}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		events = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		logger.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	} else {
		logger.Info("KAFKA", "Kafka disabled, domain events are dropped")
	}
	defer events.Close()

	var (
		statusStore  importer.StatusStore
		statusReader attendee_api.ImportStatusReader
		redisClient  *goredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = importredis.Connect(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("REDIS", fmt.Sprintf("Import status cache unavailable: %v", err))
		} else {
			cache := importredis.NewStatusCache(redisClient, 0)
			statusStore, statusReader = cache, cache
			defer redisClient.Close()
		}
	}

	badgeSecret := os.Getenv("BADGE_SECRET")
	if badgeSecret == "" {
		logger.Warn("CONFIG", "BADGE_SECRET not set, badge tokens use an insecure default")
		badgeSecret = "checkin-dev-secret"
	}
	badgeGen, err := badges.NewGenerator(badgeSecret)
	if err != nil {
		logger.Fatal("BADGES", err.Error())
	}

	roles, err := raffle.ParseRoles(cfg.Raffle.EligibleRoles)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("RAFFLE_ROLES: %v", err))
	}

	store := db.New(bunDB, clock.NewSystem())
	httpClient := &http.Client{Timeout: cfg.Vendors.FetchTimeout * 2}
	reconciler := importer.NewReconciler(
		vendors.FromConfig(cfg.Vendors, httpClient),
		classifier.New(cfg.Vendors, logger),
		store,
		statusStore,
		events,
		clock.NewSystem(),
		logger,
	)

	handler := &attendee_api.Handler{
		Attendees:    attendees.NewAttendeeService(store, events, logger),
		Raffle:       raffle.NewSelector(store, events, logger),
		Importer:     reconciler,
		ImportStatus: statusReader,
		Badges:       badgeGen,
		RaffleRoles:  roles,
		Logger:       logger,
	}

	authn := auth.NewAuthenticator(cfg.Auth, logger)
	if !authn.Enabled() {
		logger.Warn("AUTH", "STAFF_USERS not set, the staff API is unauthenticated")
	}

	logger.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      attendee_api.NewRouter(handler, authn, cfg.Server.AllowedOrigins, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Check-in Service shutdown complete")
	}
}
