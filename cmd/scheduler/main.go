package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admissions_portal_backend/internal/adapters"
	"admissions_portal_backend/internal/config"
	"admissions_portal_backend/internal/enrollment"
	"admissions_portal_backend/internal/events"
	"admissions_portal_backend/internal/journeys"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/routing"
	"admissions_portal_backend/internal/scheduler"
	"admissions_portal_backend/internal/scoring"
	"admissions_portal_backend/platform/db"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Worker-side module wiring (no HTTP handlers required).
	leadsRepo := leadsrepo.New(pool)
	scoringModule := scoring.NewModule(pool, leadsRepo, eventBus, log, cfg, val)
	journeysModule := journeys.NewModule(pool, log, val, cfg.JourneySeedPath)
	routingModule := routing.NewModule(pool, leadsRepo, scoringModule.Repository(), log, val)
	advisorRouter := adapters.NewAdvisorRouter(routingModule.Service())
	enrollmentModule := enrollment.NewModule(pool, journeysModule.Service(), leadsRepo, advisorRouter, eventBus, log, cfg, val)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	sweepInterval := getDurationEnv("TIMING_SWEEP_INTERVAL", time.Hour)
	rescoreInterval := getDurationEnv("BULK_RESCORE_INTERVAL", 24*time.Hour)
	dispatcher := scheduler.NewDispatcher(client, leadsRepo, log, sweepInterval, rescoreInterval)
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, enrollmentModule.Service(), scoringModule.Service(), leadsRepo, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
