package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/handler"
	"github.com/ledgerline/ledgerlog/internal/middleware"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/pkg/sanitize"
	"github.com/ledgerline/ledgerlog/internal/repository"
	"github.com/ledgerline/ledgerlog/internal/service"
)

func main() {
	// 1. Configuration and operator log
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Logging.Level)
	clock := clockwork.NewRealClock()

	// 2. Log store
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to open log store: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate log store: %v", err)
	}
	store := repository.NewLogStore(db, repository.RetentionDays(
		cfg.Retention.APIDays,
		cfg.Retention.ErrorDays,
		cfg.Retention.ActivityDays,
		cfg.Retention.FrontendDays,
	), clock)

	// 3. Error-rate window (Redis > Memory)
	var window service.RateWindow = service.NewMemoryRateWindow()
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis, error-rate window is shared")
			window = repository.NewRedisRateWindow(redisClient.Client, cfg.Redis.WindowPrefix)
		} else {
			logger.Error("Failed to connect to Redis, error-rate window stays in memory", "error", err)
		}
	}

	// 4. Logging pipeline
	san := sanitize.New(sanitize.Options{
		SensitiveFields: cfg.Logging.SensitiveFields,
		MaxPayloadSize:  cfg.Logging.MaxPayloadSize,
		Enabled:         cfg.Logging.Sanitization,
		MaskIP:          cfg.Logging.MaskIP,
	})
	formatter := service.NewFormatter(san, cfg.Server.Environment, clock)
	sessions := service.NewSessionManager(
		time.Duration(cfg.Sessions.TimeoutHours)*time.Hour,
		time.Duration(cfg.Sessions.SweepMinutes)*time.Minute,
		cfg.Alerts.ConcurrentUsers,
		clock,
	)
	logging := service.NewLoggingService(cfg, store, formatter, sessions, clock)
	errs := service.NewErrorService(cfg, logging, store, window, clock)
	guard := middleware.NewProcessGuard(errs, logging)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	reaper := repository.NewReaper(store, time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute, clock)
	guard.Go(ctx, "retention-reaper", reaper.Run)
	guard.Go(ctx, "session-sweeper", sessions.Run)

	// 5. HTTP
	router := handler.NewRouter(handler.RouterDeps{
		Config:  cfg,
		Logging: logging,
		Errors:  errs,
		Clock:   clock,
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("ledgerlog started", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		guard.Report(shutdownCtx, "http-server", err)
	}

	stop()
	logging.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Server exiting")
}
