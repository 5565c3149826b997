package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"watchpost/internal/api"
	"watchpost/internal/config"
	"watchpost/internal/database"
	"watchpost/internal/jobs"
	"watchpost/internal/logging"
	"watchpost/internal/notification"
	"watchpost/internal/probe"
	"watchpost/internal/scheduler"
	"watchpost/internal/store"
	"watchpost/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get database connection", zap.Error(err))
	}
	defer sqlDB.Close()

	st := store.NewGormStore(db)

	hub := ws.NewHub(logger.Named("ws"), cfg.Server.CORSOrigins)
	go hub.Run()

	dispatcher := notification.NewDispatcher(st, logger.Named("alerts"), cfg.Alert)

	sched := scheduler.New(st, dispatcher, logger.Named("scheduler"),
		[]probe.Probe{
			probe.NewHTTPProbe(cfg.Probe.Timeout),
			probe.NewTLSProbe(cfg.Probe.Timeout),
		},
		scheduler.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Probe.RatePerSec), cfg.Probe.RateBurst)),
		scheduler.WithBroadcaster(hub),
	)
	sched.Start(context.Background())
	defer sched.StopAll()

	runner := jobs.NewRunner(st, logger.Named("jobs"), cfg.Jobs)
	if err := runner.Start(); err != nil {
		logger.Fatal("failed to start job runner", zap.Error(err))
	}
	defer runner.Stop()

	router := api.NewRouter(cfg, st, sched, hub)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
