package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/engine"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// The worker runs the scheduler, the stuck-send sweeper and the tracking
// queue consumer without serving the API. Leader locks keep one tick per
// fleet when several workers share Redis or Postgres.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())
	cfg.Scheduler.Enabled = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("worker heartbeat", "active_runs", len(eng.Pipeline.Running()))
			}
		}
	}()

	logger.Info("worker running", "poll_interval", cfg.Scheduler.PollInterval().String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", "error", err)
	}
	logger.Info("worker stopped")
}
