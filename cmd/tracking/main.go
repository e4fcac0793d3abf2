package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/engine"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/tracking"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())
	if cfg.Tracking.Secret == "" {
		log.Fatal("TRACKING_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// With a queue the engine's consumer ingests; without one this process
	// owns an engine and ingests inline.
	var pub tracking.Publisher
	var eng *engine.Engine
	if cfg.Tracking.SQSQueueURL != "" {
		client, err := tracking.NewSQSClient(ctx, cfg.Tracking.SQSRegion)
		if err != nil {
			log.Fatalf("sqs: %v", err)
		}
		pub = tracking.NewSQSPublisher(client, cfg.Tracking.SQSQueueURL)
	} else {
		cfg.Scheduler.Enabled = false
		eng, err = engine.New(ctx, cfg)
		if err != nil {
			log.Fatalf("engine: %v", err)
		}
		pub = tracking.NewDirectPublisher(eng.Ingestor)
	}

	handler := tracking.NewHandler(tracking.NewSigner(cfg.Tracking.Secret, cfg.Tracking.BaseURL), pub)
	srv := &http.Server{
		Addr:         cfg.Server.TrackingAddr(),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr, "queued", cfg.Tracking.SQSQueueURL != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracking shutdown error", "error", err)
	}
	if eng != nil {
		if err := eng.Shutdown(shutdownCtx); err != nil {
			logger.Error("engine shutdown error", "error", err)
		}
	}
}
