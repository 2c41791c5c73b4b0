package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/app"
	"github.com/benvon/smart-voice/internal/config"
	"github.com/benvon/smart-voice/internal/logger"
	"github.com/benvon/smart-voice/internal/queue"
	"github.com/benvon/smart-voice/internal/telemetry"
	"github.com/benvon/smart-voice/internal/workers"
)

const serviceName = "smart-voice-worker"

var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if err := run(cfg, debugMode, zapLogger); err != nil {
		zapLogger.Error("worker_failed", zap.Error(err))
		_ = logger.Sync(zapLogger)
		os.Exit(1)
	}
	zapLogger.Info("worker_stopped")
}

func run(cfg *config.Config, debugMode bool, zapLogger *zap.Logger) error {
	if !cfg.UseQueue() {
		return fmt.Errorf("RABBITMQ_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("starting_worker",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Int("content_fanout", cfg.ContentFanout),
	)

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, telemetry.Options{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
			Insecure:       cfg.OTELInsecure,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = telemetry.Shutdown(shutdownCtx, tp)
			}()
		}
	}

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			zapLogger.Warn("failed_to_close_stores", zap.Error(err))
		}
	}()

	svc, err := app.BuildServices(ctx, cfg, stores, true, debugMode, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Close(shutdownCtx); err != nil {
			zapLogger.Warn("failed_to_close_services", zap.Error(err))
		}
	}()

	gc := queue.NewGarbageCollector(svc.Queue, cfg.DLQPurgeInterval, cfg.DLQRetention, zapLogger)
	go func() {
		if err := gc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_consuming")
	err = workers.NewProcessor(svc.Handlers, svc.Queue, zapLogger).Run(ctx, cfg.RabbitMQPrefetch)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zapLogger.Info("shutdown_signal_received")
	return nil
}
