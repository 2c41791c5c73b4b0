package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/app"
	"github.com/benvon/smart-voice/internal/config"
	"github.com/benvon/smart-voice/internal/handlers"
	"github.com/benvon/smart-voice/internal/logger"
	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/queue"
	"github.com/benvon/smart-voice/internal/services/oidc"
	"github.com/benvon/smart-voice/internal/storage"
	"github.com/benvon/smart-voice/internal/telemetry"
)

const serviceName = "smart-voice-api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const jwksCacheTTL = 15 * time.Minute

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
		zapLogger.Error("server_failed", zap.Error(err))
		_ = logger.Sync(zapLogger)
		os.Exit(1)
	}
	zapLogger.Info("server_exited")
}

func run(cfg *config.Config, debugMode bool, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("queue_enabled", cfg.UseQueue()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
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
			tracingEnabled = true
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Warn("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	} else if cfg.OTELEnabled {
		zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
	}

	if cfg.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required for voice uploads")
	}
	objects, err := storage.NewS3Store(app.StorageConfig(cfg))
	if err != nil {
		return err
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
	zapLogger.Info("connected_to_database_and_redis")

	svc, err := app.BuildServices(ctx, cfg, stores, true, debugMode, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Close(shutdownCtx); err != nil {
			zapLogger.Warn("failed_to_drain_background_work", zap.Error(err))
		}
	}()

	jwksURL, err := oidc.ResolveJWKSURL(ctx, cfg.OIDCIssuer, cfg.OIDCJWKSURL)
	if err != nil {
		return err
	}
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(jwksCacheTTL), jwksURL, cfg.OIDCIssuer, cfg.OIDCAudience)
	auth := middleware.Auth(verifier, stores.Users, zapLogger)

	apiLimiter, err := newLimiter(cfg, stores, models.RatelimitScopeAPI, middleware.DefaultAPIRate, zapLogger)
	if err != nil {
		return err
	}
	voiceLimiter, err := newLimiter(cfg, stores, models.RatelimitScopeVoice, middleware.DefaultVoiceRate, zapLogger)
	if err != nil {
		return err
	}
	go apiLimiter.Start(ctx)
	go voiceLimiter.Start(ctx)

	checks := map[string]handlers.CheckFunc{
		"database": stores.DB.HealthCheck,
		"redis":    func(ctx context.Context) error { return stores.Redis.Ping(ctx).Err() },
		"queue":    nil,
	}
	if svc.Queue != nil {
		checks["queue"] = svc.Queue.HealthCheck
	}

	r := mux.NewRouter()
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", handlers.NewHealthChecker(checks).HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	jsonRoutes := func(prefix string) *mux.Router {
		sr := api.PathPrefix(prefix).Subrouter()
		sr.Use(auth)
		sr.Use(apiLimiter.Middleware())
		sr.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
		sr.Use(middleware.ContentType())
		sr.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
		return sr
	}

	voiceRouter := api.PathPrefix("/voice-notes").Subrouter()
	voiceRouter.Use(auth)
	voiceRouter.Use(voiceLimiter.Middleware())
	voiceRouter.Use(middleware.Timeout(middleware.VoiceRequestTimeout))
	handlers.NewVoiceHandler(svc.Pipeline, stores.Transcripts, objects, cfg.ProcessingWindow, zapLogger).
		WithURLPolicy(svc.AudioURLs).
		RegisterRoutes(voiceRouter)

	handlers.NewAuthHandler(stores.Profiles, svc.Assembler, zapLogger).RegisterRoutes(jsonRoutes("/auth"))
	handlers.NewPatternHandler(stores.Patterns, svc.Advisor, zapLogger).RegisterRoutes(jsonRoutes("/patterns"))
	handlers.NewTaskHandler(stores.Items, stores.Profiles, svc.Scheduler, zapLogger).RegisterRoutes(jsonRoutes("/tasks"))
	handlers.NewContextHandler(svc.Assembler, zapLogger).RegisterRoutes(jsonRoutes("/context"))

	// Preflight requests are answered by the CORS middleware.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      middleware.VoiceRequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if svc.Queue != nil {
		gc := queue.NewGarbageCollector(svc.Queue, cfg.DLQPurgeInterval, cfg.DLQRetention, zapLogger)
		go func() {
			if err := gc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	zapLogger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newLimiter(cfg *config.Config, stores *app.Stores, scope models.RatelimitScope, defaultRate string, zapLogger *zap.Logger) (*middleware.RateLimitReloader, error) {
	store, err := middleware.NewRedisLimiterStore(stores.Redis, scope)
	if err != nil {
		return nil, err
	}
	return middleware.NewRateLimitReloader(store, stores.Ratelimits, scope, defaultRate, middleware.UserKey, zapLogger, cfg.RateLimitInterval), nil
}

func versionInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":%q,"timestamp":%q}`, version, time.Now().UTC().Format(time.RFC3339))
}
