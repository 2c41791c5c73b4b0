// Package app wires the stores, AI providers and pipeline shared by the
// server, worker and admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/config"
	"github.com/benvon/smart-voice/internal/content"
	"github.com/benvon/smart-voice/internal/contextdoc"
	"github.com/benvon/smart-voice/internal/database"
	"github.com/benvon/smart-voice/internal/extraction"
	"github.com/benvon/smart-voice/internal/locks"
	"github.com/benvon/smart-voice/internal/normalizer"
	"github.com/benvon/smart-voice/internal/notify"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/pipeline"
	"github.com/benvon/smart-voice/internal/queue"
	"github.com/benvon/smart-voice/internal/services/ai"
	"github.com/benvon/smart-voice/internal/storage"
	"github.com/benvon/smart-voice/internal/summary"
	"github.com/benvon/smart-voice/internal/transcription"
	"github.com/benvon/smart-voice/internal/workers"
)

const (
	contextLockPrefix  = "lock:"
	audioFetchTimeout  = 30 * time.Second
	draftBurst         = 5
	draftTimeout       = 30 * time.Second
	queueConnectTries  = 10
	queueConnectDelay  = 2 * time.Second
	queueMaxRetryDelay = 30 * time.Second
)

// Stores are the repositories over one database and Redis connection.
type Stores struct {
	DB          *database.DB
	Redis       *redis.Client
	Users       *database.UserRepository
	Profiles    *database.ProfileRepository
	Transcripts *database.TranscriptRepository
	Items       *database.ItemRepository
	Patterns    *database.PatternRepository
	Content     *database.ContentRepository
	Contexts    *database.ContextDocumentRepository
	Ratelimits  *database.RatelimitConfigRepository
}

// OpenStores connects to Postgres and Redis and applies the schema.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Stores{
		DB:          db,
		Redis:       rdb,
		Users:       database.NewUserRepository(db),
		Profiles:    database.NewProfileRepository(db),
		Transcripts: database.NewTranscriptRepository(db),
		Items:       database.NewItemRepository(db),
		Patterns:    database.NewPatternRepository(db),
		Content:     database.NewContentRepository(db),
		Contexts:    database.NewContextDocumentRepository(db),
		Ratelimits:  database.NewRatelimitConfigRepository(db),
	}, nil
}

// Close closes Redis and the database.
func (s *Stores) Close() error {
	return errors.Join(s.Redis.Close(), s.DB.Close())
}

// Services is everything built on top of the stores.
type Services struct {
	Provider  ai.Provider
	Assembler *contextdoc.Assembler
	Advisor   *patterns.Advisor
	Handlers  *workers.Handlers
	Scheduler workers.Scheduler
	Pipeline  *pipeline.Pipeline
	// AudioURLs is the policy applied to fetched audio URLs.
	AudioURLs transcription.URLPolicy
	// Pool is set when background work runs in-process.
	Pool *workers.Pool
	// Queue is set when RABBITMQ_URL is configured.
	Queue *queue.RabbitMQQueue
}

// BuildServices creates the AI providers, the background scheduler and the
// pipeline. With useQueue false the in-process pool is used even when a
// queue is configured.
func BuildServices(ctx context.Context, cfg *config.Config, st *Stores, useQueue, debugMode bool, logger *zap.Logger) (*Services, error) {
	provider, err := NewAIProvider(cfg, logger, debugMode)
	if err != nil {
		return nil, err
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for transcription")
	}
	whisperBaseURL := ""
	if cfg.AIProvider == "openai" {
		whisperBaseURL = cfg.AIBaseURL
	}
	transcriber := transcription.NewWhisperTranscriber(cfg.OpenAIKey, whisperBaseURL, cfg.TranscriptionModel, logger)

	advisor := patterns.NewAdvisor(st.Patterns)
	assembler := contextdoc.New(contextdoc.Sources{
		Profiles:    st.Profiles,
		Transcripts: st.Transcripts,
		Content:     st.Content,
		Patterns:    advisor,
	}, st.Contexts, locks.NewRedisLocker(st.Redis, contextLockPrefix), logger)

	outbox := notify.NewOutbox(st.Content, notify.NewRedisPublisher(st.Redis), logger)
	drafter := content.NewLLMDrafter(provider, cfg.DraftsPerMinute, draftBurst, draftTimeout)
	trigger := content.NewTrigger(drafter, st.Content, outbox, cfg.ContentFanout, logger)
	handlers := workers.NewHandlers(patterns.NewLearner(st.Patterns, logger), trigger, logger)

	svc := &Services{Provider: provider, Assembler: assembler, Advisor: advisor, Handlers: handlers, AudioURLs: AudioURLPolicy(cfg)}
	if useQueue && cfg.UseQueue() {
		q, err := ConnectQueue(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		svc.Queue = q
		svc.Scheduler = workers.NewQueueScheduler(q)
	} else {
		svc.Pool = workers.NewPool(workers.PoolConfig{
			MaxConcurrent: int64(cfg.PoolConcurrency),
			MaxPending:    cfg.PoolQueueSize,
		}, logger)
		svc.Scheduler = workers.NewPoolScheduler(svc.Pool, handlers)
	}

	engine := extraction.NewEngine(provider, summary.NewProcessor(summary.DefaultRegistry()), cfg.ExtractionTimeout, logger)
	svc.Pipeline = pipeline.New(pipeline.Deps{
		Loader:      transcription.NewLoader(audioFetchTimeout, svc.AudioURLs),
		Transcriber: transcriber,
		Normalizer:  normalizer.New(provider, cfg.NormalizeTimeout, logger),
		Context:     assembler,
		Extractor:   engine,
		Transcripts: st.Transcripts,
		Items:       st.Items,
		Scheduler:   svc.Scheduler,
	}, logger)
	return svc, nil
}

// StorageConfig maps the S3 settings onto the object store config.
func StorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretKey,
		ForcePathStyle:  cfg.S3ForcePathStyle,
	}
}

// AudioURLPolicy allows the object store hosts plus AUDIO_URL_ALLOWED_HOSTS.
// With neither configured, only public addresses are fetched.
func AudioURLPolicy(cfg *config.Config) transcription.URLPolicy {
	hosts := append([]string(nil), cfg.AudioURLHosts...)
	hosts = append(hosts, storage.Hosts(StorageConfig(cfg))...)
	return transcription.URLPolicy{AllowedHosts: hosts}
}

// Close drains the pool or closes the queue connection.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Pool != nil {
		errs = append(errs, s.Pool.Shutdown(ctx))
	}
	if s.Queue != nil {
		errs = append(errs, s.Queue.Close())
	}
	return errors.Join(errs...)
}

// NewAIProvider builds the configured provider behind a circuit breaker.
func NewAIProvider(cfg *config.Config, logger *zap.Logger, debugMode bool) (ai.Provider, error) {
	provider, err := ai.NewDefaultRegistry().GetProvider(cfg.AIProvider, cfg.AIProviderConfig(), logger, debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	return ai.WithCircuitBreaker(provider, ai.DefaultBreakerConfig(), logger), nil
}

// ConnectQueue dials RabbitMQ, retrying with exponential backoff while the
// broker starts.
func ConnectQueue(ctx context.Context, url string, logger *zap.Logger) (*queue.RabbitMQQueue, error) {
	var lastErr error
	for attempt := 0; attempt < queueConnectTries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, logger)
		if err == nil {
			logger.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err
		delay := min(queueConnectDelay*time.Duration(1<<uint(attempt)), queueMaxRetryDelay)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", queueConnectTries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", queueConnectTries, lastErr)
}
