// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabaseURL     string
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	EnableHSTS      bool
	ServerDebugMode bool
	WorkerDebugMode bool
	LogFile         string

	// AI
	AIProvider         string
	AIModel            string
	AIBaseURL          string
	OpenAIKey          string
	GeminiKey          string
	TranscriptionModel string
	ExtractionTimeout  time.Duration
	NormalizeTimeout   time.Duration
	DraftsPerMinute    int

	// Token verification
	OIDCIssuer   string
	OIDCJWKSURL  string
	OIDCAudience string

	RedisURL string

	// Background work. Without RabbitMQ, jobs run on the in-process pool.
	RabbitMQURL       string
	RabbitMQPrefetch  int
	PoolConcurrency   int
	PoolQueueSize     int
	ContentFanout     int
	DLQRetention      time.Duration
	DLQPurgeInterval  time.Duration
	ProcessingWindow  time.Duration
	RateLimitInterval time.Duration

	// Audio storage
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKeyID    string
	S3SecretKey      string
	S3ForcePathStyle bool

	// Hosts audioUrl may point at besides the object store itself.
	AudioURLHosts []string

	OTELEnabled  bool
	OTELEndpoint string
	OTELInsecure bool
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		LogFile:         getEnv("LOG_FILE", ""),

		AIProvider:         getEnv("AI_PROVIDER", "openai"),
		AIModel:            getEnv("AI_MODEL", ""),
		AIBaseURL:          getEnv("AI_BASE_URL", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		ExtractionTimeout:  getEnvDuration("EXTRACTION_TIMEOUT", 45*time.Second),
		NormalizeTimeout:   getEnvDuration("NORMALIZE_TIMEOUT", 15*time.Second),
		DraftsPerMinute:    getEnvInt("DRAFTS_PER_MINUTE", 20),

		OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
		OIDCJWKSURL:  getEnv("OIDC_JWKS_URL", ""),
		OIDCAudience: getEnv("OIDC_AUDIENCE", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  getEnvInt("RABBITMQ_PREFETCH", 1),
		PoolConcurrency:   getEnvInt("POOL_CONCURRENCY", 4),
		PoolQueueSize:     getEnvInt("POOL_QUEUE_SIZE", 256),
		ContentFanout:     getEnvInt("CONTENT_FANOUT", 3),
		DLQRetention:      getEnvDuration("DLQ_RETENTION", 24*time.Hour),
		DLQPurgeInterval:  getEnvDuration("DLQ_PURGE_INTERVAL", time.Hour),
		ProcessingWindow:  getEnvDuration("PROCESSING_WINDOW", 75*time.Second),
		RateLimitInterval: getEnvDuration("RATE_LIMIT_RELOAD_INTERVAL", time.Minute),

		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:    getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),
		AudioURLHosts:    getEnvList("AUDIO_URL_ALLOWED_HOSTS"),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OIDCIssuer == "" && cfg.OIDCJWKSURL == "" {
		return nil, fmt.Errorf("OIDC_ISSUER or OIDC_JWKS_URL is required")
	}
	if cfg.PoolConcurrency < 1 {
		return nil, fmt.Errorf("POOL_CONCURRENCY must be at least 1, got %d", cfg.PoolConcurrency)
	}

	return cfg, nil
}

// AIProviderConfig returns the settings map the provider registry expects.
func (c *Config) AIProviderConfig() map[string]string {
	key := c.OpenAIKey
	if c.AIProvider == "gemini" {
		key = c.GeminiKey
	}
	return map[string]string{
		"api_key":  key,
		"model":    c.AIModel,
		"base_url": c.AIBaseURL,
	}
}

// UseQueue reports whether background work goes through RabbitMQ.
func (c *Config) UseQueue() bool {
	return c.RabbitMQURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
