package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/request"
)

const (
	// DefaultAPIRate limits each client IP across the API.
	DefaultAPIRate = "20-S"
	// DefaultVoiceRate limits voice note submissions per user.
	DefaultVoiceRate = "30-M"
)

// RatelimitStore is satisfied by *database.RatelimitConfigRepository.
type RatelimitStore interface {
	Get(ctx context.Context, scope models.RatelimitScope) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// KeyFunc picks the limiter key for a request.
type KeyFunc func(*http.Request) string

// ClientIPKey keys by client IP.
func ClientIPKey(r *http.Request) string { return "ip:" + request.ClientIP(r) }

// UserKey keys by authenticated user, falling back to client IP.
func UserKey(r *http.Request) string {
	if u := request.UserFromContext(r); u != nil {
		return "user:" + u.ID.String()
	}
	return ClientIPKey(r)
}

// NewRedisLimiterStore returns a limiter store with its keys namespaced by scope.
func NewRedisLimiterStore(client *redis.Client, scope models.RatelimitScope) (limiter.Store, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:          "limiter:" + string(scope),
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	return store, nil
}

// RateLimitReloader wraps ulule/limiter for one scope and periodically
// reloads that scope's rate from the database.
type RateLimitReloader struct {
	next        http.Handler
	store       limiter.Store
	repo        RatelimitStore
	scope       models.RatelimitScope
	defaultRate string
	key         KeyFunc
	log         *zap.Logger
	interval    time.Duration
	mu          sync.RWMutex
	current     http.Handler
	rate        string
}

// NewRateLimitReloader creates a rate limit middleware for scope. The rate
// stored for scope wins over defaultRate, which is saved when none exists.
func NewRateLimitReloader(store limiter.Store, repo RatelimitStore, scope models.RatelimitScope, defaultRate string, key KeyFunc, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if key == nil {
		key = ClientIPKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimitReloader{
		store:       store,
		repo:        repo,
		scope:       scope,
		defaultRate: defaultRate,
		key:         key,
		log:         log,
		interval:    reloadInterval,
	}
}

// Middleware returns a middleware that wraps next with rate limiting and hot-reload.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		r.next = next
		r.load(context.Background())
		return r
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *RateLimitReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

// Rate returns the rate currently enforced.
func (r *RateLimitReloader) Rate() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

func (r *RateLimitReloader) load(ctx context.Context) {
	if r.next == nil {
		return
	}
	rateStr := r.defaultRate
	cfg, err := r.repo.Get(ctx, r.scope)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_ratelimit_config_using_default",
			zap.String("scope", string(r.scope)),
			zap.String("default_rate", r.defaultRate),
			zap.Error(err),
		)
	case cfg != nil && cfg.Rate != "":
		rateStr = cfg.Rate
	default:
		if err := r.repo.Set(ctx, &models.RatelimitConfig{Scope: r.scope, Rate: r.defaultRate}); err != nil {
			r.log.Error("failed_to_save_default_ratelimit_config",
				zap.String("scope", string(r.scope)),
				zap.Error(err),
			)
		}
	}

	if rateStr == r.Rate() {
		return
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.String("scope", string(r.scope)),
			zap.String("rate_str", rateStr),
			zap.Error(err),
		)
		rateStr = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			r.log.Error("failed_to_parse_default_rate_limit", zap.String("default_rate", rateStr), zap.Error(err))
			return
		}
	}

	mw := stdlibmw.NewMiddleware(limiter.New(r.store, rate),
		stdlibmw.WithKeyGetter(stdlibmw.KeyGetter(r.key)),
		stdlibmw.WithLimitReachedHandler(r.limitReached),
		stdlibmw.WithErrorHandler(r.storeFailed),
	)
	h := mw.Handler(r.next)

	r.mu.Lock()
	r.current = h
	r.rate = rateStr
	r.mu.Unlock()
	r.log.Info("ratelimit_loaded", zap.String("scope", string(r.scope)), zap.String("rate", rateStr))
}

func (r *RateLimitReloader) limitReached(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusTooManyRequests, "Too Many Requests")
}

// storeFailed lets the request through when the store is unreachable.
func (r *RateLimitReloader) storeFailed(w http.ResponseWriter, req *http.Request, err error) {
	r.log.Warn("ratelimit_store_unavailable", zap.String("scope", string(r.scope)), zap.Error(err))
	r.next.ServeHTTP(w, req)
}

// ServeHTTP implements http.Handler.
func (r *RateLimitReloader) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if r.next != nil {
		r.next.ServeHTTP(w, req)
	}
}
