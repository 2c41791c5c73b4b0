package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolSaturated is returned when the pending backlog is full.
	ErrPoolSaturated = errors.New("background pool saturated")
	// ErrPoolClosed is returned after Shutdown.
	ErrPoolClosed = errors.New("background pool closed")
)

// PoolConfig bounds a Pool.
type PoolConfig struct {
	// MaxConcurrent is how many tasks run at once.
	MaxConcurrent int64
	// MaxPending caps queued plus running tasks; Submit fails beyond it.
	MaxPending int
	// TaskTimeout bounds a single task.
	TaskTimeout time.Duration
}

// DefaultPoolConfig returns the in-process defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConcurrent: 4, MaxPending: 256, TaskTimeout: 2 * time.Minute}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Pending   int64  `json:"pending"`
	Running   int64  `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

// Pool runs detached tasks with bounded concurrency. Tasks outlive the
// submitting request: they get the caller's values but not its cancellation.
type Pool struct {
	cfg    PoolConfig
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu     sync.RWMutex // guards closed against wg.Add during Shutdown
	closed bool
	wg     sync.WaitGroup

	pending   atomic.Int64
	running   atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64

	errMu   sync.Mutex
	lastErr string
}

// NewPool returns a Pool. Zero config fields take the defaults.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	def := DefaultPoolConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger,
	}
}

// Submit schedules fn and returns immediately. A task error or panic is
// recorded in Stats and logged; it never reaches the caller.
func (p *Pool) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.pending.Add(1) > int64(p.cfg.MaxPending) {
		p.pending.Add(-1)
		p.rejected.Add(1)
		p.logger.Warn("background_task_rejected",
			zap.String("task", name),
			zap.Int("max_pending", p.cfg.MaxPending),
		)
		return ErrPoolSaturated
	}
	p.submitted.Add(1)

	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)

		// detached never cancels, so Acquire only returns once a slot frees.
		_ = p.sem.Acquire(detached, 1)
		defer p.sem.Release(1)

		p.running.Add(1)
		defer p.running.Add(-1)

		taskCtx, cancel := context.WithTimeout(detached, p.cfg.TaskTimeout)
		defer cancel()

		start := time.Now()
		err := runSafely(taskCtx, fn)
		if err != nil {
			p.failed.Add(1)
			p.recordError(name, err)
			p.logger.Warn("background_task_failed",
				zap.String("task", name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		p.completed.Add(1)
		p.logger.Debug("background_task_completed",
			zap.String("task", name),
			zap.Duration("duration", time.Since(start)),
		)
	}()
	return nil
}

func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (p *Pool) recordError(name string, err error) {
	p.errMu.Lock()
	p.lastErr = name + ": " + err.Error()
	p.errMu.Unlock()
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.errMu.Lock()
	lastErr := p.lastErr
	p.errMu.Unlock()
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Pending:   p.pending.Load(),
		Running:   p.running.Load(),
		LastError: lastErr,
	}
}

// Shutdown stops accepting tasks and waits for the rest to finish or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background pool shutdown: %w", ctx.Err())
	}
}
