package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/models"
)

// Store persists patterns. UpsertPattern must be atomic per
// (userID, patternType, signature): concurrent calls never lose an increment.
type Store interface {
	UpsertPattern(ctx context.Context, userID uuid.UUID, obs Observation, seenAt time.Time) (*models.BehavioralPattern, error)
	// ListPatterns returns the user's patterns, strongest first. An empty
	// patternType lists every type.
	ListPatterns(ctx context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error)
}

// Learner feeds item events into the pattern store.
type Learner struct {
	store  Store
	logger *zap.Logger
}

// NewLearner returns a Learner.
func NewLearner(store Store, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{store: store, logger: logger}
}

// Observe upserts every observation derived from e. A failed upsert does
// not stop the rest; all failures are returned joined.
func (l *Learner) Observe(ctx context.Context, e ItemEvent) error {
	seenAt := e.At
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	var errs []error
	upserted := 0
	for _, obs := range Derive(e) {
		if _, err := l.store.UpsertPattern(ctx, e.UserID, obs, seenAt); err != nil {
			errs = append(errs, fmt.Errorf("failed to upsert %s pattern %q: %w", obs.PatternType, obs.Signature, err))
			continue
		}
		upserted++
	}

	l.logger.Debug("patterns_observed",
		zap.String("user_id", e.UserID.String()),
		zap.String("event", string(e.Kind)),
		zap.Int("upserted", upserted),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	patterns map[string]*models.BehavioralPattern
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patterns: make(map[string]*models.BehavioralPattern)}
}

func memoryKey(userID uuid.UUID, t models.PatternType, sig string) string {
	return userID.String() + "\x00" + string(t) + "\x00" + sig
}

// UpsertPattern implements Store.
func (m *MemoryStore) UpsertPattern(_ context.Context, userID uuid.UUID, obs Observation, seenAt time.Time) (*models.BehavioralPattern, error) {
	if !obs.PatternType.Valid() {
		return nil, fmt.Errorf("invalid pattern type %q", obs.PatternType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(userID, obs.PatternType, obs.Signature)
	p, ok := m.patterns[key]
	if !ok {
		p = &models.BehavioralPattern{
			ID:          uuid.New(),
			UserID:      userID,
			PatternType: obs.PatternType,
			Signature:   obs.Signature,
			CreatedAt:   seenAt,
		}
		m.patterns[key] = p
	}
	p.Frequency++
	p.ConfidenceScore = models.ConfidenceFromFrequency(p.Frequency)
	p.PatternData = obs.Data
	if seenAt.After(p.LastSeenAt) {
		p.LastSeenAt = seenAt
	}
	p.UpdatedAt = seenAt

	cp := *p
	return &cp, nil
}

// ListPatterns implements Store.
func (m *MemoryStore) ListPatterns(_ context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error) {
	m.mu.Lock()
	var out []*models.BehavioralPattern
	for _, p := range m.patterns {
		if p.UserID != userID || (patternType != "" && p.PatternType != patternType) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	m.mu.Unlock()

	SortByStrength(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortByStrength orders by confidence, then frequency, then recency.
func SortByStrength(ps []*models.BehavioralPattern) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.After(b.LastSeenAt)
		}
		return a.Signature < b.Signature
	})
}

var (
	_ Store = (*MemoryStore)(nil)
)
