package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
)

// PatternRepository stores behavioral patterns.
type PatternRepository struct {
	db *DB
}

// NewPatternRepository creates a new pattern repository
func NewPatternRepository(db *DB) *PatternRepository {
	return &PatternRepository{db: db}
}

const patternColumns = `id, user_id, pattern_type, signature, pattern_data, frequency,
	confidence_score, last_seen_at, created_at, updated_at`

func scanPattern(row interface{ Scan(...any) error }) (*models.BehavioralPattern, error) {
	p := &models.BehavioralPattern{}
	var data []byte
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PatternType,
		&p.Signature,
		&data,
		&p.Frequency,
		&p.ConfidenceScore,
		&p.LastSeenAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p.PatternData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pattern data: %w", err)
		}
	}
	return p, nil
}

// UpsertPattern inserts a pattern with frequency 1 or increments the
// existing row. The increment happens inside the statement so concurrent
// observations of the same signature are never lost.
func (r *PatternRepository) UpsertPattern(ctx context.Context, userID uuid.UUID, obs patterns.Observation, seenAt time.Time) (*models.BehavioralPattern, error) {
	data := obs.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pattern data: %w", err)
	}

	p, err := scanPattern(r.db.QueryRowContext(ctx, `
		INSERT INTO behavioral_patterns (id, user_id, pattern_type, signature, pattern_data,
			frequency, confidence_score, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $8)
		ON CONFLICT (user_id, pattern_type, signature) DO UPDATE SET
			frequency = behavioral_patterns.frequency + 1,
			confidence_score = LEAST(1.0, (behavioral_patterns.frequency + 1)::float8 / $9),
			pattern_data = EXCLUDED.pattern_data,
			last_seen_at = GREATEST(behavioral_patterns.last_seen_at, EXCLUDED.last_seen_at),
			updated_at = EXCLUDED.updated_at
		RETURNING `+patternColumns,
		uuid.New(),
		userID,
		obs.PatternType,
		obs.Signature,
		dataJSON,
		models.ConfidenceFromFrequency(1),
		seenAt,
		time.Now(),
		models.PatternSaturation,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return p, nil
}

// ListPatterns returns the user's patterns, strongest first. An empty
// patternType lists every type.
func (r *PatternRepository) ListPatterns(ctx context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM behavioral_patterns
		WHERE user_id = $1 AND ($2 = '' OR pattern_type = $2)
		ORDER BY confidence_score DESC, frequency DESC, last_seen_at DESC, signature
		LIMIT $3
	`, userID, string(patternType), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.BehavioralPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return out, nil
}
