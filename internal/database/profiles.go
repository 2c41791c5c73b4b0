package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/benvon/smart-voice/internal/models"
)

// ProfileRepository handles user context profiles.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetProfile retrieves the profile for a user.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error) {
	p := &models.UserContextProfile{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, preferred_name, language, timezone, profession,
			critical_artifacts, social_platforms, news_focus, health_interests,
			skincare_summary, health_summary, created_at, updated_at
		FROM user_context_profiles
		WHERE user_id = $1
	`, userID).Scan(
		&p.UserID,
		&p.PreferredName,
		&p.Language,
		&p.Timezone,
		&p.Profession,
		pq.Array(&p.CriticalArtifacts),
		pq.Array(&p.SocialPlatforms),
		pq.Array(&p.NewsFocus),
		pq.Array(&p.HealthInterests),
		&p.SkincareSummary,
		&p.HealthSummary,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile writes every profile field.
func (r *ProfileRepository) UpsertProfile(ctx context.Context, p *models.UserContextProfile) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_context_profiles (
			user_id, preferred_name, language, timezone, profession,
			critical_artifacts, social_platforms, news_focus, health_interests,
			skincare_summary, health_summary, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_name = EXCLUDED.preferred_name,
			language = EXCLUDED.language,
			timezone = EXCLUDED.timezone,
			profession = EXCLUDED.profession,
			critical_artifacts = EXCLUDED.critical_artifacts,
			social_platforms = EXCLUDED.social_platforms,
			news_focus = EXCLUDED.news_focus,
			health_interests = EXCLUDED.health_interests,
			skincare_summary = EXCLUDED.skincare_summary,
			health_summary = EXCLUDED.health_summary,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`,
		p.UserID,
		p.PreferredName,
		p.Language,
		p.Timezone,
		p.Profession,
		pq.Array(nonNil(p.CriticalArtifacts)),
		pq.Array(nonNil(p.SocialPlatforms)),
		pq.Array(nonNil(p.NewsFocus)),
		pq.Array(nonNil(p.HealthInterests)),
		p.SkincareSummary,
		p.HealthSummary,
		now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// limitArg binds a LIMIT parameter; zero or less binds NULL, which
// Postgres treats as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
