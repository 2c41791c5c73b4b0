// Package notify writes notifications to the outbox table and announces
// them to the dispatcher over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/models"
)

// ChannelPrefix is followed by the user id.
const ChannelPrefix = "notify:"

// Channel returns the pub/sub channel for a user.
func Channel(userID uuid.UUID) string {
	return ChannelPrefix + userID.String()
}

// Repository stores outbox records.
type Repository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Publisher announces a stored notification.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes with PUBLISH.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher returns a Publisher over client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Outbox persists first and publishes second. The stored record is the
// source of truth; a failed publish only delays delivery until the
// dispatcher next scans the table.
type Outbox struct {
	repo      Repository
	publisher Publisher
	logger    *zap.Logger
}

// NewOutbox returns an Outbox. A nil publisher stores without announcing.
func NewOutbox(repo Repository, publisher Publisher, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{repo: repo, publisher: publisher, logger: logger}
}

type message struct {
	ID          uuid.UUID               `json:"id"`
	Kind        models.NotificationKind `json:"kind"`
	Title       string                  `json:"title"`
	Body        string                  `json:"body"`
	ReferenceID *uuid.UUID              `json:"reference_id,omitempty"`
}

// Notify stores n and publishes it on the user's channel.
func (o *Outbox) Notify(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if err := o.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	if o.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(message{
		ID:          n.ID,
		Kind:        n.Kind,
		Title:       n.Title,
		Body:        n.Body,
		ReferenceID: n.ReferenceID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := o.publisher.Publish(ctx, Channel(n.UserID), payload); err != nil {
		o.logger.Warn("notification_publish_failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("user_id", n.UserID.String()),
			zap.Error(err),
		)
		return nil
	}
	o.logger.Debug("notification_published",
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", string(n.Kind)),
	)
	return nil
}
