/**
 * @description
 * This file provides the server-side half of the push strategy: publishing sync
 * events onto the per-user and per-role Redis channels consumed by PushListener.
 * When no push configuration is present a no-op publisher is used and connected
 * dashboards rely on their polling fallback instead.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client.
 * - internal/domain: For the context enum and event payload.
 */

package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SyncPublisher pushes context invalidations toward connected dashboards.
type SyncPublisher interface {
	// PublishContexts fans the tags out to each user's private channel and each
	// named role's shared channel.
	PublishContexts(ctx context.Context, userIDs []uuid.UUID, roles []string, contexts []domain.SyncContext) error
}

// RedisSyncPublisher publishes sync events over Redis pub/sub.
type RedisSyncPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSyncPublisher creates a publisher using the given channel prefix.
func NewRedisSyncPublisher(client redis.UniversalClient, prefix string) *RedisSyncPublisher {
	return &RedisSyncPublisher{client: client, prefix: prefix}
}

func (p *RedisSyncPublisher) PublishContexts(ctx context.Context, userIDs []uuid.UUID, roles []string, contexts []domain.SyncContext) error {
	if len(contexts) == 0 {
		return nil
	}

	event := domain.SyncEvent{Contexts: make([]string, 0, len(contexts))}
	for _, c := range contexts {
		event.Contexts = append(event.Contexts, string(c))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var firstErr error
	publish := func(channel string) {
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			log.Printf("level=warn component=sync_publisher msg=\"publish failed\" channel=%s err=%v", channel, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for _, userID := range userIDs {
		publish(UserChannel(p.prefix, userID.String()))
	}
	for _, role := range roles {
		publish(RoleChannel(p.prefix, role))
	}
	return firstErr
}

// NoopSyncPublisher is used when push is not configured; dashboards fall back
// to polling, so dropping the publish is correct rather than lossy.
type NoopSyncPublisher struct{}

func (NoopSyncPublisher) PublishContexts(ctx context.Context, userIDs []uuid.UUID, roles []string, contexts []domain.SyncContext) error {
	return nil
}
