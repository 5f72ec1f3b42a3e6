/**
 * @description
 * This file selects the synchronization strategy for one authenticated session.
 * The choice is made once, at session start, from static configuration: a
 * configured push channel gets the Redis listener, anything else gets the
 * visibility-aware poller. A session never switches strategy mid-flight and a
 * configured push transport never silently degrades to polling.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client handed to the push listener.
 * - The push listener and poller in this package.
 */

package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Transport keeps one session's registry fresh until the context is cancelled.
type Transport interface {
	Start(ctx context.Context)
}

// NewTransport constructs the session's sync strategy. A non-nil Redis client
// selects push; otherwise the session polls at the given interval.
func NewTransport(registry *Registry, client redis.UniversalClient, prefix, userID, role string, pollInterval time.Duration) Transport {
	if client != nil {
		return NewPushListener(client, registry, prefix, userID, role)
	}
	return NewPoller(registry, pollInterval)
}
