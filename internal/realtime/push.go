/**
 * @description
 * This file implements the push synchronization strategy: a Redis pub/sub
 * listener that holds one private channel per authenticated user plus, for
 * elevated roles, one shared role channel. Received events carry context tags;
 * each known tag is routed to the fan-out registry.
 *
 * Key features:
 * - Level-triggered resynchronization: the transport does not replay missed
 *   events. Instead every successful (re)connect fires one InvalidateAll so a
 *   reconnecting dashboard catches up unconditionally.
 * - Bounded exponential backoff between reconnect attempts (500ms doubling up
 *   to 30s, unlimited attempts), reset after every successful connect so each
 *   outage is retried from the base delay. While push configuration is present
 *   the listener never degrades to polling; it keeps reconnecting.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and pub/sub.
 * - internal/domain, the fan-out registry in this package.
 */

package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	pushBackoffBase = 500 * time.Millisecond
	pushBackoffMax  = 30 * time.Second
)

// pushSubscription is the slice of *redis.PubSub the listener consumes.
type pushSubscription interface {
	Receive(ctx context.Context) (interface{}, error)
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}

// PushListener consumes sync events from Redis channels and invalidates the
// registry. One listener runs per authenticated session.
type PushListener struct {
	registry  *Registry
	channels  []string
	subscribe func(ctx context.Context, channels ...string) pushSubscription
}

// UserChannel returns the private channel name for one user.
func UserChannel(prefix, userID string) string {
	return prefix + ":user:" + userID
}

// RoleChannel returns the shared channel name for an elevated role.
func RoleChannel(prefix, role string) string {
	return prefix + ":role:" + role
}

// NewPushListener wires a listener to the user's private channel and, when the
// role is elevated (trainer or admin), the shared role channel.
func NewPushListener(client redis.UniversalClient, registry *Registry, prefix, userID, role string) *PushListener {
	channels := []string{UserChannel(prefix, userID)}
	if role == domain.RoleTrainer || role == domain.RoleAdmin {
		channels = append(channels, RoleChannel(prefix, role))
	}
	return &PushListener{
		registry: registry,
		channels: channels,
		subscribe: func(ctx context.Context, channels ...string) pushSubscription {
			return client.Subscribe(ctx, channels...)
		},
	}
}

// Start runs the listener on its own goroutine until the context is cancelled.
func (l *PushListener) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Run blocks, consuming events until the context is cancelled. It reconnects
// on transport drop with bounded exponential backoff and fires one
// InvalidateAll after each successful subscribe. The backoff grows only across
// consecutive failed attempts; a drop after a healthy connection starts a
// fresh outage from the base delay.
func (l *PushListener) Run(ctx context.Context) {
	backoff := pushBackoffBase
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := l.consumeOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = pushBackoffBase
		}
		log.Printf("level=warn component=push_listener msg=\"channel dropped; reconnecting\" backoff=%s err=%v", backoff, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > pushBackoffMax {
			backoff = pushBackoffMax
		}
	}
}

// consumeOnce opens one subscription and pumps messages until it fails. The
// returned bool reports whether the subscription was ever confirmed live.
func (l *PushListener) consumeOnce(ctx context.Context) (bool, error) {
	sub := l.subscribe(ctx, l.channels...)
	defer sub.Close()

	// Confirm the subscription before declaring the channel live.
	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}

	// Missed deltas cannot be recovered from the transport; refresh everything once.
	l.registry.InvalidateAll()
	log.Printf("level=info component=push_listener msg=\"channel connected\" channels=%v", l.channels)

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return true, err
		}
		l.dispatch(msg.Payload)
	}
}

func (l *PushListener) dispatch(payload string) {
	var event domain.SyncEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("level=warn component=push_listener msg=\"malformed sync event dropped\" err=%v", err)
		return
	}
	for _, raw := range event.Contexts {
		c, err := domain.ParseContext(raw)
		if err != nil {
			log.Printf("level=warn component=push_listener msg=\"unknown context tag dropped\" tag=%q", raw)
			continue
		}
		l.registry.Invalidate(c)
	}
}
