package realtime

import (
	"testing"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestNewTransport_SelectsPushWhenClientPresent(t *testing.T) {
	registry := NewRegistry()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	tr := NewTransport(registry, client, "littlesteps", "u1", domain.RoleParent, time.Second)
	if _, ok := tr.(*PushListener); !ok {
		t.Fatalf("expected the push listener when a client is configured, got %T", tr)
	}
}

func TestNewTransport_FallsBackToPollerWithoutPush(t *testing.T) {
	registry := NewRegistry()

	tr := NewTransport(registry, nil, "littlesteps", "u1", domain.RoleParent, time.Second)
	p, ok := tr.(*Poller)
	if !ok {
		t.Fatalf("expected the poller when push is not configured, got %T", tr)
	}
	if p.interval != time.Second {
		t.Fatalf("expected the configured poll interval, got %s", p.interval)
	}
	p.Stop()
}
