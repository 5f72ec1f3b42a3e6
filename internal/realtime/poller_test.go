package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
)

func waitForCalls(t *testing.T, sub *countingSubscriber, want int64, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if sub.calls.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d refetches, got %d", want, sub.calls.Load())
}

func TestPoller_RefreshesImmediatelyOnStartAndThenOnInterval(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	poller := NewPoller(registry, 30*time.Millisecond)
	poller.Start(context.Background())
	defer poller.Stop()

	// Immediate refresh on becoming visible.
	waitForCalls(t, sub, 1, time.Second)
	// Then at least one interval tick.
	waitForCalls(t, sub, 2, time.Second)
}

func TestPoller_PausesWhileHidden(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	poller := NewPoller(registry, 20*time.Millisecond)
	poller.Start(context.Background())
	defer poller.Stop()

	waitForCalls(t, sub, 1, time.Second)
	poller.SetVisible(false)

	quiesced := sub.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := sub.calls.Load(); got != quiesced {
		t.Fatalf("poller ticked while hidden: %d -> %d", quiesced, got)
	}
}

func TestPoller_ImmediateRefreshOnBecomingVisible(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	poller := NewPoller(registry, time.Hour) // interval never fires during the test
	poller.Start(context.Background())
	defer poller.Stop()

	waitForCalls(t, sub, 1, time.Second)
	poller.SetVisible(false)
	poller.SetVisible(true)

	if got := sub.calls.Load(); got != 2 {
		t.Fatalf("expected one immediate refresh per visibility gain, got %d", got)
	}
}

func TestPoller_RedundantVisibilityTransitionsDoNotRefresh(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	poller := NewPoller(registry, time.Hour)
	poller.Start(context.Background())
	defer poller.Stop()

	waitForCalls(t, sub, 1, time.Second)
	poller.SetVisible(true)
	poller.SetVisible(true)

	if got := sub.calls.Load(); got != 1 {
		t.Fatalf("expected no refresh for redundant transitions, got %d", got)
	}
}

func TestPoller_StopCancelsPendingTick(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	poller := NewPoller(registry, 20*time.Millisecond)
	poller.Start(context.Background())
	waitForCalls(t, sub, 1, time.Second)
	poller.Stop()

	quiesced := sub.calls.Load()
	time.Sleep(80 * time.Millisecond)
	if got := sub.calls.Load(); got != quiesced {
		t.Fatalf("poller ticked after Stop: %d -> %d", quiesced, got)
	}
}

func TestPoller_ContextCancellationStops(t *testing.T) {
	registry := NewRegistry()
	sub := &countingSubscriber{}
	registry.Subscribe(domain.ContextBookings, sub)

	ctx, cancel := context.WithCancel(context.Background())
	poller := NewPoller(registry, 20*time.Millisecond)
	poller.Start(ctx)

	waitForCalls(t, sub, 1, time.Second)
	cancel()
	time.Sleep(50 * time.Millisecond) // let the watcher goroutine observe cancellation

	quiesced := sub.calls.Load()
	time.Sleep(80 * time.Millisecond)
	if got := sub.calls.Load(); got != quiesced {
		t.Fatalf("poller ticked after context cancellation: %d -> %d", quiesced, got)
	}
}
