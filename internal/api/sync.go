/**
 * @description
 * This file bootstraps a live dashboard session over Server-Sent Events. Each
 * connection gets its own fan-out registry and one transport strategy chosen
 * at connect time from static configuration: push over the user's Redis
 * channels when push is configured, interval polling otherwise. Context
 * invalidations are streamed to the client as `invalidate` events; the client
 * refetches the named context on receipt.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Passed through to the transport selection.
 * - internal/realtime: Registry, transport strategies.
 * - internal/domain: The closed sync-context enum.
 */

package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/realtime"
	"github.com/redis/go-redis/v9"
)

// SyncHandler serves the dashboard event stream.
type SyncHandler struct {
	client       redis.UniversalClient
	prefix       string
	pollInterval time.Duration
}

// NewSyncHandler creates the stream handler. A nil client means push is not
// configured and every session will poll.
func NewSyncHandler(client redis.UniversalClient, prefix string, pollInterval time.Duration) *SyncHandler {
	return &SyncHandler{client: client, prefix: prefix, pollInterval: pollInterval}
}

// streamSubscriber forwards invalidations for one context onto the session's
// event channel. A full channel drops the signal; the next invalidation or the
// periodic refresh covers the missed one.
type streamSubscriber struct {
	context domain.SyncContext
	events  chan domain.SyncContext
}

func (s *streamSubscriber) Refetch() {
	select {
	case s.events <- s.context:
	default:
	}
}

// StreamHandler runs one session: subscribe to every context, start the
// selected transport, and relay invalidations until the client disconnects.
func (h *SyncHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok || subject == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, _ := GetAuthRole(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	registry := realtime.NewRegistry()
	events := make(chan domain.SyncContext, 16)
	for _, c := range domain.AllContexts {
		unsubscribe := registry.Subscribe(c, &streamSubscriber{context: c, events: events})
		defer unsubscribe()
	}

	ctx := r.Context()
	transport := realtime.NewTransport(registry, h.client, h.prefix, subject, role, h.pollInterval)
	transport.Start(ctx)

	log.Printf("level=info component=api endpoint=sync_stream msg=\"session started\" subject=%s role=%s push=%t",
		subject, role, h.client != nil)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-events:
			fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", c)
			flusher.Flush()
		}
	}
}
