package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
)

func TestSyncStream_PollingSessionStreamsInvalidations(t *testing.T) {
	h := NewSyncHandler(nil, "littlesteps", 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, authSubjectKey, "user-1")
	ctx = context.WithValue(ctx, authRoleKey, domain.RoleParent)
	req := httptest.NewRequest(http.MethodGet, "/sync/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.StreamHandler(rec, req)
		close(done)
	}()

	// The poller starts visible, so the first refresh streams immediately.
	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: invalidate") {
		t.Fatalf("expected invalidate events in the stream, got %q", body)
	}
	if !strings.Contains(body, "data: bookings") {
		t.Fatalf("expected the bookings context in the stream, got %q", body)
	}
}

func TestSyncStream_RejectsMissingSubject(t *testing.T) {
	h := NewSyncHandler(nil, "littlesteps", time.Second)

	req := httptest.NewRequest(http.MethodGet, "/sync/stream", nil)
	rec := httptest.NewRecorder()
	h.StreamHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an authenticated subject, got %d", rec.Code)
	}
}
