package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/littlesteps/booking-service/internal/domain"
)

type capturePublisher struct {
	routingKeys []string
	failNext    bool
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.failNext {
		p.failNext = false
		return context.DeadlineExceeded
	}
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *capturePublisher) Close() {}

func signedWebhookRequest(t *testing.T, secret string, event domain.PaymentStatusEvent) *http.Request {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set(paymentSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}
	return req
}

func TestPaymentWebhook_PublishesNormalizedRoutingKey(t *testing.T) {
	producer := &capturePublisher{}
	handler := NewPaymentWebhookHandler(producer, "whsec_test")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_test", domain.PaymentStatusEvent{
		EventID:           "evt_1",
		Status:            "successful",
		ProviderReference: "pay_123",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(producer.routingKeys) != 1 || producer.routingKeys[0] != "payment.status.completed" {
		t.Fatalf("expected payment.status.completed, got %v", producer.routingKeys)
	}
}

func TestPaymentWebhook_RejectsBadSignature(t *testing.T) {
	producer := &capturePublisher{}
	handler := NewPaymentWebhookHandler(producer, "whsec_test")

	req := signedWebhookRequest(t, "wrong_secret", domain.PaymentStatusEvent{
		EventID:           "evt_1",
		Status:            "completed",
		ProviderReference: "pay_123",
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(producer.routingKeys) != 0 {
		t.Fatal("expected nothing published for a bad signature")
	}
}

func TestPaymentWebhook_DuplicateEventAcknowledgedOnce(t *testing.T) {
	producer := &capturePublisher{}
	handler := NewPaymentWebhookHandler(producer, "whsec_test")

	event := domain.PaymentStatusEvent{
		EventID:           "evt_dup",
		Status:            "failed",
		ProviderReference: "pay_123",
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_test", event))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, rec.Code)
		}
	}

	if len(producer.routingKeys) != 1 {
		t.Fatalf("expected a single publish for replayed event, got %d", len(producer.routingKeys))
	}
}

func TestPaymentWebhook_RejectsMissingFields(t *testing.T) {
	producer := &capturePublisher{}
	handler := NewPaymentWebhookHandler(producer, "whsec_test")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_test", domain.PaymentStatusEvent{
		EventID: "evt_1",
		Status:  "completed",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing provider reference, got %d", rec.Code)
	}
}

func TestPaymentWebhook_PublishFailureReturns500(t *testing.T) {
	producer := &capturePublisher{failNext: true}
	handler := NewPaymentWebhookHandler(producer, "whsec_test")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_test", domain.PaymentStatusEvent{
		EventID:           "evt_retry",
		Status:            "completed",
		ProviderReference: "pay_123",
	}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider retries, got %d", rec.Code)
	}
}

func TestNormalizeStatusKey(t *testing.T) {
	cases := map[string]string{
		"successful": "completed",
		"Paid":       "completed",
		"declined":   "failed",
		"initiated":  "processing",
		"anything":   "processing",
	}
	for in, want := range cases {
		if got := normalizeStatusKey(in); got != want {
			t.Fatalf("normalizeStatusKey(%q) = %q, want %q", in, got, want)
		}
	}
}
