/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from the
 * payment provider. It acts as the entry point for payment lifecycle updates
 * (completed, failed, processing) and republishes them onto the internal broker
 * exchange so settlement happens through the same consumer path regardless of
 * where the update originated.
 *
 * Key features:
 * - Security: Validates the HMAC signature of incoming webhooks to ensure authenticity.
 * - De-duplication: remembers recently seen event IDs and acknowledges replays
 *   without republishing.
 * - Event Publishing: republishes to the `littlesteps.events` topic exchange
 *   under a `payment.status.<status>` routing key.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Webhook signature validation.
 * - pkg/rabbitmq: Broker publishing.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/pkg/rabbitmq"
)

const (
	paymentSignatureHeader = "X-Payment-Signature"
	webhookExchange        = "littlesteps.events"

	// seenEventTTL bounds how long replayed event IDs are remembered. The
	// consumer is idempotent anyway, so this only trims broker noise.
	seenEventTTL = 30 * time.Minute
)

// PaymentWebhookHandler processes incoming webhooks from the payment provider.
type PaymentWebhookHandler struct {
	producer rabbitmq.Publisher
	secret   string

	mu         sync.Mutex
	seenEvents map[string]time.Time
}

// NewPaymentWebhookHandler creates a new handler for the payment webhook endpoint.
func NewPaymentWebhookHandler(producer rabbitmq.Publisher, secret string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		producer:   producer,
		secret:     secret,
		seenEvents: make(map[string]time.Time),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *PaymentWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=warn component=payment_webhook msg=\"failed to read body\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(paymentSignatureHeader), body) {
		log.Printf("level=warn component=payment_webhook msg=\"invalid signature\" remote=%s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.PaymentStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=payment_webhook msg=\"invalid JSON payload\" err=%v", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if event.ProviderReference == "" || event.Status == "" {
		http.Error(w, "provider_reference and status are required", http.StatusBadRequest)
		return
	}

	if h.isDuplicateEvent(event.EventID) {
		log.Printf("level=info component=payment_webhook msg=\"duplicate event acknowledged\" event_id=%s", event.EventID)
		w.WriteHeader(http.StatusOK)
		return
	}

	routingKey := "payment.status." + normalizeStatusKey(event.Status)
	if err := h.producer.Publish(r.Context(), webhookExchange, routingKey, event); err != nil {
		// Forget the event so the provider's retry is not dropped as a duplicate.
		h.forgetEvent(event.EventID)
		log.Printf("level=error component=payment_webhook msg=\"publish failed\" routing_key=%s err=%v", routingKey, err)
		http.Error(w, "Failed to queue event", http.StatusInternalServerError)
		return
	}

	log.Printf("level=info component=payment_webhook msg=\"event queued\" event_id=%s routing_key=%s provider_reference=%s",
		event.EventID, routingKey, event.ProviderReference)
	w.WriteHeader(http.StatusOK)
}

// isValidSignature validates the hex-encoded HMAC-SHA256 signature of the payload.
func (h *PaymentWebhookHandler) isValidSignature(signatureHeader string, body []byte) bool {
	if h.secret == "" {
		log.Printf("level=warn component=payment_webhook msg=\"PAYMENT_WEBHOOK_SECRET is not set; skipping signature validation\"")
		return true
	}

	signature := strings.TrimSpace(signatureHeader)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (h *PaymentWebhookHandler) isDuplicateEvent(eventID string) bool {
	if eventID == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, seenAt := range h.seenEvents {
		if now.Sub(seenAt) > seenEventTTL {
			delete(h.seenEvents, id)
		}
	}

	if _, seen := h.seenEvents[eventID]; seen {
		return true
	}
	h.seenEvents[eventID] = now
	return false
}

func (h *PaymentWebhookHandler) forgetEvent(eventID string) {
	if eventID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.seenEvents, eventID)
}

// normalizeStatusKey maps provider status spellings onto the routing key
// suffixes the settlement consumer binds to.
func normalizeStatusKey(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "success", "completed", "paid":
		return "completed"
	case "failed", "declined", "error":
		return "failed"
	default:
		return "processing"
	}
}
