/**
 * @description
 * This file consumes payment lifecycle events from the message broker and
 * settles the matching payment rows. Completing a top-up payment is the moment
 * its purchased hours become usable, so settlement also pushes the affected
 * sync contexts toward the booking owner's open dashboards.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/realtime"
	"github.com/littlesteps/booking-service/internal/store"
)

type PaymentStatusConsumer struct {
	repo store.Repository
	sync realtime.SyncPublisher
}

func NewPaymentStatusConsumer(repo store.Repository, sync realtime.SyncPublisher) *PaymentStatusConsumer {
	if sync == nil {
		sync = realtime.NoopSyncPublisher{}
	}
	return &PaymentStatusConsumer{repo: repo, sync: sync}
}

// HandleMessage is the broker binding target. Returning false re-queues the
// delivery; malformed payloads are acknowledged and dropped since a redelivery
// cannot fix them.
func (c *PaymentStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.PaymentStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"malformed payload dropped\" err=%v", err)
		return true
	}

	if strings.TrimSpace(event.ProviderReference) == "" {
		log.Printf("level=warn component=payment_consumer msg=\"missing provider reference\" event_id=%s", event.EventID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("level=error component=payment_consumer msg=\"processing failed; re-queuing\" provider_reference=%s err=%v", event.ProviderReference, err)
		return false
	}
	return true
}

func (c *PaymentStatusConsumer) processEvent(ctx context.Context, event domain.PaymentStatusEvent) error {
	switch normalizePaymentStatus(event.Status) {
	case domain.PaymentStatusCompleted:
		return c.handleCompleted(ctx, event)
	case domain.PaymentStatusFailed:
		return c.handleFailed(ctx, event)
	default:
		log.Printf("level=info component=payment_consumer msg=\"ignoring non-terminal status\" status=%s provider_reference=%s", event.Status, event.ProviderReference)
		return nil
	}
}

func (c *PaymentStatusConsumer) handleCompleted(ctx context.Context, event domain.PaymentStatusEvent) error {
	payment, err := c.repo.MarkPaymentCompleted(ctx, event.ProviderReference)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=payment_consumer msg=\"no payment for reference; acknowledging\" provider_reference=%s", event.ProviderReference)
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}

	booking, err := c.repo.FindBookingByID(ctx, payment.BookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}

	if payment.Purpose == domain.PaymentPurposeTopUp {
		c.notify(ctx, booking.ParentID, "booking", "Top-up confirmed",
			fmt.Sprintf("Your extra %.1f hours are now available to book.", float64(payment.AddedMinutes)/60))
	} else {
		c.notify(ctx, booking.ParentID, "booking", "Payment received",
			fmt.Sprintf("Payment for booking %s is complete. You can now schedule sessions.", booking.Reference))
	}

	c.push(ctx, booking.ParentID, domain.ContextBookings, domain.ContextPayments, domain.ContextNotifications)
	log.Printf("level=info component=payment_consumer msg=\"payment settled\" payment_id=%s booking_id=%s purpose=%s", payment.ID, booking.ID, payment.Purpose)
	return nil
}

func (c *PaymentStatusConsumer) handleFailed(ctx context.Context, event domain.PaymentStatusEvent) error {
	payment, err := c.repo.MarkPaymentFailed(ctx, event.ProviderReference, event.Reason)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil
		}
		return fmt.Errorf("mark failed: %w", err)
	}

	booking, err := c.repo.FindBookingByID(ctx, payment.BookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}

	c.notify(ctx, booking.ParentID, "booking", "Payment failed",
		fmt.Sprintf("A payment on booking %s did not go through. Please try again.", booking.Reference))
	c.push(ctx, booking.ParentID, domain.ContextPayments, domain.ContextNotifications)
	return nil
}

func (c *PaymentStatusConsumer) notify(ctx context.Context, userID uuid.UUID, category, title, body string) {
	err := c.repo.CreateInAppNotification(ctx, domain.InAppNotification{
		UserID:   userID,
		Category: category,
		Title:    title,
		Body:     body,
	})
	if err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"in-app notification failed\" user_id=%s err=%v", userID, err)
	}
}

func (c *PaymentStatusConsumer) push(ctx context.Context, parentID uuid.UUID, contexts ...domain.SyncContext) {
	if err := c.sync.PublishContexts(ctx, []uuid.UUID{parentID}, []string{domain.RoleAdmin}, contexts); err != nil {
		log.Printf("level=warn component=payment_consumer msg=\"sync push failed\" err=%v", err)
	}
}

func normalizePaymentStatus(status string) string {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "successful", "success", "completed", "paid":
		return domain.PaymentStatusCompleted
	case "failed", "failure", "declined":
		return domain.PaymentStatusFailed
	case "initiated", "processing", "pending":
		return domain.PaymentStatusPending
	default:
		return status
	}
}
