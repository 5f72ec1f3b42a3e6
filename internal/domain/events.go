/**
 * @description
 * This file defines the event payloads the booking-service publishes and consumes,
 * plus the closed set of synchronization contexts used to route dashboard refreshes.
 *
 * @notes
 * - Contexts are a closed enum rather than free-form strings so that an unknown
 *   tag fails fast at the boundary instead of silently never matching a subscriber.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncContext is a routing tag grouping related dashboard refresh subscriptions.
type SyncContext string

const (
	ContextBookings         SyncContext = "bookings"
	ContextChildren         SyncContext = "children"
	ContextTrainerSchedules SyncContext = "trainer_schedules"
	ContextNotifications    SyncContext = "notifications"
	ContextPayments         SyncContext = "payments"
)

// AllContexts lists every known synchronization context.
var AllContexts = []SyncContext{
	ContextBookings,
	ContextChildren,
	ContextTrainerSchedules,
	ContextNotifications,
	ContextPayments,
}

// ParseContext validates a raw context tag against the closed enum.
func ParseContext(raw string) (SyncContext, error) {
	c := SyncContext(raw)
	switch c {
	case ContextBookings, ContextChildren, ContextTrainerSchedules, ContextNotifications, ContextPayments:
		return c, nil
	}
	return "", fmt.Errorf("unknown sync context %q", raw)
}

// SyncEvent is the payload delivered over a push channel. It carries only the
// context tags whose views have gone stale; the system is level-triggered, so no
// entity data rides along.
type SyncEvent struct {
	Contexts []string `json:"contexts"`
}

// AssignmentEvent is published to the message broker whenever a schedule's
// trainer assignment changes state.
type AssignmentEvent struct {
	ScheduleID uuid.UUID  `json:"schedule_id"`
	BookingID  uuid.UUID  `json:"booking_id"`
	TrainerID  *uuid.UUID `json:"trainer_id,omitempty"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// TopUpEvent is published when a top-up purchase is recorded against a booking.
type TopUpEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	AddedMinutes int64     `json:"added_minutes"`
	AmountPence  int64     `json:"amount_pence"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentStatusEvent represents the message emitted by the payment webhook
// gateway for payment lifecycle updates from the provider.
type PaymentStatusEvent struct {
	EventID           string    `json:"event_id"`
	Status            string    `json:"status"`
	ProviderReference string    `json:"provider_reference"`
	AmountPence       int64     `json:"amount_pence"`
	Currency          string    `json:"currency"`
	Reason            string    `json:"reason,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
