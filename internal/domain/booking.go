/**
 * @description
 * This file defines the core domain models for the booking-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (pence), which avoids floating-point inaccuracies with financial data.
 * - Service hours are stored as integer minutes for the same reason; the half-hour
 *   granularity the platform sells in is 30 minutes. Hours only become decimal
 *   at the API boundary.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MinutesPerSlot is the scheduling granularity: sessions are sold in half hours.
const MinutesPerSlot = 30

// Booking statuses.
const (
	BookingStatusDraft     = "draft"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Payment statuses, shared by the booking-level payment_status rollup and
// individual payment rows.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment purposes.
const (
	PaymentPurposePackage = "package"
	PaymentPurposeTopUp   = "top_up"
)

// Schedule statuses.
const (
	ScheduleStatusDraft     = "draft"
	ScheduleStatusScheduled = "scheduled"
	ScheduleStatusCompleted = "completed"
	ScheduleStatusCancelled = "cancelled"
)

// Trainer assignment statuses. A schedule has at most one active (non-declined)
// assignment at any instant; `confirmed` always implies a non-null trainer id.
const (
	AssignmentStatusUnassigned = "unassigned"
	AssignmentStatusPending    = "pending_trainer_confirmation"
	AssignmentStatusConfirmed  = "confirmed"
	AssignmentStatusDeclined   = "declined"
)

// User roles.
const (
	RoleParent  = "parent"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

// Booking represents a purchased package of service hours for one child.
// This struct maps directly to the `bookings` table in the database.
type Booking struct {
	ID              uuid.UUID  `json:"id"`
	Reference       string     `json:"reference"`
	ParentID        uuid.UUID  `json:"parent_id"`
	ChildID         uuid.UUID  `json:"child_id"`
	PackageName     string     `json:"package_name"`
	PackageMinutes  int64      `json:"package_minutes"`
	TotalMinutes    int64      `json:"total_minutes"`
	TotalPricePence int64      `json:"total_price_pence"`
	PaidPence       int64      `json:"paid_pence"`
	Status          string     `json:"status"`         // e.g., 'draft', 'confirmed'
	PaymentStatus   string     `json:"payment_status"` // e.g., 'pending', 'completed'
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Schedules       []Schedule `json:"schedules,omitempty"`
	Payments        []Payment  `json:"payments,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Schedule represents one concrete session instance inside a booking, with its
// trainer assignment sub-state. Maps to the `schedules` table.
type Schedule struct {
	ID               uuid.UUID  `json:"id"`
	BookingID        uuid.UUID  `json:"booking_id"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            time.Time  `json:"end_at"`
	Status           string     `json:"status"` // e.g., 'draft', 'scheduled'
	TrainerID        *uuid.UUID `json:"trainer_id,omitempty"`
	AssignmentStatus string     `json:"trainer_assignment_status"`
	DeclineReason    *string    `json:"decline_reason,omitempty"`
	Activities       []string   `json:"activities,omitempty"`
	CustomActivity   *string    `json:"custom_activity,omitempty"`
	SessionNote      *string    `json:"session_note,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DurationMinutes returns the session length in whole minutes.
func (s Schedule) DurationMinutes() int64 {
	return int64(s.EndAt.Sub(s.StartAt) / time.Minute)
}

// Payment represents one payment row attached to a booking. Top-ups are modeled
// as a pending payment carrying the minutes they purchase; those minutes are not
// usable until the payment completes.
type Payment struct {
	ID                uuid.UUID `json:"id"`
	BookingID         uuid.UUID `json:"booking_id"`
	AmountPence       int64     `json:"amount_pence"`
	Status            string    `json:"status"`
	Purpose           string    `json:"purpose"`
	AddedMinutes      int64     `json:"added_minutes,omitempty"`
	ProviderReference string    `json:"provider_reference"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// User represents a simplified view of a platform user, containing only the data
// the booking-service needs.
type User struct {
	ID       uuid.UUID `json:"id"`
	Role     string    `json:"role"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

// CreateBookingRequest is the DTO for creating a draft booking from a package.
type CreateBookingRequest struct {
	ChildID      uuid.UUID `json:"child_id"`
	PackageName  string    `json:"package_name"`
	PackageHours float64   `json:"package_hours"`
	PackagePrice int64     `json:"package_price_pence"`
	ExpiresAt    *string   `json:"expires_at,omitempty"`
}

// CreateScheduleRequest is the DTO for adding a session to a booking.
type CreateScheduleRequest struct {
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Activities     []string  `json:"activities,omitempty"`
	CustomActivity *string   `json:"custom_activity,omitempty"`
}

// TopUpRequest is the DTO for the top-up endpoint. Hours must land on the
// half-hour granularity.
type TopUpRequest struct {
	AddedHours float64 `json:"added_hours"`
}

// OfferRequest is the DTO for offering a schedule to a trainer.
type OfferRequest struct {
	TrainerID uuid.UUID `json:"trainer_id"`
}

// DeclineRequest is the DTO for a trainer declining an offered session.
type DeclineRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// InAppNotification is a dashboard inbox item for a user.
type InAppNotification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Category  string    `json:"category"` // e.g., 'booking', 'assignment', 'system'
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"` // 'unread' or 'read'
	CreatedAt time.Time `json:"created_at"`
}

// NotificationListOptions controls paging and filtering of the inbox.
type NotificationListOptions struct {
	Limit  int
	Offset int
	Status string
}
