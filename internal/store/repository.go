/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the booking-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	// Resolve internal UUID from the identity provider subject (e.g. "user_abc123").
	FindUserIDByAuthSubject(ctx context.Context, subject string) (string, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Booking methods. Reads always load schedules and payments so the ledger
	// can be recomputed from source records.
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	FindBookingsByParentID(ctx context.Context, parentID uuid.UUID) ([]domain.Booking, error)

	// CreateScheduleValidated validates the candidate against the booking's
	// ledger and commits it in one transaction, holding a row lock on the
	// booking so two concurrent sessions cannot both see sufficient hours.
	CreateScheduleValidated(ctx context.Context, bookingID uuid.UUID, schedule *domain.Schedule) error

	// ApplyTopUp persists a top-up atomically: the pending payment row plus the
	// booking's total-hours and total-price increments.
	ApplyTopUp(ctx context.Context, bookingID uuid.UUID, addedMinutes int64) (*domain.Booking, *domain.Payment, error)

	// Assignment state machine. All three are compare-and-set transitions: a
	// conditional single-row update whose loser is classified by a follow-up
	// read (ErrAlreadyAssigned, ErrNotPending, ErrWrongTrainer).
	FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error)
	FindSchedulesByTrainerID(ctx context.Context, trainerID uuid.UUID) ([]domain.Schedule, error)
	OfferSchedule(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error)
	ConfirmAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error)
	DeclineAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID, reason *string) (*domain.Schedule, error)

	// Payment lifecycle. MarkPaymentCompleted also rolls the amount into the
	// booking's paid total and flips the booking payment status when settled.
	MarkPaymentCompleted(ctx context.Context, providerReference string) (*domain.Payment, error)
	MarkPaymentFailed(ctx context.Context, providerReference string, reason string) (*domain.Payment, error)
	AttachProviderReference(ctx context.Context, paymentID uuid.UUID, providerReference string) error

	// In-app notification methods
	CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error
	ListInAppNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.InAppNotification, error)
	MarkInAppNotificationRead(ctx context.Context, userID uuid.UUID, notificationID uuid.UUID) (bool, error)
}
