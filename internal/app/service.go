/**
 * @description
 * This file contains the core business logic for the booking-service. The
 * `Service` struct orchestrates bookings, top-ups, schedule creation and the
 * trainer assignment state machine, coordinating between the database
 * repository, the message broker, the push synchronization publisher and the
 * email notifier.
 *
 * Key features:
 * - Hour-consuming writes delegate validation + commit to the store so both
 *   happen inside one transaction (no check-then-act window).
 * - Assignment transitions are compare-and-set in the store; business errors
 *   (AlreadyAssigned, NotPending, WrongTrainer) bubble to the caller verbatim
 *   and are never retried here.
 * - Every committed mutation publishes a broker event and pushes the affected
 *   sync contexts toward open dashboards.
 *
 * @dependencies
 * - internal/domain, internal/ledger, internal/store, internal/realtime:
 *   Domain models, pure ledger rules, persistence, sync fan-out.
 * - pkg/rabbitmq, pkg/mailer: Broker publishing and transactional email.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/ledger"
	"github.com/littlesteps/booking-service/internal/realtime"
	"github.com/littlesteps/booking-service/internal/store"
	"github.com/littlesteps/booking-service/pkg/mailer"
	"github.com/littlesteps/booking-service/pkg/rabbitmq"
)

const (
	eventExchange = "littlesteps.events"

	// writeTimeout bounds every mutating operation so a stalled datastore
	// surfaces as a Timeout business condition instead of a hung caller.
	writeTimeout = 10 * time.Second
)

var (
	ErrRateLimited = errors.New("too many attempts; slow down")
)

// RateLimiter is the contract for the fixed-window limiter guarding the
// trainer-facing endpoints.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for bookings and assignments.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	syncPublisher realtime.SyncPublisher
	mail          mailer.Mailer

	limiter            RateLimiter
	trainerActionLimit int
}

// NewService creates a new booking service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, sync realtime.SyncPublisher, mail mailer.Mailer) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if sync == nil {
		sync = realtime.NoopSyncPublisher{}
	}
	if mail == nil {
		mail = mailer.Noop{}
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
		syncPublisher: sync,
		mail:          mail,
	}
}

// SetRateLimiter wires the Redis limiter for trainer confirm/decline actions.
func (s *Service) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.trainerActionLimit = perMinute
}

// ResolveInternalUserID converts an identity provider subject (e.g. "user_abc123")
// into the internal UUID used by our database. This allows handlers to accept
// subjects from validated JWTs while repositories keep operating on UUIDs.
func (s *Service) ResolveInternalUserID(ctx context.Context, subject string) (string, error) {
	return s.repo.FindUserIDByAuthSubject(ctx, subject)
}

// GetUser loads one user.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// CreateBooking records a draft booking for a package purchase. The package
// payment itself is created pending and settles through the payment webhook.
func (s *Service) CreateBooking(ctx context.Context, parentID uuid.UUID, req domain.CreateBookingRequest) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	minutes, err := ledger.MinutesFromHours(req.PackageHours)
	if err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:              uuid.New(),
		Reference:       newBookingReference(),
		ParentID:        parentID,
		ChildID:         req.ChildID,
		PackageName:     req.PackageName,
		PackageMinutes:  minutes,
		TotalMinutes:    minutes,
		TotalPricePence: req.PackagePrice,
		Status:          domain.BookingStatusDraft,
		PaymentStatus:   domain.PaymentStatusPending,
	}
	if req.ExpiresAt != nil {
		expiry, parseErr := time.Parse(time.RFC3339, *req.ExpiresAt)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid expires_at: %w", parseErr)
		}
		booking.ExpiresAt = &expiry
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=create_booking booking_id=%s reference=%s parent_id=%s", booking.ID, booking.Reference, parentID)
	s.pushContexts(ctx, []uuid.UUID{parentID}, []string{domain.RoleAdmin}, domain.ContextBookings, domain.ContextChildren)
	return booking, nil
}

// GetBooking loads a booking with its ledger snapshot recomputed server-side.
func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, ledger.Snapshot, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, ledger.Snapshot{}, err
	}
	snap := ledger.Compute(booking)
	if snap.OverBooked {
		log.Printf("level=error component=app op=get_booking msg=\"over-booked ledger detected\" booking_id=%s", bookingID)
	}
	return booking, snap, nil
}

// ListBookings loads a parent's bookings with per-booking ledger snapshots.
func (s *Service) ListBookings(ctx context.Context, parentID uuid.UUID) ([]domain.Booking, []ledger.Snapshot, error) {
	bookings, err := s.repo.FindBookingsByParentID(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}
	snaps := make([]ledger.Snapshot, len(bookings))
	for i := range bookings {
		snaps[i] = ledger.Compute(&bookings[i])
	}
	return bookings, snaps, nil
}

// TopUp adds purchased hours to a booking at the package's original hourly
// rate. The hours stay unusable until the created payment completes.
func (s *Service) TopUp(ctx context.Context, bookingID uuid.UUID, addedHours float64) (*domain.Booking, *domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	addedMinutes, err := ledger.MinutesFromHours(addedHours)
	if err != nil {
		return nil, nil, err
	}

	booking, payment, err := s.repo.ApplyTopUp(ctx, bookingID, addedMinutes)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("level=info component=app op=top_up booking_id=%s payment_id=%s added_minutes=%d amount_pence=%d",
		bookingID, payment.ID, payment.AddedMinutes, payment.AmountPence)

	s.publishEvent(ctx, "booking.topup.created", domain.TopUpEvent{
		BookingID:    bookingID,
		PaymentID:    payment.ID,
		AddedMinutes: payment.AddedMinutes,
		AmountPence:  payment.AmountPence,
		OccurredAt:   time.Now().UTC(),
	})
	s.pushContexts(ctx, []uuid.UUID{booking.ParentID}, []string{domain.RoleAdmin}, domain.ContextBookings, domain.ContextPayments)
	return booking, payment, nil
}

// CreateSchedule validates and commits one new session for a booking in a
// single atomic unit against the backing store.
func (s *Service) CreateSchedule(ctx context.Context, bookingID uuid.UUID, req domain.CreateScheduleRequest) (*domain.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	schedule := &domain.Schedule{
		ID:             uuid.New(),
		BookingID:      bookingID,
		StartAt:        req.StartAt.UTC(),
		EndAt:          req.EndAt.UTC(),
		Status:         domain.ScheduleStatusDraft,
		Activities:     req.Activities,
		CustomActivity: req.CustomActivity,
	}

	if err := s.repo.CreateScheduleValidated(ctx, bookingID, schedule); err != nil {
		return nil, err
	}

	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err == nil {
		s.pushContexts(ctx, []uuid.UUID{booking.ParentID}, []string{domain.RoleAdmin}, domain.ContextBookings)
	}
	log.Printf("level=info component=app op=create_schedule booking_id=%s schedule_id=%s duration_minutes=%d",
		bookingID, schedule.ID, schedule.DurationMinutes())
	return schedule, nil
}

// AttachPaymentReference links a payment row to the provider's checkout
// reference so later webhook events can settle it.
func (s *Service) AttachPaymentReference(ctx context.Context, paymentID uuid.UUID, providerReference string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.repo.AttachProviderReference(ctx, paymentID, providerReference); err != nil {
		return err
	}
	log.Printf("level=info component=app op=attach_payment_reference payment_id=%s provider_reference=%s", paymentID, providerReference)
	return nil
}

// Offer proposes a schedule to exactly one trainer. Concurrent offers race on
// the store's compare-and-set; exactly one wins.
func (s *Service) Offer(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	schedule, err := s.repo.OfferSchedule(ctx, scheduleID, trainerID)
	if err != nil {
		return nil, err
	}

	s.notifyUser(ctx, trainerID, "assignment", "New session offer",
		fmt.Sprintf("You have been offered a session on %s.", schedule.StartAt.Format("Mon 2 Jan 15:04")))

	s.publishEvent(ctx, "schedule.assignment.offered", assignmentEvent(schedule, ""))
	s.pushContexts(ctx, []uuid.UUID{trainerID}, []string{domain.RoleAdmin}, domain.ContextTrainerSchedules, domain.ContextNotifications)
	log.Printf("level=info component=app op=offer schedule_id=%s trainer_id=%s", scheduleID, trainerID)
	return schedule, nil
}

// Confirm records the trainer's acceptance of a pending offer and marks the
// session scheduled. Re-confirming after success is a no-op success, so client
// retries over a flaky network stay harmless.
func (s *Service) Confirm(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.consumeTrainerAction(ctx, "assignment_confirm", trainerID); err != nil {
		return nil, err
	}

	schedule, err := s.repo.ConfirmAssignment(ctx, scheduleID, trainerID)
	if err != nil {
		return nil, err
	}

	booking, bookingErr := s.repo.FindBookingByID(ctx, schedule.BookingID)
	if bookingErr != nil {
		log.Printf("level=warn component=app op=confirm msg=\"owner lookup failed; notifications skipped\" schedule_id=%s err=%v", scheduleID, bookingErr)
	} else {
		s.notifyUser(ctx, booking.ParentID, "assignment", "Session confirmed",
			fmt.Sprintf("Your session on %s is confirmed.", schedule.StartAt.Format("Mon 2 Jan 15:04")))
		s.emailOwner(ctx, booking, schedule)
		s.pushContexts(ctx, []uuid.UUID{booking.ParentID, trainerID}, []string{domain.RoleTrainer, domain.RoleAdmin},
			domain.ContextBookings, domain.ContextTrainerSchedules, domain.ContextNotifications)
	}

	s.publishEvent(ctx, "schedule.assignment.confirmed", assignmentEvent(schedule, ""))
	log.Printf("level=info component=app op=confirm schedule_id=%s trainer_id=%s version=%d", scheduleID, trainerID, schedule.Version)
	return schedule, nil
}

// Decline releases a pending offer and emits a reassignment request for the
// external scheduler, which may Offer the session to a different trainer.
func (s *Service) Decline(ctx context.Context, scheduleID, trainerID uuid.UUID, reason *string) (*domain.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.consumeTrainerAction(ctx, "assignment_decline", trainerID); err != nil {
		return nil, err
	}

	schedule, err := s.repo.DeclineAssignment(ctx, scheduleID, trainerID, reason)
	if err != nil {
		return nil, err
	}

	declineReason := ""
	if reason != nil {
		declineReason = *reason
	}
	s.publishEvent(ctx, "schedule.assignment.declined", assignmentEvent(schedule, declineReason))
	s.pushContexts(ctx, []uuid.UUID{trainerID}, []string{domain.RoleAdmin},
		domain.ContextBookings, domain.ContextTrainerSchedules)
	log.Printf("level=info component=app op=decline schedule_id=%s trainer_id=%s", scheduleID, trainerID)
	return schedule, nil
}

// TrainerSchedules lists the sessions a trainer currently holds or is offered.
func (s *Service) TrainerSchedules(ctx context.Context, trainerID uuid.UUID) ([]domain.Schedule, error) {
	return s.repo.FindSchedulesByTrainerID(ctx, trainerID)
}

// ListNotifications lists a user's inbox.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.InAppNotification, error) {
	return s.repo.ListInAppNotifications(ctx, userID, opts)
}

// MarkNotificationRead marks one inbox item read.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	return s.repo.MarkInAppNotificationRead(ctx, userID, notificationID)
}

// PaymentStatusConsumer builds the broker consumer that settles payments.
func (s *Service) PaymentStatusConsumer() *PaymentStatusConsumer {
	return NewPaymentStatusConsumer(s.repo, s.syncPublisher)
}

func (s *Service) consumeTrainerAction(ctx context.Context, scope string, trainerID uuid.UUID) error {
	if s.limiter == nil || s.trainerActionLimit <= 0 {
		return nil
	}
	count, _, err := s.limiter.ConsumeRateLimit(ctx, scope, trainerID.String(), s.trainerActionLimit, time.Minute)
	if err != nil {
		// Limiter trouble is infrastructure, not a business rejection.
		log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing action\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > s.trainerActionLimit {
		return ErrRateLimited
	}
	return nil
}

func (s *Service) notifyUser(ctx context.Context, userID uuid.UUID, category, title, body string) {
	err := s.repo.CreateInAppNotification(ctx, domain.InAppNotification{
		UserID:   userID,
		Category: category,
		Title:    title,
		Body:     body,
	})
	if err != nil {
		log.Printf("level=warn component=app msg=\"in-app notification failed\" user_id=%s err=%v", userID, err)
	}
}

func (s *Service) emailOwner(ctx context.Context, booking *domain.Booking, schedule *domain.Schedule) {
	owner, err := s.repo.FindUserByID(ctx, booking.ParentID)
	if err != nil || owner.Email == "" {
		return
	}
	err = s.mail.Send(ctx, mailer.Message{
		To:      owner.Email,
		Subject: fmt.Sprintf("Session confirmed: booking %s", booking.Reference),
		HTML: fmt.Sprintf("<p>Hi %s,</p><p>Your session on %s has been confirmed by the trainer.</p>",
			owner.FullName, schedule.StartAt.Format("Monday 2 January, 15:04")),
	})
	if err != nil {
		log.Printf("level=warn component=app msg=\"confirmation email failed\" booking_id=%s err=%v", booking.ID, err)
	}
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if err := s.eventProducer.Publish(ctx, eventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func (s *Service) pushContexts(ctx context.Context, userIDs []uuid.UUID, roles []string, contexts ...domain.SyncContext) {
	if err := s.syncPublisher.PublishContexts(ctx, userIDs, roles, contexts); err != nil {
		log.Printf("level=warn component=app msg=\"sync push failed\" contexts=%v err=%v", contexts, err)
	}
}

func assignmentEvent(schedule *domain.Schedule, reason string) domain.AssignmentEvent {
	return domain.AssignmentEvent{
		ScheduleID: schedule.ID,
		BookingID:  schedule.BookingID,
		TrainerID:  schedule.TrainerID,
		Status:     schedule.AssignmentStatus,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

func newBookingReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "LS-" + raw[:6]
}
