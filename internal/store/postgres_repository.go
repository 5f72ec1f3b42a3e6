/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * using the pgx driver. It is responsible for all SQL queries and transaction
 * handling for the booking-service.
 *
 * Key features:
 * - Assignment transitions are compare-and-set: a single conditional UPDATE
 *   whose WHERE clause encodes the expected state. Losers are classified with
 *   a follow-up read, never retried here.
 * - Hour-consuming writes validate and commit inside one transaction with a
 *   row lock on the booking, closing the check-then-act race.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - internal/domain, internal/ledger: Domain models and pure ledger rules.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/ledger"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrAlreadyAssigned     = errors.New("schedule already has an active assignment")
	ErrNotPending          = errors.New("schedule is not pending trainer confirmation")
	ErrWrongTrainer        = errors.New("trainer does not hold this assignment")
	ErrScheduleNotEligible = errors.New("schedule is not eligible for assignment")
	ErrInvariantViolation  = errors.New("ledger invariant violation")
)

const scheduleColumns = `id, booking_id, trainer_id, start_at, end_at, status, trainer_assignment_status,
		decline_reason, activities, custom_activity, session_note, version, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDByAuthSubject resolves the internal UUID from an identity provider subject.
func (r *PostgresRepository) FindUserIDByAuthSubject(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return id, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, role, full_name, email FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Role, &user.FullName, &user.Email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateBooking inserts a new draft booking.
func (r *PostgresRepository) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (id, reference, parent_id, child_id, package_name, package_minutes,
			total_minutes, total_price_pence, paid_pence, status, payment_status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		booking.ID, booking.Reference, booking.ParentID, booking.ChildID, booking.PackageName,
		booking.PackageMinutes, booking.TotalMinutes, booking.TotalPricePence, booking.PaidPence,
		booking.Status, booking.PaymentStatus, booking.ExpiresAt,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

// FindBookingByID loads a booking along with its schedules and payments so the
// ledger can be recomputed from source records.
func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	booking, err := r.scanBooking(ctx, r.db, bookingID, false)
	if err != nil {
		return nil, err
	}
	if err := r.loadBookingChildren(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// FindBookingsByParentID lists a parent's bookings, newest first, each with its
// schedules and payments attached.
func (r *PostgresRepository) FindBookingsByParentID(ctx context.Context, parentID uuid.UUID) ([]domain.Booking, error) {
	query := bookingSelect + ` WHERE parent_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBookingRow(rows, &b); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		if err := r.loadBookingChildren(ctx, &bookings[i]); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

const bookingSelect = `
	SELECT id, reference, parent_id, child_id, package_name, package_minutes,
		total_minutes, total_price_pence, paid_pence, status, payment_status,
		expires_at, created_at, updated_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookingRow(row rowScanner, b *domain.Booking) error {
	return row.Scan(
		&b.ID, &b.Reference, &b.ParentID, &b.ChildID, &b.PackageName, &b.PackageMinutes,
		&b.TotalMinutes, &b.TotalPricePence, &b.PaidPence, &b.Status, &b.PaymentStatus,
		&b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt,
	)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) scanBooking(ctx context.Context, q queryRower, bookingID uuid.UUID, forUpdate bool) (*domain.Booking, error) {
	query := bookingSelect + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b domain.Booking
	if err := scanBookingRow(q.QueryRow(ctx, query, bookingID), &b); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PostgresRepository) loadBookingChildren(ctx context.Context, booking *domain.Booking) error {
	schedules, err := r.querySchedules(ctx, r.db,
		`SELECT `+scheduleColumns+` FROM schedules WHERE booking_id = $1 ORDER BY start_at`, booking.ID)
	if err != nil {
		return err
	}
	booking.Schedules = schedules

	rows, err := r.db.Query(ctx, `
		SELECT id, booking_id, amount_pence, status, purpose, added_minutes, COALESCE(provider_reference, ''), created_at, updated_at
		FROM payments WHERE booking_id = $1 ORDER BY created_at`, booking.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	booking.Payments = booking.Payments[:0]
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.AmountPence, &p.Status, &p.Purpose,
			&p.AddedMinutes, &p.ProviderReference, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		booking.Payments = append(booking.Payments, p)
	}
	return rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PostgresRepository) querySchedules(ctx context.Context, q querier, query string, args ...any) ([]domain.Schedule, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		if err := scanScheduleRow(rows, &s); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func scanScheduleRow(row rowScanner, s *domain.Schedule) error {
	return row.Scan(
		&s.ID, &s.BookingID, &s.TrainerID, &s.StartAt, &s.EndAt, &s.Status, &s.AssignmentStatus,
		&s.DeclineReason, &s.Activities, &s.CustomActivity, &s.SessionNote, &s.Version,
		&s.CreatedAt, &s.UpdatedAt,
	)
}

// CreateScheduleValidated validates the candidate session against the booking's
// ledger and inserts it within a single transaction. The booking row is locked
// FOR UPDATE for the duration, so two concurrent requests cannot both observe
// sufficient remaining hours.
func (r *PostgresRepository) CreateScheduleValidated(ctx context.Context, bookingID uuid.UUID, schedule *domain.Schedule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	booking, err := r.scanBooking(ctx, tx, bookingID, true)
	if err != nil {
		return err
	}

	schedules, err := r.querySchedules(ctx, tx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE booking_id = $1`, bookingID)
	if err != nil {
		return err
	}
	booking.Schedules = schedules

	payRows, err := tx.Query(ctx,
		`SELECT purpose, status, added_minutes FROM payments WHERE booking_id = $1`, bookingID)
	if err != nil {
		return err
	}
	for payRows.Next() {
		var p domain.Payment
		if err := payRows.Scan(&p.Purpose, &p.Status, &p.AddedMinutes); err != nil {
			payRows.Close()
			return err
		}
		booking.Payments = append(booking.Payments, p)
	}
	payRows.Close()
	if err := payRows.Err(); err != nil {
		return err
	}

	if err := ledger.ValidateNewSchedule(booking, schedule); err != nil {
		return err
	}

	// Same-trainer overlap across other bookings, checked under the same
	// transaction as the insert.
	if schedule.TrainerID != nil {
		var clash bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM schedules
				WHERE trainer_id = $1 AND status <> 'cancelled'
				  AND start_at < $3 AND end_at > $2
			)`, *schedule.TrainerID, schedule.StartAt, schedule.EndAt).Scan(&clash)
		if err != nil {
			return err
		}
		if clash {
			return ledger.ErrOverlap
		}
	}

	schedule.BookingID = bookingID
	if schedule.Status == "" {
		schedule.Status = domain.ScheduleStatusDraft
	}
	if schedule.AssignmentStatus == "" {
		schedule.AssignmentStatus = domain.AssignmentStatusUnassigned
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO schedules (id, booking_id, trainer_id, start_at, end_at, status,
			trainer_assignment_status, activities, custom_activity, session_note, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING version, created_at, updated_at`,
		schedule.ID, schedule.BookingID, schedule.TrainerID, schedule.StartAt, schedule.EndAt,
		schedule.Status, schedule.AssignmentStatus, schedule.Activities, schedule.CustomActivity,
		schedule.SessionNote,
	).Scan(&schedule.Version, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyTopUp increments the booking's purchased hours and records the pending
// payment, all inside one transaction against the locked booking row.
func (r *PostgresRepository) ApplyTopUp(ctx context.Context, bookingID uuid.UUID, addedMinutes int64) (*domain.Booking, *domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	booking, err := r.scanBooking(ctx, tx, bookingID, true)
	if err != nil {
		return nil, nil, err
	}

	rate := ledger.HourlyRate(booking.PackageMinutes, packagePrice(booking))
	payment, err := ledger.ApplyTopUp(booking, addedMinutes, rate)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, amount_pence, status, purpose, added_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		payment.ID, payment.BookingID, payment.AmountPence, payment.Status, payment.Purpose,
		payment.AddedMinutes,
	); err != nil {
		return nil, nil, err
	}

	// Expiry deliberately untouched: top-ups never extend or shorten the package window.
	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET total_minutes = $2, total_price_pence = $3, updated_at = now()
		WHERE id = $1`,
		bookingID, booking.TotalMinutes, booking.TotalPricePence,
	); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	updated, err := r.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	return updated, payment, nil
}

// packagePrice reconstructs the original package price from the booking's
// price history: the total price minus every recorded top-up amount.
func packagePrice(b *domain.Booking) int64 {
	price := b.TotalPricePence
	for _, p := range b.Payments {
		if p.Purpose == domain.PaymentPurposeTopUp {
			price -= p.AmountPence
		}
	}
	return price
}

// FindScheduleByID retrieves one schedule row.
func (r *PostgresRepository) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	var s domain.Schedule
	err := scanScheduleRow(r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, scheduleID), &s)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindSchedulesByTrainerID lists the sessions currently offered to or held by a trainer.
func (r *PostgresRepository) FindSchedulesByTrainerID(ctx context.Context, trainerID uuid.UUID) ([]domain.Schedule, error) {
	return r.querySchedules(ctx, r.db,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE trainer_id = $1 AND status <> 'cancelled' ORDER BY start_at`, trainerID)
}

// OfferSchedule moves a schedule from unassigned/declined into
// pending_trainer_confirmation for exactly one trainer. Two simultaneous offers
// race on the conditional update; the loser is classified as ErrAlreadyAssigned.
func (r *PostgresRepository) OfferSchedule(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	var s domain.Schedule
	err := scanScheduleRow(r.db.QueryRow(ctx, `
		UPDATE schedules
		SET trainer_id = $2,
			trainer_assignment_status = $3,
			decline_reason = NULL,
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		  AND trainer_assignment_status IN ($4, $5)
		  AND status NOT IN ('cancelled', 'completed')
		RETURNING `+scheduleColumns,
		scheduleID, trainerID, domain.AssignmentStatusPending,
		domain.AssignmentStatusUnassigned, domain.AssignmentStatusDeclined), &s)
	if err == nil {
		return &s, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	return nil, r.classifyOfferFailure(ctx, scheduleID)
}

func (r *PostgresRepository) classifyOfferFailure(ctx context.Context, scheduleID uuid.UUID) error {
	current, err := r.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if current.Status == domain.ScheduleStatusCancelled || current.Status == domain.ScheduleStatusCompleted {
		return ErrScheduleNotEligible
	}
	return ErrAlreadyAssigned
}

// ConfirmAssignment completes the pending assignment for the trainer on record
// and marks the session scheduled. Re-confirming an assignment the same trainer
// already won is a no-op success so client retries stay harmless.
func (r *PostgresRepository) ConfirmAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	var s domain.Schedule
	err := scanScheduleRow(r.db.QueryRow(ctx, `
		UPDATE schedules
		SET trainer_assignment_status = $3,
			status = $4,
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		  AND trainer_id = $2
		  AND trainer_assignment_status = $5
		RETURNING `+scheduleColumns,
		scheduleID, trainerID, domain.AssignmentStatusConfirmed,
		domain.ScheduleStatusScheduled, domain.AssignmentStatusPending), &s)
	if err == nil {
		if s.TrainerID == nil {
			// Should be unreachable given the WHERE clause; reject rather than persist.
			log.Printf("level=error component=store msg=\"confirmed assignment with null trainer\" schedule_id=%s", scheduleID)
			return nil, ErrInvariantViolation
		}
		return &s, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	current, err := r.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if current.AssignmentStatus == domain.AssignmentStatusConfirmed &&
		current.TrainerID != nil && *current.TrainerID == trainerID {
		// Idempotent retry from the winning trainer.
		return current, nil
	}
	if current.AssignmentStatus == domain.AssignmentStatusPending {
		return nil, ErrWrongTrainer
	}
	return nil, ErrNotPending
}

// DeclineAssignment releases the pending assignment held by the trainer,
// clearing the trainer so the scheduler can offer the session again.
func (r *PostgresRepository) DeclineAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID, reason *string) (*domain.Schedule, error) {
	var s domain.Schedule
	err := scanScheduleRow(r.db.QueryRow(ctx, `
		UPDATE schedules
		SET trainer_assignment_status = $3,
			trainer_id = NULL,
			decline_reason = $4,
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		  AND trainer_id = $2
		  AND trainer_assignment_status = $5
		RETURNING `+scheduleColumns,
		scheduleID, trainerID, domain.AssignmentStatusDeclined, reason,
		domain.AssignmentStatusPending), &s)
	if err == nil {
		return &s, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	current, err := r.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if current.AssignmentStatus == domain.AssignmentStatusPending {
		return nil, ErrWrongTrainer
	}
	return nil, ErrNotPending
}

// MarkPaymentCompleted settles a pending payment by its provider reference and
// rolls the amount into the booking's paid total. Already-settled payments are
// returned as-is so provider webhook replays stay idempotent.
func (r *PostgresRepository) MarkPaymentCompleted(ctx context.Context, providerReference string) (*domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var p domain.Payment
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status = 'completed', updated_at = now()
		WHERE provider_reference = $1 AND status = 'pending'
		RETURNING id, booking_id, amount_pence, status, purpose, added_minutes, COALESCE(provider_reference, ''), created_at, updated_at`,
		providerReference,
	).Scan(&p.ID, &p.BookingID, &p.AmountPence, &p.Status, &p.Purpose, &p.AddedMinutes,
		&p.ProviderReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.findSettledPayment(ctx, providerReference)
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings
		SET paid_pence = paid_pence + $2,
			payment_status = CASE WHEN paid_pence + $2 >= total_price_pence THEN 'completed' ELSE payment_status END,
			status = CASE WHEN status = 'draft' THEN 'confirmed' ELSE status END,
			updated_at = now()
		WHERE id = $1`,
		p.BookingID, p.AmountPence,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) findSettledPayment(ctx context.Context, providerReference string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.QueryRow(ctx, `
		SELECT id, booking_id, amount_pence, status, purpose, added_minutes, COALESCE(provider_reference, ''), created_at, updated_at
		FROM payments WHERE provider_reference = $1`,
		providerReference,
	).Scan(&p.ID, &p.BookingID, &p.AmountPence, &p.Status, &p.Purpose, &p.AddedMinutes,
		&p.ProviderReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MarkPaymentFailed records a provider failure against a pending payment.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, providerReference string, reason string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE provider_reference = $1 AND status = 'pending'
		RETURNING id, booking_id, amount_pence, status, purpose, added_minutes, COALESCE(provider_reference, ''), created_at, updated_at`,
		providerReference, reason,
	).Scan(&p.ID, &p.BookingID, &p.AmountPence, &p.Status, &p.Purpose, &p.AddedMinutes,
		&p.ProviderReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.findSettledPayment(ctx, providerReference)
		}
		return nil, err
	}
	return &p, nil
}

// AttachProviderReference links a payment row to the provider's checkout reference.
func (r *PostgresRepository) AttachProviderReference(ctx context.Context, paymentID uuid.UUID, providerReference string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET provider_reference = $2, updated_at = now() WHERE id = $1`,
		paymentID, providerReference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// CreateInAppNotification inserts one inbox item for a user.
func (r *PostgresRepository) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, category, title, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'unread', $6)`,
		item.ID, item.UserID, item.Category, item.Title, item.Body, item.CreatedAt)
	return err
}

// ListInAppNotifications lists inbox items for a user, newest first.
func (r *PostgresRepository) ListInAppNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.InAppNotification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, category, title, body, status, created_at
		FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, opts.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.InAppNotification
	for rows.Next() {
		var n domain.InAppNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Body, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkInAppNotificationRead marks one inbox item read; returns false when the
// item does not belong to the user or does not exist.
func (r *PostgresRepository) MarkInAppNotificationRead(ctx context.Context, userID uuid.UUID, notificationID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET status = 'read' WHERE id = $1 AND user_id = $2 AND status = 'unread'`,
		notificationID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
