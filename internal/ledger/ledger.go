/**
 * @description
 * This package implements the hours ledger: pure accounting functions over a
 * booking's schedules and payments. It has no I/O and no dependency on the
 * store; the store calls into it inside the same transaction that commits an
 * hour-consuming write so that validation and commit share one consistency
 * boundary.
 *
 * Key features:
 * - Compute derives booked/used/remaining minutes and the outstanding amount.
 * - ValidateNewSchedule guards hour-consuming mutations with structured
 *   business errors, never panics for expected conditions.
 * - ApplyTopUp models a top-up as a pending payment plus a total-hours
 *   increment; the purchased minutes stay unusable until the payment completes.
 *
 * @dependencies
 * - internal/domain: For the booking, schedule and payment models.
 */

package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
)

var (
	ErrInsufficientHours   = errors.New("insufficient remaining hours")
	ErrOverlap             = errors.New("schedule overlaps an existing session")
	ErrPaymentNotConfirmed = errors.New("booking payment is not confirmed")
	ErrInvalidDuration     = errors.New("schedule duration is invalid")
	ErrInvalidGranularity  = errors.New("hours must be in half-hour steps")
)

// Snapshot is the derived ledger view for one booking. It is recomputed from
// source records at read time and never stored.
type Snapshot struct {
	BookedMinutes    int64 `json:"booked_minutes"`
	UsedMinutes      int64 `json:"used_minutes"`
	RemainingMinutes int64 `json:"remaining_minutes"`
	OutstandingPence int64 `json:"outstanding_pence"`
	// OverBooked flags the invariant breach where non-cancelled schedules
	// exceed the usable total. Remaining is clamped at zero in that case.
	OverBooked bool `json:"over_booked"`
}

// BookedHours, UsedHours and RemainingHours format the minute counters as
// decimal hours for the API boundary.
func (s Snapshot) BookedHours() float64    { return float64(s.BookedMinutes) / 60 }
func (s Snapshot) UsedHours() float64      { return float64(s.UsedMinutes) / 60 }
func (s Snapshot) RemainingHours() float64 { return float64(s.RemainingMinutes) / 60 }

// UsableMinutes returns the booking's total minutes minus minutes purchased by
// top-ups whose payment is not in the completed state. Pending and failed
// top-ups have not been paid for; refunded ones have had the money returned,
// so their minutes leave the usable pool again.
func UsableMinutes(booking *domain.Booking) int64 {
	usable := booking.TotalMinutes
	for _, p := range booking.Payments {
		if p.Purpose == domain.PaymentPurposeTopUp && p.Status != domain.PaymentStatusCompleted {
			usable -= p.AddedMinutes
		}
	}
	if usable < 0 {
		usable = 0
	}
	return usable
}

// Compute derives the ledger snapshot for a booking. Deterministic given the
// same inputs; completed schedules count toward both booked and used.
func Compute(booking *domain.Booking) Snapshot {
	var booked, used int64
	for _, sch := range booking.Schedules {
		if sch.Status == domain.ScheduleStatusCancelled {
			continue
		}
		d := sch.DurationMinutes()
		booked += d
		if sch.Status == domain.ScheduleStatusCompleted {
			used += d
		}
	}

	remaining := UsableMinutes(booking) - booked
	overBooked := remaining < 0
	if overBooked {
		remaining = 0
	}

	outstanding := booking.TotalPricePence - booking.PaidPence
	if outstanding < 0 {
		outstanding = 0
	}

	return Snapshot{
		BookedMinutes:    booked,
		UsedMinutes:      used,
		RemainingMinutes: remaining,
		OutstandingPence: outstanding,
		OverBooked:       overBooked,
	}
}

// ValidateNewSchedule checks whether a candidate session may consume hours from
// the booking. It returns a structured business error (ErrInsufficientHours,
// ErrOverlap, ErrPaymentNotConfirmed) or nil when the candidate is acceptable.
//
// Overlap is evaluated against the booking's own non-cancelled schedules for
// the same trainer; cross-booking trainer overlap is the store's concern since
// it needs a wider read inside the committing transaction.
func ValidateNewSchedule(booking *domain.Booking, candidate *domain.Schedule) error {
	duration := candidate.DurationMinutes()
	if duration <= 0 || duration%domain.MinutesPerSlot != 0 {
		return ErrInvalidDuration
	}

	if booking.PaymentStatus != domain.PaymentStatusCompleted {
		return ErrPaymentNotConfirmed
	}

	snap := Compute(booking)
	if duration > snap.RemainingMinutes {
		return ErrInsufficientHours
	}

	if candidate.TrainerID != nil {
		for _, existing := range booking.Schedules {
			if existing.Status == domain.ScheduleStatusCancelled {
				continue
			}
			if existing.TrainerID == nil || *existing.TrainerID != *candidate.TrainerID {
				continue
			}
			if overlaps(existing.StartAt, existing.EndAt, candidate.StartAt, candidate.EndAt) {
				return ErrOverlap
			}
		}
	}

	return nil
}

// ApplyTopUp increments the booking's total minutes and attaches a pending
// payment priced at the package's original hourly rate, rounded to the nearest
// penny. The booking is modified in place and the created payment returned.
// Top-ups never move the package expiry date.
func ApplyTopUp(booking *domain.Booking, addedMinutes int64, ratePencePerHour int64) (*domain.Payment, error) {
	if addedMinutes <= 0 || addedMinutes%domain.MinutesPerSlot != 0 {
		return nil, ErrInvalidGranularity
	}

	amount := int64(math.Round(float64(addedMinutes) / 60 * float64(ratePencePerHour)))

	payment := &domain.Payment{
		ID:           uuid.New(),
		BookingID:    booking.ID,
		AmountPence:  amount,
		Status:       domain.PaymentStatusPending,
		Purpose:      domain.PaymentPurposeTopUp,
		AddedMinutes: addedMinutes,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	booking.TotalMinutes += addedMinutes
	booking.TotalPricePence += amount
	booking.Payments = append(booking.Payments, *payment)

	return payment, nil
}

// HourlyRate derives the package's per-hour price in pence from its original
// size and price. Returns zero when the package has no minutes.
func HourlyRate(packageMinutes, packagePricePence int64) int64 {
	if packageMinutes <= 0 {
		return 0
	}
	return int64(math.Round(float64(packagePricePence) / (float64(packageMinutes) / 60)))
}

// MinutesFromHours converts decimal hours to minutes, enforcing the half-hour
// granularity the platform sells in.
func MinutesFromHours(hours float64) (int64, error) {
	minutes := hours * 60
	rounded := math.Round(minutes)
	if math.Abs(minutes-rounded) > 1e-9 {
		return 0, ErrInvalidGranularity
	}
	m := int64(rounded)
	if m <= 0 || m%domain.MinutesPerSlot != 0 {
		return 0, ErrInvalidGranularity
	}
	return m, nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
