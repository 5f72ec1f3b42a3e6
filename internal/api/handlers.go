/**
 * @description
 * This file contains the HTTP handlers for the booking-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Every JSON body carries an `ok` boolean so clients can branch on the outcome
 * before inspecting the payload. Business rejections additionally carry a
 * stable machine-readable `error_code` (e.g. "InsufficientHours", "Overlap",
 * "NotPending") so dashboards can branch on the condition without parsing
 * message text.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/ledger, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/app"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/ledger"
	"github.com/littlesteps/booking-service/internal/store"
)

// BookingHandlers holds the application service that handlers will use.
type BookingHandlers struct {
	service *app.Service
}

// NewBookingHandlers creates a new instance of BookingHandlers.
func NewBookingHandlers(service *app.Service) *BookingHandlers {
	return &BookingHandlers{service: service}
}

// bookingResponse pairs a booking with its server-computed ledger snapshot so
// clients never derive remaining hours themselves.
type bookingResponse struct {
	Booking          *domain.Booking `json:"booking"`
	BookedHours      float64         `json:"booked_hours"`
	UsedHours        float64         `json:"used_hours"`
	RemainingHours   float64         `json:"remaining_hours"`
	OutstandingPence int64           `json:"outstanding_pence"`
	OverBooked       bool            `json:"over_booked"`
}

func buildBookingResponse(booking *domain.Booking, snap ledger.Snapshot) bookingResponse {
	return bookingResponse{
		Booking:          booking,
		BookedHours:      snap.BookedHours(),
		UsedHours:        snap.UsedHours(),
		RemainingHours:   snap.RemainingHours(),
		OutstandingPence: snap.OutstandingPence,
		OverBooked:       snap.OverBooked,
	}
}

// resolveUser maps the token subject in the request context to the internal
// user UUID. It writes the error response itself and returns ok=false on failure.
func (h *BookingHandlers) resolveUser(w http.ResponseWriter, r *http.Request, endpoint string) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return uuid.Nil, false
	}

	internalIDStr, err := h.service.ResolveInternalUserID(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=user_resolution_failed subject=%s err=%v", endpoint, subject, err)
		http.Error(w, "User not found", http.StatusBadRequest)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(internalIDStr)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=invalid_user_id internal_user_id=%s", endpoint, internalIDStr)
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return userID, true
}

func parsePathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s", param), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// MeHandler returns the authenticated user's profile.
func (h *BookingHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r, "me")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"user": user})
}

// CreateBookingHandler records a draft booking for a purchased package.
func (h *BookingHandlers) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.resolveUser(w, r, "create_booking")
	if !ok {
		return
	}

	var req domain.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_booking outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), parentID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_booking outcome=failed parent_id=%s err=%v", parentID, err)
		h.writeBusinessError(w, err)
		return
	}

	snap := ledger.Compute(booking)
	h.writeOK(w, http.StatusCreated, map[string]interface{}{"booking": buildBookingResponse(booking, snap)})
}

// ListBookingsHandler returns the authenticated parent's bookings with snapshots.
func (h *BookingHandlers) ListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.resolveUser(w, r, "list_bookings")
	if !ok {
		return
	}

	bookings, snaps, err := h.service.ListBookings(r.Context(), parentID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=list_bookings outcome=failed parent_id=%s err=%v", parentID, err)
		h.writeBusinessError(w, err)
		return
	}

	responses := make([]bookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = buildBookingResponse(&bookings[i], snaps[i])
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"bookings": responses})
}

// GetBookingHandler returns one booking with its ledger snapshot.
func (h *BookingHandlers) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveUser(w, r, "get_booking"); !ok {
		return
	}
	bookingID, ok := parsePathUUID(w, r, "bookingID")
	if !ok {
		return
	}

	booking, snap, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"booking": buildBookingResponse(booking, snap)})
}

// TopUpHandler adds purchased hours to a booking.
func (h *BookingHandlers) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.resolveUser(w, r, "top_up")
	if !ok {
		return
	}
	bookingID, ok := parsePathUUID(w, r, "bookingID")
	if !ok {
		return
	}

	var req domain.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=top_up outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	log.Printf("level=info component=api endpoint=top_up outcome=accepted parent_id=%s booking_id=%s added_hours=%.1f", parentID, bookingID, req.AddedHours)

	booking, payment, err := h.service.TopUp(r.Context(), bookingID, req.AddedHours)
	if err != nil {
		log.Printf("level=warn component=api endpoint=top_up outcome=failed booking_id=%s err=%v", bookingID, err)
		h.writeBusinessError(w, err)
		return
	}

	snap := ledger.Compute(booking)
	h.writeOK(w, http.StatusCreated, map[string]interface{}{
		"booking": buildBookingResponse(booking, snap),
		"payment": payment,
	})
}

// CreateScheduleHandler adds one session to a booking.
func (h *BookingHandlers) CreateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	parentID, ok := h.resolveUser(w, r, "create_schedule")
	if !ok {
		return
	}
	bookingID, ok := parsePathUUID(w, r, "bookingID")
	if !ok {
		return
	}

	var req domain.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_schedule outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	log.Printf("level=info component=api endpoint=create_schedule outcome=accepted parent_id=%s booking_id=%s", parentID, bookingID)

	schedule, err := h.service.CreateSchedule(r.Context(), bookingID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_schedule outcome=failed booking_id=%s err=%v", bookingID, err)
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusCreated, map[string]interface{}{"schedule": schedule})
}

// AttachPaymentReferenceHandler links a payment to the provider's checkout
// reference. Called by the checkout flow once the provider session exists.
func (h *BookingHandlers) AttachPaymentReferenceHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveUser(w, r, "attach_payment_reference"); !ok {
		return
	}
	paymentID, ok := parsePathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	var req struct {
		ProviderReference string `json:"provider_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ProviderReference == "" {
		http.Error(w, "provider_reference is required", http.StatusBadRequest)
		return
	}

	if err := h.service.AttachPaymentReference(r.Context(), paymentID, req.ProviderReference); err != nil {
		log.Printf("level=warn component=api endpoint=attach_payment_reference outcome=failed payment_id=%s err=%v", paymentID, err)
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"updated": true})
}

// OfferHandler proposes a schedule to a trainer. Admin only.
func (h *BookingHandlers) OfferHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.resolveUser(w, r, "offer")
	if !ok {
		return
	}
	scheduleID, ok := parsePathUUID(w, r, "scheduleID")
	if !ok {
		return
	}

	var req domain.OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=offer outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.TrainerID == uuid.Nil {
		http.Error(w, "trainer_id is required", http.StatusBadRequest)
		return
	}

	log.Printf("level=info component=api endpoint=offer outcome=accepted admin_id=%s schedule_id=%s trainer_id=%s", adminID, scheduleID, req.TrainerID)

	schedule, err := h.service.Offer(r.Context(), scheduleID, req.TrainerID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=offer outcome=failed schedule_id=%s err=%v", scheduleID, err)
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"schedule": schedule})
}

// ConfirmHandler records the authenticated trainer's acceptance of a pending offer.
func (h *BookingHandlers) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := h.resolveUser(w, r, "confirm")
	if !ok {
		return
	}
	scheduleID, ok := parsePathUUID(w, r, "scheduleID")
	if !ok {
		return
	}

	schedule, err := h.service.Confirm(r.Context(), scheduleID, trainerID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=confirm outcome=failed schedule_id=%s trainer_id=%s err=%v", scheduleID, trainerID, err)
		h.writeBusinessError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=confirm outcome=confirmed schedule_id=%s trainer_id=%s", scheduleID, trainerID)
	h.writeOK(w, http.StatusOK, map[string]interface{}{"schedule": schedule})
}

// DeclineHandler releases a pending offer held by the authenticated trainer.
func (h *BookingHandlers) DeclineHandler(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := h.resolveUser(w, r, "decline")
	if !ok {
		return
	}
	scheduleID, ok := parsePathUUID(w, r, "scheduleID")
	if !ok {
		return
	}

	var req domain.DeclineRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("level=warn component=api endpoint=decline outcome=reject reason=invalid_json err=%v", err)
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	schedule, err := h.service.Decline(r.Context(), scheduleID, trainerID, req.Reason)
	if err != nil {
		log.Printf("level=warn component=api endpoint=decline outcome=failed schedule_id=%s trainer_id=%s err=%v", scheduleID, trainerID, err)
		h.writeBusinessError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=decline outcome=declined schedule_id=%s trainer_id=%s", scheduleID, trainerID)
	h.writeOK(w, http.StatusOK, map[string]interface{}{"schedule": schedule})
}

// TrainerSchedulesHandler lists the authenticated trainer's offered and confirmed sessions.
func (h *BookingHandlers) TrainerSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := h.resolveUser(w, r, "trainer_schedules")
	if !ok {
		return
	}

	schedules, err := h.service.TrainerSchedules(r.Context(), trainerID)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"schedules": schedules})
}

// ListNotificationsHandler returns the authenticated user's inbox.
func (h *BookingHandlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r, "list_notifications")
	if !ok {
		return
	}

	opts := domain.NotificationListOptions{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 200 {
			opts.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			opts.Offset = offset
		}
	}
	opts.Status = r.URL.Query().Get("status")

	notifications, err := h.service.ListNotifications(r.Context(), userID, opts)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

// MarkNotificationReadHandler marks one inbox item read.
func (h *BookingHandlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r, "mark_notification_read")
	if !ok {
		return
	}
	notificationID, ok := parsePathUUID(w, r, "notificationID")
	if !ok {
		return
	}

	updated, err := h.service.MarkNotificationRead(r.Context(), userID, notificationID)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	if !updated {
		h.writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	h.writeOK(w, http.StatusOK, map[string]interface{}{"updated": true})
}

// writeBusinessError translates service and store errors into HTTP responses
// carrying the stable error code the dashboards branch on.
func (h *BookingHandlers) writeBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientHours):
		h.writeCodedError(w, http.StatusUnprocessableEntity, "InsufficientHours", err.Error())
	case errors.Is(err, ledger.ErrOverlap):
		h.writeCodedError(w, http.StatusConflict, "Overlap", err.Error())
	case errors.Is(err, ledger.ErrPaymentNotConfirmed):
		h.writeCodedError(w, http.StatusUnprocessableEntity, "PaymentNotConfirmed", err.Error())
	case errors.Is(err, ledger.ErrInvalidDuration), errors.Is(err, ledger.ErrInvalidGranularity):
		h.writeCodedError(w, http.StatusBadRequest, "InvalidDuration", err.Error())
	case errors.Is(err, store.ErrAlreadyAssigned):
		h.writeCodedError(w, http.StatusConflict, "AlreadyAssigned", err.Error())
	case errors.Is(err, store.ErrNotPending):
		h.writeCodedError(w, http.StatusConflict, "NotPending", err.Error())
	case errors.Is(err, store.ErrWrongTrainer):
		h.writeCodedError(w, http.StatusConflict, "WrongTrainer", err.Error())
	case errors.Is(err, store.ErrScheduleNotEligible):
		h.writeCodedError(w, http.StatusConflict, "ScheduleNotEligible", err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeCodedError(w, http.StatusTooManyRequests, "RateLimited", err.Error())
	case errors.Is(err, store.ErrBookingNotFound),
		errors.Is(err, store.ErrScheduleNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.writeCodedError(w, http.StatusGatewayTimeout, "Timeout", "The operation timed out; retry safely")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *BookingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeOK wraps a success payload in the response envelope: `ok` is true and
// the payload's keys sit alongside it.
func (h *BookingHandlers) writeOK(w http.ResponseWriter, status int, payload map[string]interface{}) {
	body := map[string]interface{}{"ok": true}
	for k, v := range payload {
		body[k] = v
	}
	h.writeJSON(w, status, body)
}

// writeError is a helper for writing JSON error responses.
func (h *BookingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

func (h *BookingHandlers) writeCodedError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{"ok": false, "error": message, "error_code": code})
}
