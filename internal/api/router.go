/**
 * @description
 * This file sets up the HTTP router for the booking-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/littlesteps/booking-service/internal/domain"
)

// BookingRoutes creates and returns a new router for the booking service.
func BookingRoutes(h *BookingHandlers, webhook *PaymentWebhookHandler, sync *SyncHandler, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging and panic recovery.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The request/response endpoints share a timeout; the event stream below
	// is long-lived and stays outside it.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Health check endpoint
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("healthy"))
		})

		// Provider-facing webhook; authenticated by HMAC signature, not JWT.
		r.Post("/webhooks/payment", webhook.ServeHTTP)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwksURL))

			r.Get("/me", h.MeHandler)

			// Parent-facing booking endpoints.
			r.Post("/bookings", h.CreateBookingHandler)
			r.Get("/bookings", h.ListBookingsHandler)
			r.Get("/bookings/{bookingID}", h.GetBookingHandler)
			r.Post("/bookings/{bookingID}/top-up", h.TopUpHandler)
			r.Post("/bookings/{bookingID}/schedules", h.CreateScheduleHandler)
			r.Post("/payments/{paymentID}/provider-reference", h.AttachPaymentReferenceHandler)

			// Trainer assignment state machine.
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(domain.RoleAdmin))
				r.Post("/schedules/{scheduleID}/offer", h.OfferHandler)
			})
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(domain.RoleTrainer))
				r.Post("/schedules/{scheduleID}/confirm", h.ConfirmHandler)
				r.Post("/schedules/{scheduleID}/decline", h.DeclineHandler)
				r.Get("/trainer/schedules", h.TrainerSchedulesHandler)
			})

			// Notification inbox.
			r.Get("/notifications", h.ListNotificationsHandler)
			r.Post("/notifications/{notificationID}/read", h.MarkNotificationReadHandler)
		})
	})

	// Live dashboard event stream.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))
		r.Get("/sync/stream", sync.StreamHandler)
	})

	return r
}
