package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Middlewares are attached per audience. Guest handlers run behind the rate
// limiter; staff handlers behind basic auth.
type Middlewares struct {
	Guest []fiber.Handler
	Staff []fiber.Handler
}

// RegisterHandlers mounts the v1 routes on router.
func RegisterHandlers(router fiber.Router, si *APIServer, mw Middlewares) {
	router.Get("/ping", si.GetPing)

	router.Post("/locks", guarded(mw.Guest, si.PostLock)...)
	router.Post("/locks/:token/extend", guarded(mw.Guest, si.PostLockExtend)...)
	router.Delete("/locks/:token", guarded(mw.Guest, si.ReleaseLock)...)
	router.Post("/locks/:token/release", guarded(mw.Guest, si.ReleaseLock)...)
	router.Get("/venues/:venueId/availability", guarded(mw.Guest, si.GetAvailability)...)
	router.Post("/bookings", guarded(mw.Guest, si.PostBooking)...)

	router.Post("/webhooks/stripe", si.PostStripeWebhook)

	staff := router.Group("/staff", mw.Staff...)
	staff.Get("/bookings/:id/consistency", si.GetBookingConsistency)
	staff.Post("/bookings/:id/reconcile", si.PostBookingReconcile)
	staff.Post("/bookings/:id/status", si.PostBookingStatus)
	staff.Post("/payments/:id/refunds", si.PostPaymentRefund)
	staff.Get("/venues/:venueId/occupancy", si.GetVenueOccupancy)
	staff.Post("/retry-queue/drain", si.PostRetryQueueDrain)
}

func guarded(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
