package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TableFox/internal/pkg/refund"
	"github.com/ManuelReschke/TableFox/internal/pkg/usercontext"
)

// GetBookingConsistency reports drift between a booking and its payment
// without changing anything.
func (s *APIServer) GetBookingConsistency(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := s.deps.Reconciler.Check(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(report)
}

// PostBookingReconcile repairs drift using the provider's view.
func (s *APIServer) PostBookingReconcile(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := s.deps.Reconciler.Repair(ctx, id, usercontext.Actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (s *APIServer) PostBookingStatus(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}
	var req StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	b, err := s.deps.Status.Transition(ctx, id, req.Status, usercontext.Actor(c), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

func (s *APIServer) PostPaymentRefund(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}
	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := s.deps.Refunds.Refund(ctx, refund.Request{
		PaymentID:     id,
		AmountCents:   req.AmountCents,
		Reason:        req.Reason,
		CancelBooking: req.CancelBooking,
		Actor:         usercontext.Actor(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// GetVenueOccupancy is the floor view for ?date=YYYY-MM-DD.
func (s *APIServer) GetVenueOccupancy(c *fiber.Ctx) error {
	venueID, ok := idParam(c, "venueId")
	if !ok {
		return badRequest(c, "venueId must be a positive integer")
	}
	date := c.Query("date")
	ctx, cancel := requestContext(c)
	defer cancel()

	tables, err := s.deps.Pipeline.Occupancy(ctx, venueID, date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(OccupancyResponse{VenueID: venueID, Date: date, Tables: tables})
}

// PostRetryQueueDrain runs one pass over due webhook retries now.
func (s *APIServer) PostRetryQueueDrain(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := s.deps.Reconciler.DrainRetryQueue(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}
