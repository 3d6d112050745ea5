package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TableFox/internal/pkg/booking"
)

// GetAvailability runs the optimizer for a prospective booking.
func (s *APIServer) GetAvailability(c *fiber.Ctx) error {
	venueID, ok := idParam(c, "venueId")
	if !ok {
		return badRequest(c, "venueId must be a positive integer")
	}
	var q booking.AvailabilityQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "invalid query parameters")
	}
	q.VenueID = venueID

	ctx, cancel := requestContext(c)
	defer cancel()
	av, err := s.deps.Pipeline.Availability(ctx, q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(av)
}

// PostBooking submits a booking. 201 means confirmed; 202 means the booking
// waits for payment and the body carries the client secret.
func (s *APIServer) PostBooking(c *fiber.Ctx) error {
	var req booking.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := s.deps.Pipeline.Submit(ctx, req)
	if err != nil {
		return writeError(c, err)
	}

	body := BookingResponse{
		Booking:         res.Booking,
		Allocation:      res.Allocation,
		PaymentRequired: res.PaymentRequired,
	}
	if !res.PaymentRequired {
		return c.Status(fiber.StatusCreated).JSON(body)
	}
	body.Payment = &PaymentInstructions{
		IntentID:     res.IntentID,
		ClientSecret: res.ClientSecret,
		AmountCents:  res.AmountCents,
		Currency:     res.Currency,
	}
	return c.Status(fiber.StatusAccepted).JSON(body)
}
