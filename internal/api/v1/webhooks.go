package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
)

// PostStripeWebhook verifies and applies a provider event. Any 2xx tells the
// provider to stop redelivering, so only failures to record or queue the
// event answer with an error status.
func (s *APIServer) PostStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ev, err := payment.ParseWebhook(rawBody, signature, s.deps.WebhookSecret)
	if err != nil {
		log.Warnf("[Webhook] Rejected stripe webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_signature"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := s.deps.Reconciler.HandleEvent(ctx, ev, true); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
