package apiv1

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TableFox/internal/pkg/booking"
	"github.com/ManuelReschke/TableFox/internal/pkg/reconcile"
	"github.com/ManuelReschke/TableFox/internal/pkg/refund"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

// requestTimeout bounds the work a single request may do against the store
// and the payment provider.
const requestTimeout = 15 * time.Second

// Dependencies are the services the handlers delegate to.
type Dependencies struct {
	Locks         *slotlock.Manager
	LockRetry     slotlock.RetryPolicy
	Pipeline      *booking.Pipeline
	Status        *booking.StatusService
	Reconciler    *reconcile.Service
	Refunds       *refund.Processor
	WebhookSecret string
}

// APIServer implements the v1 HTTP handlers
type APIServer struct {
	deps Dependencies
}

// NewAPIServer creates a new API server instance
func NewAPIServer(deps Dependencies) *APIServer {
	return &APIServer{deps: deps}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}
