package apiv1

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// PostLock holds a slot for the checkout session.
func (s *APIServer) PostLock(c *fiber.Ctx) error {
	var req slotlock.AcquireRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	lease, err := s.deps.Locks.AcquireWithRetry(ctx, req, s.deps.LockRetry)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s.lockResponse(lease))
}

// PostLockExtend is the client heartbeat.
func (s *APIServer) PostLockExtend(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	lease, err := s.deps.Locks.Extend(ctx, c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s.lockResponse(lease))
}

// ReleaseLock serves both DELETE and the POST form sent by page-unload
// beacons. Unknown tokens are fine.
func (s *APIServer) ReleaseLock(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.deps.Locks.Release(ctx, c.Params("token"), slotlock.ReasonClient); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "lock_store_unavailable"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *APIServer) lockResponse(lease *slotlock.Lease) LockResponse {
	return LockResponse{
		Token:            lease.Token,
		ExpiresAt:        lease.ExpiresAt,
		HeartbeatSeconds: int(lease.HeartbeatInterval.Seconds()),
	}
}
