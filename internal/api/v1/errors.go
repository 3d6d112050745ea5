package apiv1

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindConflict:     fiber.StatusConflict,
	apperr.KindNotFound:     fiber.StatusNotFound,
	apperr.KindValidation:   fiber.StatusUnprocessableEntity,
	apperr.KindUpstream:     fiber.StatusBadGateway,
	apperr.KindInconsistent: fiber.StatusInternalServerError,
}

// writeError maps a service error to a JSON response. Upstream and
// inconsistent errors keep their detail in the log only.
func writeError(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal_server_error"})
	}

	status, ok := statusByKind[ae.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	code := ae.Code
	if code == "" {
		code = string(ae.Kind)
	}

	body := ErrorResponse{Error: code}
	switch ae.Kind {
	case apperr.KindUpstream, apperr.KindInconsistent:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	default:
		body.Message = ae.Message
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "bad_request", Message: message})
}

// idParam reads a positive numeric path parameter.
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
