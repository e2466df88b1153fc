package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/keepsakehq/keepsake/internal/service"
	"github.com/keepsakehq/keepsake/internal/store"
)

// errorHandler maps the operation layer's error taxonomy to HTTP statuses.
// TenantMismatchError matches ErrNotFound, so cross-tenant attempts get the
// same 404 as genuinely absent records.
func errorHandler(c fiber.Ctx, err error) error {
	var (
		verr *service.ValidationError
		aerr *service.AuthorizationError
		eerr *service.ExternalServiceError
		ferr *fiber.Error
	)

	switch {
	case errors.As(err, &verr):
		return respondError(c, fiber.StatusBadRequest, verr.Error())

	case errors.As(err, &aerr):
		return respondError(c, fiber.StatusForbidden, aerr.Error())

	case errors.Is(err, service.ErrNotFound):
		return respondError(c, fiber.StatusNotFound, "not found")

	case errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, store.ErrTransitionConflict):
		return respondError(c, fiber.StatusConflict, err.Error())

	case errors.As(err, &eerr):
		status := fiber.StatusBadGateway
		if eerr.Retryable {
			status = fiber.StatusServiceUnavailable
		}
		return respondError(c, status, "upstream service failure")

	case errors.As(err, &ferr):
		return respondError(c, ferr.Code, ferr.Message)

	default:
		return respondError(c, fiber.StatusInternalServerError, "internal error")
	}
}

func respondError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}
