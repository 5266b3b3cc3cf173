package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/xeinst/autopost/internal/service"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var pv *service.PolicyViolationError
	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrUnknownTarget), errors.Is(err, service.ErrBodyTooLong):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &pv):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
