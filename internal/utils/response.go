package utils

import (
	"errors"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/gofiber/fiber/v2"
)

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": payload})
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": msg})
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMessagePayload):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// JSONFromError writes err with the status StatusFor picks for it. Only
// invalid payload errors are echoed; anything else gets a fixed message.
func JSONFromError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	switch status {
	case fiber.StatusBadRequest:
		return JSONError(c, status, err.Error())
	case fiber.StatusServiceUnavailable:
		return JSONError(c, status, "message store unavailable")
	default:
		return JSONError(c, status, "internal server error")
	}
}
