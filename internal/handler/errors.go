package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// statusFor maps port sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInvalidSession),
		errors.Is(err, port.ErrNoChunks),
		errors.Is(err, port.ErrUnembeddedChunk),
		errors.Is(err, port.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrInitialization),
		errors.Is(err, port.ErrEmbedding):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body with its mapped status.
func respondError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
