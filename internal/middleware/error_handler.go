package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// ErrorHandler is the centralized Fiber error handler. A business-logic
// AppError always resolves to HTTP 200 with its code embedded in the
// envelope (spec §6) — handlers normally write that envelope themselves,
// so reaching this path means a handler returned the error instead.
// Anything else here is a genuine transport-level failure (route not
// found, malformed body before a handler ran) and keeps its real HTTP
// status, per §13's resolution of the envelope-vs-status tension.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			if id, ok := c.Locals("requestID").(string); ok {
				requestID = id
			}
		}

		slog.Error("request failed",
			"error", err,
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID,
		)

		if appErr, ok := errors.IsAppError(err); ok {
			return c.Status(fiber.StatusOK).JSON(models.Envelope{
				Code:    appErr.EnvelopeCode(),
				Message: appErr.Message,
			})
		}

		if fiberErr, ok := err.(*fiber.Error); ok {
			return c.Status(fiberErr.Code).JSON(models.ErrorResponse{
				Error:     "TRANSPORT_ERROR",
				Message:   fiberErr.Message,
				Code:      fiberErr.Code,
				Timestamp: time.Now(),
				RequestID: requestID,
			})
		}

		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:     string(errors.ErrInternalServer),
			Message:   "an unexpected error occurred",
			Code:      fiber.StatusInternalServerError,
			Timestamp: time.Now(),
			RequestID: requestID,
		})
	}
}
