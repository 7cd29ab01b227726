package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestID stamps every request with an ID, reusing one supplied by the
// caller (a client-side stream reconnect after a dropped /chat connection
// carries its original X-Request-ID forward) or minting a fresh one. The ID
// is stored in the request's locals, echoed in the X-Request-ID response
// header, and logged once at debug level with the method and path; log
// lines written by handlers and the orchestrator do not carry it.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")

		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Locals("requestID", requestID)
		c.Set("X-Request-ID", requestID)

		slog.Debug("request received", "request_id", requestID, "method", c.Method(), "path", c.Path())

		return c.Next()
	}
}
