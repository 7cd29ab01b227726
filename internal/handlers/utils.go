package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// ok wraps a successful result in the always-200 envelope (spec §6).
func ok(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(models.Envelope{Code: 0, Message: "ok", Data: data})
}

// fail wraps a business error in the always-200 envelope. Non-AppErrors
// are wrapped as ErrInternalServer first.
func fail(c *fiber.Ctx, err error) error {
	appErr := errors.Wrap(err, errors.ErrInternalServer)
	return c.Status(fiber.StatusOK).JSON(models.Envelope{Code: appErr.EnvelopeCode(), Message: appErr.Message})
}
