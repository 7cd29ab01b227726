package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/adapter"
)

// ModelsHandler is thin Fiber glue over the Model Adapter registry (C5),
// exposing its read-only catalogue at GET /api/v1/models (spec §4.5).
type ModelsHandler struct {
	registry *adapter.Registry
}

func NewModelsHandler(registry *adapter.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

// HandleListModels returns the model list unwrapped — the one endpoint in
// the HTTP surface that does not go through the {code, message, data}
// envelope (spec §6's surface table).
func (h *ModelsHandler) HandleListModels(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"models": h.registry.ListModels()})
}
