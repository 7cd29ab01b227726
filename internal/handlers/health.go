package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/services"
	"github.com/ZM-BAD/dag-chat/internal/store"
	"github.com/ZM-BAD/dag-chat/internal/workers"
)

type HealthHandler struct {
	config      *config.Config
	db          *store.PostgresDB
	presence    services.StreamPresence
	poolManager *workers.PoolManager
}

func NewHealthHandler(cfg *config.Config, db *store.PostgresDB, presence services.StreamPresence, poolManager *workers.PoolManager) *HealthHandler {
	return &HealthHandler{config: cfg, db: db, presence: presence, poolManager: poolManager}
}

func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	activeStreams, err := h.presence.ActiveCount(ctx)
	if err != nil {
		activeStreams = -1
	}

	return c.JSON(fiber.Map{
		"status":         "ok",
		"timestamp":      time.Now(),
		"environment":    h.config.Server.Environment,
		"conversation_store": dbStatus,
		"active_streams": activeStreams,
		"worker_stats":   h.poolManager.GetStats(),
	})
}
