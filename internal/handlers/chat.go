// Package handlers' chat.go is the thin Fiber glue in front of the Chat
// Orchestrator (C6): parse, sanitize, validate, then hand off to
// orchestrator.Stream and the SSE Transport (C8).
//
// Grounded on Danor93-Articles-Chat/internal/handlers/chat.go's
// HandleChat/handleStreamingChat split, generalized from the RAG
// client's single response channel to the orchestrator's typed SSE
// frame channel, and from a 2-minute hardcoded deadline to the
// configured CHAT_TOTAL_TIMEOUT_SEC (spec §6).
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
	"github.com/ZM-BAD/dag-chat/internal/orchestrator"
	"github.com/ZM-BAD/dag-chat/internal/services"
	"github.com/ZM-BAD/dag-chat/internal/sse"
	"github.com/ZM-BAD/dag-chat/internal/validation"
)

type ChatHandler struct {
	orch     *orchestrator.Orchestrator
	presence services.StreamPresence
	cfg      config.ChatConfig
}

func NewChatHandler(orch *orchestrator.Orchestrator, presence services.StreamPresence, cfg config.ChatConfig) *ChatHandler {
	return &ChatHandler{orch: orch, presence: presence, cfg: cfg}
}

// HandleChat handles POST /api/v1/chat (spec §4.6).
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errors.NewWithDetails(errors.ErrInvalidRequest, "failed to parse request body", map[string]string{"parse_error": err.Error()}))
	}

	req.Message = validation.SanitizeString(req.Message)
	req.ConversationID = validation.SanitizeString(req.ConversationID)
	req.UserID = validation.SanitizeString(req.UserID)

	if err := validation.ValidateChatRequest(req.ConversationID, req.UserID, req.Model, req.Message, req.ParentIDs); err != nil {
		return fail(c, err)
	}

	total := time.Duration(h.cfg.TotalTimeoutSec) * time.Second
	if total <= 0 {
		total = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Context(), total)

	events, err := h.orch.Stream(ctx, req)
	if err != nil {
		cancel()
		return fail(c, err)
	}

	streamID := uuid.New().String()
	return sse.Stream(c, ctx, cancel, events, h.presence, streamID)
}
