package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/service"
	"github.com/ZM-BAD/dag-chat/internal/validation"
)

// ConversationHandler is thin Fiber glue over the Conversation Service
// (C7), adapted from Danor93-Articles-Chat/internal/handlers/
// conversations.go to query-param routing (spec §6's route table) and the
// always-200 envelope (spec §13).
type ConversationHandler struct {
	svc *service.ConversationService
}

func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// HandleCreateConversation handles POST /api/v1/create-conversation.
func (h *ConversationHandler) HandleCreateConversation(c *fiber.Ctx) error {
	var req struct {
		UserID  string `json:"user_id"`
		Model   string `json:"model"`
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, err)
	}

	req.UserID = validation.SanitizeString(req.UserID)
	req.Message = validation.SanitizeString(req.Message)

	if err := validation.ValidateCreateConversationRequest(req.UserID, req.Model, req.Message); err != nil {
		return fail(c, err)
	}

	resp, err := h.svc.Create(c.Context(), req.UserID, req.Model, req.Message)
	if err != nil {
		return fail(c, err)
	}

	slog.Info("conversation created", "conversation_id", resp.ConversationID, "user_id", req.UserID)
	return ok(c, resp)
}

// HandleListConversations handles GET /api/v1/dialogue/list.
func (h *ConversationHandler) HandleListConversations(c *fiber.Ctx) error {
	userID := validation.SanitizeString(c.Query("user_id"))
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	if userID == "" {
		return fail(c, errors.New(errors.ErrInvalidRequest, "user_id is required"))
	}
	if err := validation.ValidatePagination(page, pageSize); err != nil {
		return fail(c, err)
	}

	pageResult, err := h.svc.List(c.Context(), userID, page, pageSize)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, pageResult)
}

// HandleHistory handles GET /api/v1/dialogue/history.
func (h *ConversationHandler) HandleHistory(c *fiber.Ctx) error {
	conversationID := validation.SanitizeString(c.Query("dialogue_id"))
	if conversationID == "" {
		return fail(c, errors.New(errors.ErrInvalidRequest, "dialogue_id is required"))
	}

	messages, err := h.svc.History(c.Context(), conversationID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, messages)
}

// HandleRename handles PUT /api/v1/dialogue/rename.
func (h *ConversationHandler) HandleRename(c *fiber.Ctx) error {
	var req struct {
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
		NewTitle       string `json:"new_title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, err)
	}

	req.NewTitle = validation.SanitizeString(req.NewTitle)

	if err := validation.ValidateRename(req.ConversationID, req.UserID, req.NewTitle); err != nil {
		return fail(c, err)
	}

	conv, err := h.svc.Rename(c.Context(), req.ConversationID, req.UserID, req.NewTitle)
	if err != nil {
		return fail(c, err)
	}

	slog.Info("conversation renamed", "conversation_id", req.ConversationID, "user_id", req.UserID)
	return ok(c, conv)
}

// HandleDelete handles DELETE /api/v1/dialogue/delete.
func (h *ConversationHandler) HandleDelete(c *fiber.Ctx) error {
	conversationID := validation.SanitizeString(c.Query("conversation_id"))
	userID := validation.SanitizeString(c.Query("user_id"))

	if conversationID == "" || userID == "" {
		return fail(c, errors.New(errors.ErrInvalidRequest, "conversation_id and user_id are required"))
	}

	if err := h.svc.Delete(c.Context(), conversationID, userID); err != nil {
		return fail(c, err)
	}

	slog.Info("conversation deleted", "conversation_id", conversationID, "user_id", userID)
	return ok(c, nil)
}
