package validation

import (
	"regexp"
	"strings"

	"github.com/ZM-BAD/dag-chat/internal/errors"
)

const maxMessageLength = 4000
const maxTitleLength = 64

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateChatRequest enforces §4.6's request-shape requirements before
// the orchestrator is invoked.
func ValidateChatRequest(conversationID, userID, model, message string, parentIDs []string) error {
	if conversationID == "" || !isValidID(conversationID) {
		return errors.New(errors.ErrInvalidRequest, "conversation_id is required and must be a valid ID")
	}
	if userID == "" {
		return errors.New(errors.ErrInvalidRequest, "user_id is required")
	}
	if model == "" {
		return errors.New(errors.ErrInvalidRequest, "model is required")
	}
	if message == "" {
		return errors.New(errors.ErrInvalidRequest, "message is required")
	}
	if len(message) > maxMessageLength {
		return errors.NewWithDetails(
			errors.ErrInvalidRequest,
			"message exceeds maximum length",
			map[string]interface{}{"max_length": maxMessageLength, "actual": len(message)},
		)
	}
	for _, pid := range parentIDs {
		if !isValidID(pid) {
			return errors.New(errors.ErrInvalidRequest, "parent_ids contains an invalid ID")
		}
	}
	return nil
}

// ValidateCreateConversationRequest validates POST /create-conversation.
func ValidateCreateConversationRequest(userID, model, message string) error {
	if userID == "" {
		return errors.New(errors.ErrInvalidRequest, "user_id is required")
	}
	if model == "" {
		return errors.New(errors.ErrInvalidRequest, "model is required")
	}
	if message == "" {
		return errors.New(errors.ErrInvalidRequest, "message is required")
	}
	if len(message) > maxMessageLength {
		return errors.New(errors.ErrInvalidRequest, "message exceeds maximum length")
	}
	return nil
}

// ValidateRename validates PUT /dialogue/rename.
func ValidateRename(conversationID, userID, newTitle string) error {
	if conversationID == "" || !isValidID(conversationID) {
		return errors.New(errors.ErrInvalidRequest, "conversation_id is required and must be a valid ID")
	}
	if userID == "" {
		return errors.New(errors.ErrInvalidRequest, "user_id is required")
	}
	if newTitle == "" {
		return errors.New(errors.ErrInvalidRequest, "new_title is required")
	}
	if len([]rune(newTitle)) > maxTitleLength {
		return errors.NewWithDetails(
			errors.ErrInvalidRequest,
			"new_title exceeds maximum length",
			map[string]interface{}{"max_length": maxTitleLength},
		)
	}
	return nil
}

// ValidatePagination bounds page/page_size for GET /dialogue/list.
func ValidatePagination(page, pageSize int) error {
	if page < 1 {
		return errors.New(errors.ErrInvalidRequest, "page must be >= 1")
	}
	if pageSize < 1 || pageSize > 100 {
		return errors.New(errors.ErrInvalidRequest, "page_size must be between 1 and 100")
	}
	return nil
}

func isValidID(id string) bool {
	return id != "" && idPattern.MatchString(id)
}

// SanitizeString strips control characters and surrounding whitespace
// from untrusted input before validation.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, input)
}
