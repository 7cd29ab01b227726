package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZM-BAD/dag-chat/internal/errors"
)

func TestValidateChatRequest(t *testing.T) {
	cases := []struct {
		name      string
		convID    string
		userID    string
		model     string
		message   string
		parentIDs []string
		wantErr   bool
	}{
		{"valid", "conv-1", "user-1", "gpt-4o-mini", "hello", nil, false},
		{"missing conversation id", "", "user-1", "gpt-4o-mini", "hello", nil, true},
		{"invalid conversation id", "conv 1", "user-1", "gpt-4o-mini", "hello", nil, true},
		{"missing user id", "conv-1", "", "gpt-4o-mini", "hello", nil, true},
		{"missing model", "conv-1", "user-1", "", "hello", nil, true},
		{"missing message", "conv-1", "user-1", "gpt-4o-mini", "", nil, true},
		{"message too long", "conv-1", "user-1", "gpt-4o-mini", strings.Repeat("x", maxMessageLength+1), nil, true},
		{"invalid parent id", "conv-1", "user-1", "gpt-4o-mini", "hello", []string{"bad id"}, true},
		{"valid parent id", "conv-1", "user-1", "gpt-4o-mini", "hello", []string{"parent-1"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateChatRequest(tc.convID, tc.userID, tc.model, tc.message, tc.parentIDs)
			if tc.wantErr {
				assert.Error(t, err)
				appErr, ok := errors.IsAppError(err)
				assert.True(t, ok)
				assert.Equal(t, errors.ErrInvalidRequest, appErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRename_TitleTooLong(t *testing.T) {
	err := ValidateRename("conv-1", "user-1", strings.Repeat("x", maxTitleLength+1))
	assert.Error(t, err)
}

func TestValidatePagination(t *testing.T) {
	assert.NoError(t, ValidatePagination(1, 20))
	assert.Error(t, ValidatePagination(0, 20))
	assert.Error(t, ValidatePagination(1, 0))
	assert.Error(t, ValidatePagination(1, 101))
}

func TestSanitizeString_StripsControlCharsTrimsOuterWhitespace(t *testing.T) {
	out := SanitizeString("  hello\x00world\n\t  ")
	assert.NotContains(t, out, "\x00")
	assert.Equal(t, "helloworld", out)
}
