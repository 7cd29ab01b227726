package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

func echoAdapter() ProviderFunc {
	return func(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error) {
		events := make(chan models.ChatEvent, 2)
		events <- models.ChatEvent{Type: models.ChatEventContent, Text: prompt}
		events <- models.ChatEvent{Type: models.ChatEventDone}
		close(events)
		return events, nil
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has("gpt-test"))

	r.Register("gpt-test", "GPT Test", []string{"content"}, echoAdapter())
	assert.True(t, r.Has("gpt-test"))

	a, err := r.Get("gpt-test")
	require.NoError(t, err)
	require.NotNil(t, a)

	events, err := a.StreamChat(context.Background(), "gpt-test", nil, "hi", models.AdapterOptions{})
	require.NoError(t, err)

	var texts []string
	for ev := range events {
		if ev.Type == models.ChatEventContent {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"hi"}, texts)
}

func TestRegistry_GetUnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("does-not-exist")
	require.Error(t, err)

	appErr, ok := errors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrUnknownModel, appErr.Code)
}

func TestRegistry_ListModels(t *testing.T) {
	r := NewRegistry()
	r.Register("model-a", "Model A", []string{"content"}, echoAdapter())
	r.Register("model-b", "Model B", []string{"content", "reasoning"}, echoAdapter())

	list := r.ListModels()
	assert.Len(t, list, 2)

	byName := make(map[string]models.ModelInfo, len(list))
	for _, m := range list {
		byName[m.Name] = m
	}
	assert.Equal(t, "Model A", byName["model-a"].DisplayName)
	assert.ElementsMatch(t, []string{"content", "reasoning"}, byName["model-b"].Capabilities)
}
