package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ZM-BAD/dag-chat/internal/models"
)

// OpenAIConfig configures one OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIAdapter streams chat completions from an OpenAI-compatible API,
// grounded on GhiaC-Agentize/engine/llm.go's LLMHandler, generalized from
// its non-streaming CreateChatCompletion to CreateChatCompletionStream to
// satisfy the spec's stream_chat contract.
type OpenAIAdapter struct {
	client *openai.Client
}

func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(oaCfg)}
}

func (a *OpenAIAdapter) StreamChat(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Stream:      true,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan models.ChatEvent, 16)

	go func() {
		defer close(events)
		defer stream.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				events <- models.ChatEvent{Type: models.ChatEventDone}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return // client canceled: no terminal error event (spec §4.6 step 6)
				}
				slog.Error("openai adapter stream error", "model", model, "error", err)
				events <- models.ChatEvent{Type: models.ChatEventError, Message: err.Error()}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case events <- models.ChatEvent{Type: models.ChatEventContent, Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
