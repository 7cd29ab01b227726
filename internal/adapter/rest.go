package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ZM-BAD/dag-chat/internal/models"
)

// RESTConfig configures a generic SSE-speaking vendor endpoint.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// restChatRequest is the outbound payload to the vendor's streaming
// endpoint.
type restChatRequest struct {
	Model         string                  `json:"model"`
	History       []models.HistoryMessage `json:"history"`
	Prompt        string                  `json:"prompt"`
	Stream        bool                    `json:"stream"`
	DeepThinking  bool                    `json:"deep_thinking"`
	SearchEnabled bool                    `json:"search_enabled"`
	Temperature   float32                 `json:"temperature,omitempty"`
	MaxTokens     int                     `json:"max_tokens,omitempty"`
}

// restStreamFrame is one parsed `data: {...}` line from the vendor.
type restStreamFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// RESTAdapter streams chat completions from any vendor speaking
// "data: <json>\n\n" frames over a raw HTTP POST — the shape of any
// OpenAI-incompatible provider not covered by OpenAIAdapter. Grounded on
// Danor93-Articles-Chat/internal/services/rag_client.go's
// ProcessChatStream, generalized from one hardcoded RAG endpoint into a
// per-model adapter (base URL + key come from configuration, not a
// single fixed service).
type RESTAdapter struct {
	httpClient *http.Client
	cfg        RESTConfig
}

func NewRESTAdapter(cfg RESTConfig) *RESTAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &RESTAdapter{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

func (a *RESTAdapter) StreamChat(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error) {
	body, err := json.Marshal(restChatRequest{
		Model:         model,
		History:       history,
		Prompt:        prompt,
		Stream:        true,
		DeepThinking:  opts.DeepThinking,
		SearchEnabled: opts.SearchEnabled,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rest adapter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rest adapter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest adapter request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rest adapter returned status %d: %s", resp.StatusCode, string(respBody))
	}

	events := make(chan models.ChatEvent, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					events <- models.ChatEvent{Type: models.ChatEventDone}
				} else if ctx.Err() == nil {
					slog.Error("rest adapter stream read failed", "model", model, "error", err)
					events <- models.ChatEvent{Type: models.ChatEventError, Message: err.Error()}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				events <- models.ChatEvent{Type: models.ChatEventDone}
				return
			}

			var frame restStreamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				slog.Error("rest adapter failed to parse frame", "error", err, "data", data)
				continue
			}

			var event models.ChatEvent
			switch frame.Type {
			case "reasoning":
				event = models.ChatEvent{Type: models.ChatEventReasoning, Text: frame.Text}
			case "content":
				event = models.ChatEvent{Type: models.ChatEventContent, Text: frame.Text}
			case "error":
				event = models.ChatEvent{Type: models.ChatEventError, Message: frame.Message}
			case "done":
				event = models.ChatEvent{Type: models.ChatEventDone}
			default:
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			if event.Type == models.ChatEventError || event.Type == models.ChatEventDone {
				return
			}
		}
	}()

	return events, nil
}
