// Package orchestrator implements the Chat Orchestrator (C6) — the
// hardest behavior in the system (spec §4.6): validate the request,
// persist the user node pre-stream, drive a Model Adapter under
// cancellation, forward its events verbatim, and finalize the assistant
// node on completion.
//
// Grounded on Danor93-Articles-Chat/internal/handlers/chat.go's
// HandleChat/handleStreamingChat pipeline (parse → validate → persist →
// stream → persist), generalized from a flat RAG conversation to DAG
// nodes with explicit parent reconciliation and chain-following history.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ZM-BAD/dag-chat/internal/adapter"
	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/dagengine"
	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
	"github.com/ZM-BAD/dag-chat/internal/store"
	"github.com/ZM-BAD/dag-chat/internal/workers"
)

// Orchestrator wires the DAG Engine, Model Adapter registry, and the two
// stores into the single streaming pipeline behind POST /chat.
type Orchestrator struct {
	convStore store.ConversationStore
	msgStore  store.MessageStore
	registry  *adapter.Registry
	pool      *workers.PoolManager
	cfg       config.ChatConfig
}

func New(convStore store.ConversationStore, msgStore store.MessageStore, registry *adapter.Registry, pool *workers.PoolManager, cfg config.ChatConfig) *Orchestrator {
	return &Orchestrator{convStore: convStore, msgStore: msgStore, registry: registry, pool: pool, cfg: cfg}
}

// Stream runs the §4.6 algorithm. Validation (step 1) happens
// synchronously, before any SSE headers commit the response — a reject
// here is a plain error the caller can still turn into a normal
// envelope. Everything from step 2 onward runs in a goroutine feeding
// the returned channel; the channel is closed after its terminal frame
// (models.SSEComplete or models.SSEError), or without one once ctx is done.
func (o *Orchestrator) Stream(ctx context.Context, req models.ChatRequest) (<-chan interface{}, error) {
	if !o.registry.Has(req.Model) {
		return nil, errors.New(errors.ErrUnknownModel, "model not registered: "+req.Model)
	}

	conv, err := o.convStore.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	for _, pid := range req.ParentIDs {
		parent, err := o.msgStore.Get(ctx, pid)
		if err != nil {
			return nil, errors.New(errors.ErrInvalidRequest, "parent message not found: "+pid)
		}
		if parent.ConversationID != req.ConversationID {
			return nil, errors.New(errors.ErrInvalidRequest, "parent message belongs to a different conversation")
		}
	}

	events := make(chan interface{}, 32)
	go o.run(ctx, req, conv, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, req models.ChatRequest, conv *models.Conversation, events chan<- interface{}) {
	defer close(events)

	// Step 2: build history, then append the new tail.
	nodes, err := dagengine.BuildHistory(ctx, o.msgStore, req.ConversationID, req.ParentIDs)
	if err != nil {
		o.emitError(events, err)
		return
	}
	history := dagengine.FormatHistory(nodes)

	// Step 3: persist the user node before any model call, emit its ID
	// immediately so the client can render the question.
	userNode := &models.Message{
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        req.Message,
		ParentIDs:      req.ParentIDs,
	}
	userID, err := o.msgStore.Insert(ctx, userNode)
	if err != nil {
		o.emitError(events, err)
		return
	}
	for _, pid := range req.ParentIDs {
		if err := o.msgStore.AppendChild(ctx, pid, userID); err != nil {
			slog.Error("failed to link user node to parent", "parent_id", pid, "user_node_id", userID, "error", err)
		}
	}

	select {
	case events <- models.SSEUserMessageID{UserMessageID: userID}:
	case <-ctx.Done():
		return
	}

	// Step 4: invoke the adapter, forwarding events verbatim while
	// accumulating reasoning/content for the finalize step.
	ad, err := o.registry.Get(req.Model)
	if err != nil {
		o.emitError(events, err)
		return
	}

	opts := models.AdapterOptions{DeepThinking: req.DeepThinking, SearchEnabled: req.SearchEnabled}
	adapterEvents, err := ad.StreamChat(ctx, req.Model, history, req.Message, opts)
	if err != nil {
		o.emitError(events, err)
		return
	}

	var reasoning, content strings.Builder
	var streamErr error

	// Idle timeout (spec §5): distinct from the overall deadline on ctx —
	// this one resets on every token and fires only when the adapter goes
	// quiet mid-stream.
	idleTimeout := time.Duration(o.cfg.IdleTimeoutSec) * time.Second
	if idleTimeout <= 0 {
		idleTimeout = 365 * 24 * time.Hour
	}
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

streamLoop:
	for {
		select {
		case ev, ok := <-adapterEvents:
			if !ok {
				break streamLoop
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idleTimeout)

			switch ev.Type {
			case models.ChatEventReasoning:
				reasoning.WriteString(ev.Text)
				select {
				case events <- models.SSEReasoning{Reasoning: ev.Text}:
				case <-ctx.Done():
					return
				}
			case models.ChatEventContent:
				content.WriteString(ev.Text)
				select {
				case events <- models.SSEContent{Content: ev.Text}:
				case <-ctx.Done():
					return
				}
			case models.ChatEventError:
				streamErr = errors.New(errors.ErrAdapterError, ev.Message)
				break streamLoop
			case models.ChatEventDone:
				break streamLoop
			}
		case <-idleTimer.C:
			streamErr = errors.New(errors.ErrAdapterError, "model stream idle timeout exceeded")
			break streamLoop
		case <-ctx.Done():
			// Step 6: client disconnected. Discard partial content per
			// the spec's default policy; the user node stays.
			return
		}
	}

	if ctx.Err() != nil {
		// Step 6: the adapter channel may close after a disconnect before
		// ctx.Done() is observed; the partial content is discarded the same way.
		return
	}

	if streamErr != nil {
		// Step 6: adapter error. Discard any buffered content — no
		// assistant node — and surface the error if the connection is
		// still open.
		o.emitError(events, streamErr)
		return
	}

	// Step 5: finalize.
	assistantNode := &models.Message{
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        content.String(),
		Reasoning:      reasoning.String(),
		Model:          req.Model,
		ParentIDs:      []string{userID},
	}
	assistantID, err := o.msgStore.Insert(ctx, assistantNode)
	if err != nil {
		o.emitError(events, err)
		return
	}
	if err := o.msgStore.AppendChild(ctx, userID, assistantID); err != nil {
		slog.Error("failed to link assistant node to user node", "user_node_id", userID, "assistant_node_id", assistantID, "error", err)
	}
	if err := o.convStore.Touch(ctx, req.ConversationID, req.Model); err != nil {
		slog.Error("failed to touch conversation", "conversation_id", req.ConversationID, "error", err)
	}

	select {
	case events <- models.SSEComplete{MessageID: assistantID, Complete: true}:
	case <-ctx.Done():
		return
	}

	if conv.Title == "" && len(req.ParentIDs) == 0 {
		o.scheduleAutoTitle(req.ConversationID, req.Message)
	}
}

func (o *Orchestrator) emitError(events chan<- interface{}, err error) {
	appErr := errors.Wrap(err, errors.ErrInternalServer)
	select {
	case events <- models.SSEError{Error: appErr.Message}:
	default:
	}
}

// scheduleAutoTitle runs detached from the HTTP response (spec §4.6
// "Auto-title job"): failure is logged and non-fatal, leaving the title
// empty for a future attempt.
func (o *Orchestrator) scheduleAutoTitle(conversationID, firstMessage string) {
	o.pool.SubmitAutoTitle(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		ad, err := o.registry.Get(o.cfg.DefaultModel)
		if err != nil {
			slog.Warn("auto-title: default model not registered", "model", o.cfg.DefaultModel, "error", err)
			return
		}

		prompt := "Summarize the following question in 16 characters or fewer, plain text, no punctuation: " + firstMessage
		stream, err := ad.StreamChat(ctx, o.cfg.DefaultModel, nil, prompt, models.AdapterOptions{MaxTokens: 32})
		if err != nil {
			slog.Warn("auto-title: adapter call failed", "conversation_id", conversationID, "error", err)
			return
		}

		var title strings.Builder
		for ev := range stream {
			if ev.Type == models.ChatEventContent {
				title.WriteString(ev.Text)
			}
			if ev.Type == models.ChatEventError {
				slog.Warn("auto-title: adapter stream error", "conversation_id", conversationID, "error", ev.Message)
				return
			}
		}

		sanitized := sanitizeTitle(title.String())
		if sanitized == "" {
			return
		}
		if err := o.convStore.SetTitle(ctx, conversationID, sanitized); err != nil {
			slog.Warn("auto-title: failed to persist title", "conversation_id", conversationID, "error", err)
		}
	})
}

func sanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	r := []rune(s)
	if len(r) > 16 {
		r = r[:16]
	}
	return string(r)
}
