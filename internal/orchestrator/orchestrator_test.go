package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZM-BAD/dag-chat/internal/adapter"
	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
	"github.com/ZM-BAD/dag-chat/internal/workers"
)

// fakeConversationStore and fakeMessageStore mirror the ones in
// internal/service, duplicated here to keep each package's tests
// dependency-free of the other's unexported fakes.

type fakeConversationStore struct {
	conversations map[string]*models.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[string]*models.Conversation)}
}

func (f *fakeConversationStore) Create(ctx context.Context, userID, initialModel string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: "conv-1", UserID: userID}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, errors.New(errors.ErrUnknownConversation, "conversation not found")
	}
	return conv, nil
}

func (f *fakeConversationStore) List(ctx context.Context, userID string, page, pageSize int) ([]models.Conversation, int, error) {
	return nil, 0, nil
}

func (f *fakeConversationStore) Rename(ctx context.Context, id, userID, title string) (*models.Conversation, error) {
	return f.conversations[id], nil
}

func (f *fakeConversationStore) Delete(ctx context.Context, id, userID string) error { return nil }

func (f *fakeConversationStore) Touch(ctx context.Context, id, model string) error { return nil }

func (f *fakeConversationStore) SetTitle(ctx context.Context, id, title string) error {
	if conv, ok := f.conversations[id]; ok {
		conv.Title = title
	}
	return nil
}

type fakeMessageStore struct {
	nodes map[string]*models.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{nodes: make(map[string]*models.Message)}
}

func (f *fakeMessageStore) Insert(ctx context.Context, node *models.Message) (string, error) {
	id := node.ID
	if id == "" {
		id = "node-" + string(node.Role) + "-" + node.Content
		if len(id) > 40 {
			id = id[:40]
		}
	}
	node.ID = id
	node.Children = []string{}
	cp := *node
	f.nodes[id] = &cp
	return id, nil
}

func (f *fakeMessageStore) AppendChild(ctx context.Context, parentID, childID string) error {
	if n, ok := f.nodes[parentID]; ok {
		n.Children = append(n.Children, childID)
		return nil
	}
	return errors.New(errors.ErrUnknownMessage, "parent not found")
}

func (f *fakeMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, errors.New(errors.ErrUnknownMessage, "message not found")
	}
	return n, nil
}

func (f *fakeMessageStore) GetMany(ctx context.Context, conversationID string, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message)
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (f *fakeMessageStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	return nil
}

func (f *fakeMessageStore) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	for _, n := range f.nodes {
		if n.ConversationID == conversationID {
			out = append(out, *n)
		}
	}
	return out, nil
}

// scriptedAdapter streams a fixed sequence of events, optionally blocking
// until the caller's context is canceled — used to exercise the
// discard-partial-content policy on client disconnect.
type scriptedAdapter struct {
	events []models.ChatEvent
	block  bool
}

func (a *scriptedAdapter) StreamChat(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error) {
	out := make(chan models.ChatEvent, len(a.events)+1)
	go func() {
		defer close(out)
		for _, ev := range a.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if a.block {
			<-ctx.Done()
		}
	}()
	return out, nil
}

func newTestOrchestrator(convStore *fakeConversationStore, msgStore *fakeMessageStore, reg *adapter.Registry) *Orchestrator {
	pool := workers.NewPoolManager(workers.PoolConfig{AutoTitleWorkers: 1})
	cfg := config.ChatConfig{DefaultModel: "gpt-4o-mini", TotalTimeoutSec: 30}
	return New(convStore, msgStore, reg, pool, cfg)
}

func newTestOrchestratorWithConfig(convStore *fakeConversationStore, msgStore *fakeMessageStore, reg *adapter.Registry, cfg config.ChatConfig) *Orchestrator {
	pool := workers.NewPoolManager(workers.PoolConfig{AutoTitleWorkers: 1})
	return New(convStore, msgStore, reg, pool, cfg)
}

func drain(t *testing.T, events <-chan interface{}, timeout time.Duration) []interface{} {
	t.Helper()
	var out []interface{}
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out waiting for orchestrator events")
			return out
		}
	}
}

func TestOrchestrator_Stream_UnknownModel(t *testing.T) {
	convStore := newFakeConversationStore()
	msgStore := newFakeMessageStore()
	reg := adapter.NewRegistry()
	orch := newTestOrchestrator(convStore, msgStore, reg)

	conv, _ := convStore.Create(context.Background(), "user-1", "")

	_, err := orch.Stream(context.Background(), models.ChatRequest{ConversationID: conv.ID, Model: "ghost-model", Message: "hi"})
	require.Error(t, err)
	appErr, ok := errors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrUnknownModel, appErr.Code)
}

func TestOrchestrator_Stream_HappyPath(t *testing.T) {
	convStore := newFakeConversationStore()
	msgStore := newFakeMessageStore()
	reg := adapter.NewRegistry()
	reg.Register("gpt-4o-mini", "GPT-4o mini", []string{"content"}, &scriptedAdapter{events: []models.ChatEvent{
		{Type: models.ChatEventContent, Text: "hello "},
		{Type: models.ChatEventContent, Text: "world"},
		{Type: models.ChatEventDone},
	}})
	orch := newTestOrchestrator(convStore, msgStore, reg)

	conv, _ := convStore.Create(context.Background(), "user-1", "")

	events, err := orch.Stream(context.Background(), models.ChatRequest{ConversationID: conv.ID, Model: "gpt-4o-mini", Message: "hi"})
	require.NoError(t, err)

	frames := drain(t, events, 2*time.Second)
	require.NotEmpty(t, frames)

	_, hasUserID := frames[0].(models.SSEUserMessageID)
	assert.True(t, hasUserID)

	last := frames[len(frames)-1]
	complete, ok := last.(models.SSEComplete)
	require.True(t, ok)
	assert.True(t, complete.Complete)

	assistant, err := msgStore.Get(context.Background(), complete.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", assistant.Content)
	assert.Equal(t, models.RoleAssistant, assistant.Role)
}

func TestOrchestrator_Stream_IdleTimeoutEmitsError(t *testing.T) {
	convStore := newFakeConversationStore()
	msgStore := newFakeMessageStore()
	reg := adapter.NewRegistry()
	reg.Register("gpt-4o-mini", "GPT-4o mini", []string{"content"}, &scriptedAdapter{
		events: []models.ChatEvent{{Type: models.ChatEventContent, Text: "partial"}},
		block:  true,
	})
	cfg := config.ChatConfig{DefaultModel: "gpt-4o-mini", TotalTimeoutSec: 30, IdleTimeoutSec: 1}
	orch := newTestOrchestratorWithConfig(convStore, msgStore, reg, cfg)

	conv, _ := convStore.Create(context.Background(), "user-1", "")

	events, err := orch.Stream(context.Background(), models.ChatRequest{ConversationID: conv.ID, Model: "gpt-4o-mini", Message: "hi"})
	require.NoError(t, err)

	frames := drain(t, events, 3*time.Second)
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	_, ok := last.(models.SSEError)
	require.True(t, ok, "last frame must be an error frame once the idle timer fires")

	for _, n := range msgStore.nodes {
		assert.NotEqual(t, models.RoleAssistant, n.Role)
	}
}

func TestOrchestrator_Stream_DiscardsPartialContentOnDisconnect(t *testing.T) {
	convStore := newFakeConversationStore()
	msgStore := newFakeMessageStore()
	reg := adapter.NewRegistry()
	reg.Register("gpt-4o-mini", "GPT-4o mini", []string{"content"}, &scriptedAdapter{
		events: []models.ChatEvent{{Type: models.ChatEventContent, Text: "partial"}},
		block:  true,
	})
	orch := newTestOrchestrator(convStore, msgStore, reg)

	conv, _ := convStore.Create(context.Background(), "user-1", "")

	ctx, cancel := context.WithCancel(context.Background())
	events, err := orch.Stream(ctx, models.ChatRequest{ConversationID: conv.ID, Model: "gpt-4o-mini", Message: "hi"})
	require.NoError(t, err)

	// Let the user node be persisted and the first content frame arrive,
	// then disconnect.
	var sawContent bool
	for ev := range events {
		if _, ok := ev.(models.SSEContent); ok {
			sawContent = true
			cancel()
		}
	}
	assert.True(t, sawContent)

	// No assistant node should have been created.
	for _, n := range msgStore.nodes {
		assert.NotEqual(t, models.RoleAssistant, n.Role)
	}
}
