// Package adapter implements the Model Adapter interface and registry
// (C5): a uniform streaming chat capability over heterogeneous vendor
// APIs, process-wide and read-only after init (spec §4.5, §9).
package adapter

import (
	"context"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// Adapter is the uniform capability every vendor integration implements.
type Adapter interface {
	StreamChat(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error)
}

// ProviderFunc adapts a plain function to the Adapter interface, mirroring
// GhiaC-Agentize/llm-interface/provider.go's Provider/ProviderFunc pair
// (itself http.HandlerFunc's pattern) — generalized here from a
// non-streaming single-shot call to the spec's streaming contract.
type ProviderFunc func(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error)

func (f ProviderFunc) StreamChat(ctx context.Context, model string, history []models.HistoryMessage, prompt string, opts models.AdapterOptions) (<-chan models.ChatEvent, error) {
	return f(ctx, model, history, prompt, opts)
}

type registryEntry struct {
	adapter      Adapter
	displayName  string
	capabilities []string
}

// Registry maps a public model identifier to an adapter instance. It is
// built once at startup by Register calls and never mutated afterward
// (spec §9 "Global state").
type Registry struct {
	entries map[string]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

func (r *Registry) Register(name, displayName string, capabilities []string, a Adapter) {
	r.entries[name] = registryEntry{adapter: a, displayName: displayName, capabilities: capabilities}
}

// Get returns the adapter registered for name, or UnknownModel.
func (r *Registry) Get(name string) (Adapter, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, errors.New(errors.ErrUnknownModel, "model not registered: "+name)
	}
	return entry.adapter, nil
}

// Has reports whether name is a registered model, without allocating an
// error — used by request validation (spec §4.6 step 1).
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// ListModels returns the public model catalogue for GET /api/v1/models.
func (r *Registry) ListModels() []models.ModelInfo {
	out := make([]models.ModelInfo, 0, len(r.entries))
	for name, entry := range r.entries {
		out = append(out, models.ModelInfo{
			Name:         name,
			DisplayName:  entry.displayName,
			Capabilities: entry.capabilities,
		})
	}
	return out
}
