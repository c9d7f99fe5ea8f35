// Package tools implements Shammah's tool registry, approval cache, and
// bounded-timeout executor (spec §4.4).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/shammah/pkg/models"
)

// Tool is anything the model may invoke by name. InputSchema is advertised
// to providers as a models.ToolDefinition; strict validation of Input is
// left to the implementation.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]string
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Registry is a name -> Tool mapping. Re-registering a name replaces the
// previous tool (spec §4.4).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every registered tool as a models.ToolDefinition, for
// inclusion in a ProviderRequest.
func (r *Registry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, models.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// ErrToolNotFound describes a call to a tool name that is not registered;
// Execute reports it as an error ToolResult carrying this error's message.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}
