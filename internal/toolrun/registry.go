// Package toolrun executes tool calls: parameter validation against
// the tool's schema, a hard timeout, bounded retries on transient
// failures, and a per-domain circuit breaker.
package toolrun

import (
	"context"
	"sync"

	"github.com/bantzhq/bantz/pkg/models"
)

// Tool is the callable contract. Tools must be idempotent for the
// retryable error classes since the runner may invoke them repeatedly.
type Tool interface {
	// Spec returns the immutable descriptor: schema, risk, limits.
	Spec() models.ToolSpec

	// Call executes the tool. Transport-level failures should be
	// returned as an error; domain-level failures as a ToolResult with
	// Success=false and a Kind.
	Call(ctx context.Context, params map[string]any) (*models.ToolResult, error)
}

// ToolFunc adapts a function plus spec to a Tool.
type ToolFunc struct {
	ToolSpec models.ToolSpec
	Fn       func(ctx context.Context, params map[string]any) (*models.ToolResult, error)
}

// Spec returns the descriptor.
func (t ToolFunc) Spec() models.ToolSpec { return t.ToolSpec }

// Call executes the function.
func (t ToolFunc) Call(ctx context.Context, params map[string]any) (*models.ToolResult, error) {
	return t.Fn(ctx, params)
}

// Registry manages available tools with thread-safe registration and
// lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool by its spec name, replacing any previous one.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Spec().Name] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
