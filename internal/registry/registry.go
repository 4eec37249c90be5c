// Package registry defines the dashboard's MCP tools and keeps their
// definitions for discovery.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
)

// Registry records every tool added to the server.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]mcp.Tool
	model string
}

// New returns an empty Registry. model names the LLM expected to read tool
// output; it only sizes the context window reported at startup.
func New(model string) *Registry {
	return &Registry{tools: map[string]mcp.Tool{}, model: model}
}

func (r *Registry) Register(tool mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns a tool by name when present.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered definitions sorted by name.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// Visible lists the names a client will discover once filter is applied.
func (r *Registry) Visible(ctx context.Context, filter *ImportToolFilter) []string {
	tools, _ := r.Tools(ctx)
	if filter != nil {
		tools = filter.FilterTools(ctx, tools)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// ModelContextSize is the configured model's context window in tokens.
// Unknown models get langchaingo's default.
func (r *Registry) ModelContextSize() int {
	return llms.GetModelContextSize(r.model)
}
