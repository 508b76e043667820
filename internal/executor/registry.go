package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kubilitics/hqee/pkg/types"
)

// ParamSpec describes one parameter a tool accepts.
type ParamSpec struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
}

// Tool is a named, parameterized unit of work producing a structured
// response (e.g. vector_search, cross_repo_tracer).
type Tool interface {
	Name() string
	Schema() []ParamSpec
	Execute(ctx context.Context, params map[string]interface{}) (types.ToolResponse, error)
}

// Descriptor is the public, read-only view of a registered tool used by
// the GET /api/v1/mcp/tools listing.
type Descriptor struct {
	Name   string      `json:"name"`
	Schema []ParamSpec `json:"schema"`
}

// Registry is a name-to-tool binding with uniqueness enforcement.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register binds a tool under its own name. It returns an error if the name
// is already registered.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("executor: tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool's descriptor, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for name, tool := range r.tools {
		out = append(out, Descriptor{Name: name, Schema: tool.Schema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
