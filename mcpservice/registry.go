package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/registry-mcp/mcp"
)

// ErrToolNotFound is returned by Registry.Call when no tool has the
// requested name.
var ErrToolNotFound = errors.New("tool not found")

// Registry is an immutable, ordered set of tools keyed by name. It is safe
// for concurrent use once constructed.
type Registry struct {
	ordered []Tool
	byName  map[string]Tool
}

// NewRegistry builds a Registry. Tool names must be non-empty and unique;
// listing order follows argument order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		ordered: make([]Tool, 0, len(tools)),
		byName:  make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if t == nil {
			return nil, errors.New("mcpservice: nil tool")
		}
		name := t.Descriptor().Name
		if name == "" {
			return nil, errors.New("mcpservice: tool with empty name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("mcpservice: duplicate tool %q", name)
		}
		r.byName[name] = t
		r.ordered = append(r.ordered, t)
	}
	return r, nil
}

// List returns the descriptors of all registered tools in registration order.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, t.Descriptor())
	}
	return out
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Call dispatches to the named tool. It returns ErrToolNotFound (wrapped)
// for unknown names.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Call(ctx, args)
}
