package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/registry-mcp/mcp"
)

// Tool is a named, schema-described operation exposed through call_tool.
type Tool interface {
	// Descriptor returns the metadata advertised by list_tools.
	Descriptor() mcp.Tool
	// Call executes the tool with raw JSON arguments (nil when absent) and
	// returns a JSON-serializable result.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// ToolFunc is the typed handler signature used with NewTool.
type ToolFunc[A any] func(ctx context.Context, args A) (any, error)

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls the additionalProperties flag
// advertised in the generated schema. Decoding is lenient either way.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// typedTool adapts a ToolFunc to the Tool interface.
type typedTool[A any] struct {
	desc mcp.Tool
	fn   ToolFunc[A]
}

var _ Tool = (*typedTool[struct{}])(nil)

// NewTool constructs a Tool from a typed args struct A. It:
//   - Reflects a JSON Schema from A using invopop/jsonschema
//   - Down-converts it to the simplified mcp.ToolInputSchema
//   - Wraps the handler with JSON decoding of the raw arguments
func NewTool[A any](name string, fn ToolFunc[A], opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &typedTool[A]{
		desc: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: reflectToMCPInputSchema[A](cfg.allowAdditionalProperties),
		},
		fn: fn,
	}
}

func (t *typedTool[A]) Descriptor() mcp.Tool { return t.desc }

func (t *typedTool[A]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a A
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	return t.fn(ctx, a)
}
