// Package mcpservice provides the building blocks of the tool catalog: the
// Tool interface every catalog entry satisfies, a typed constructor that
// reflects an input schema from an argument struct, and the immutable
// Registry the stdio dispatcher routes call_tool requests through.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema_description:"Text to echo back"`
//	}
//	echo := mcpservice.NewTool("echo",
//	    func(ctx context.Context, a EchoArgs) (any, error) {
//	        return map[string]string{"message": a.Message}, nil
//	    },
//	    mcpservice.WithToolDescription("Echo a message back to the caller"),
//	)
//	reg, err := mcpservice.NewRegistry(echo)
//
// Schemas are advertised through list_tools but are not enforced before
// dispatch; each handler validates the arguments it receives.
package mcpservice
