// Package stdio implements the single-connection JSON-RPC transport the
// server speaks over stdin/stdout.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none (the pipe is the trust boundary)
//	Framing          : one JSON-RPC 2.0 message per line
//	Methods          : initialize, ping, list_tools, call_tool
//
// Each call_tool request runs on its own goroutine; the handler keeps reading
// input while calls are in flight and responses are correlated purely by id,
// so they may arrive out of request order. When the input reaches EOF the
// handler stops reading, waits up to the shutdown grace period for in-flight
// calls, then cancels whatever remains.
//
// Example:
//
//	reg, _ := mcpservice.NewRegistry(tools...)
//	h := stdio.NewHandler(reg,
//	    stdio.WithServerInfo(mcp.ImplementationInfo{Name: "registry-mcp", Version: "0.1.0"}),
//	    stdio.WithShutdownGrace(5*time.Second),
//	)
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
