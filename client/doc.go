// Package client calls methods of a JSON-RPC 2.0 service whose method names
// form a dotted namespace hierarchy.
//
// # Basic Usage
//
// Describe the service's methods with a schema, create a Client, and
// navigate to a method:
//
//	root := schema.MustNew("",
//	    schema.Namespace("System", schema.Command("Foo")),
//	)
//	c := client.New(transport.ServerParams{Host: "localhost", Port: 8080}, root)
//	defer c.Close()
//
//	sys, err := c.Root().Namespace("System")
//	resp, err := sys.Call(ctx, "Foo", jsonrpc.Positional(1, 2))
//
// The request is sent as {"jsonrpc":"2.0","method":"System.Foo",...} to
// http://localhost:8080/jsonrpc. Dotted paths may be used directly:
//
//	resp, err := c.Call(ctx, "System.Foo", nil)
//
//	foo, err := c.Command("System.Foo")
//	n, err := client.Invoke[int](ctx, foo, nil)
//
// Navigation only succeeds for names the schema lists. A missing namespace
// fails with ErrInvalidNamespace and a missing command with
// ErrInvalidCommand, before anything is sent.
//
// # Connection Lifecycle
//
// The first call prepares the connection (PrepareConnection) and probes the
// server once (AssertCanConnect). Both can also be called explicitly. The
// underlying HTTP client is created once and reused for every call.
//
// # Error Handling
//
// Failures are reported synchronously and never retried:
//
//   - ErrInvalidNamespace, ErrInvalidCommand: name not in the schema.
//   - ErrInvalidParams: params do not encode to a JSON array or object.
//   - ErrClientPreparation: server parameters are incomplete or invalid.
//   - ErrConnectionUnavailable: the reachability probe failed.
//   - ErrRequestFailed: the HTTP exchange failed.
//   - ErrInvalidResponse: the server's reply is not a valid response to the
//     request, including a mismatched id.
//
// A server-side error object is returned as a *jsonrpc.JSONRPCError along
// with the Response that carried it:
//
//	resp, err := c.Call(ctx, "System.Foo", nil)
//	var rpcErr *jsonrpc.JSONRPCError
//	if errors.As(err, &rpcErr) {
//	    log.Printf("code %d: %s", rpcErr.Code, rpcErr.Message)
//	}
package client
