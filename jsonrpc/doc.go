// Package jsonrpc encodes JSON-RPC 2.0 requests and validates responses.
//
// This package implements the client side of the JSON-RPC 2.0 specification
// (https://www.jsonrpc.org/specification) for single request/response
// exchanges. Batches and notifications are not supported.
//
// # Requests
//
// EncodeRequest produces the wire envelope for one call:
//
//	body, err := jsonrpc.EncodeRequest(jsonrpc.NumberID(1), "System.Foo", jsonrpc.Positional(1, 2))
//	// {"jsonrpc":"2.0","method":"System.Foo","params":[1,2],"id":1}
//
// Params must encode to a JSON array (positional) or object (named). A nil
// params value omits the params member.
//
// # Responses
//
// DecodeResponse checks that the body is a JSON object with exactly one of
// result or error, and that its id matches the request id:
//
//	resp, err := jsonrpc.DecodeResponse(raw, id, jsonrpc.IDLenient)
//
// Validation failures are reported with the sentinel errors ErrParse,
// ErrVersion, ErrMalformed, ErrIDMismatch and ErrIDMissing. A well-formed
// error response is not a validation failure: it is returned in
// Response.Error as a *JSONRPCError.
//
// Whether a response may omit its id is selected by IDMode. IDLenient
// accepts a missing or null id, since some servers leave it out of error
// responses; IDStrict rejects it.
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
package jsonrpc
