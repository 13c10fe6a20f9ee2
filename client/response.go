package client

import (
	"bytes"
	"encoding/json"

	"github.com/mnehpets/nsrpc/jsonrpc"
)

// Response is the validated answer to one call.
type Response struct {
	// ID is the correlation id of the request this response answers.
	ID jsonrpc.ID
	// Method is the fully-qualified method that was called.
	Method string
	// Result is the raw result; nil when Error is set.
	Result json.RawMessage
	// Error is the server's error object, if the call failed remotely.
	Error *jsonrpc.JSONRPCError
}

// OK reports whether the response carries a result.
func (r *Response) OK() bool {
	return r.Error == nil
}

// Err returns the response's error object as an error, or nil.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Decode unmarshals the result into v. It returns the error object instead
// when the call failed remotely.
func (r *Response) Decode(v interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return &ClientError{Kind: ErrInvalidResponse, Op: "decode", Method: r.Method, Cause: err}
	}
	return nil
}

// Value decodes the result into a generic Go value. Numbers are returned as
// json.Number so that integers survive unchanged.
func (r *Response) Value() (interface{}, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	dec := json.NewDecoder(bytes.NewReader(r.Result))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, &ClientError{Kind: ErrInvalidResponse, Op: "decode", Method: r.Method, Cause: err}
	}
	return v, nil
}
