package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mnehpets/nsrpc/jsonrpc"
	"go.uber.org/zap"
)

// Command is a leaf of the method tree: one remote method.
type Command struct {
	name      string
	namespace *Namespace
	client    *Client
}

func (c *Command) isChild() {}

// Name returns the command's own name.
func (c *Command) Name() string {
	return c.name
}

// FullName returns the fully-qualified method name, e.g. "System.Foo".
func (c *Command) FullName() string {
	return strings.Trim(c.namespace.FullName()+"."+c.name, ".")
}

// Call executes the method with params and returns the server's response.
//
// params may be nil, a positional list (see jsonrpc.Positional), a named
// object (see jsonrpc.Named), or any value that encodes to a JSON array or
// object.
//
// If the server answers with an error object, Call returns the Response
// together with a non-nil error that is the *jsonrpc.JSONRPCError. Every
// other failure returns a nil Response. Call makes exactly one attempt.
func (c *Command) Call(ctx context.Context, params interface{}) (*Response, error) {
	method := c.FullName()
	start := time.Now()
	resp, err := c.call(ctx, method, params)
	c.client.observe(method, time.Since(start), resp, err)
	return resp, err
}

func (c *Command) call(ctx context.Context, method string, params interface{}) (*Response, error) {
	cl := c.client
	id := cl.ids.Next()
	body, err := jsonrpc.EncodeRequest(id, method, params)
	if err != nil {
		return nil, &ClientError{Kind: ErrInvalidParams, Op: "encode", Method: method, Cause: err}
	}

	if err := cl.ensureReady(ctx); err != nil {
		return nil, err
	}

	raw, err := cl.send(ctx, method, body)
	if err != nil {
		return nil, err
	}

	decoded, err := jsonrpc.DecodeResponse(raw, id, cl.idMode)
	if err != nil {
		return nil, &ClientError{Kind: ErrInvalidResponse, Op: "decode", Method: method, Cause: err}
	}
	resp := &Response{
		ID:     id,
		Method: method,
		Result: decoded.Result,
		Error:  decoded.Error,
	}
	if resp.Error != nil {
		return resp, resp.Error
	}
	return resp, nil
}

// CallInto executes the method and decodes its result into out.
func (c *Command) CallInto(ctx context.Context, params interface{}, out interface{}) error {
	resp, err := c.Call(ctx, params)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Invoke executes cmd and decodes its result as a T.
func Invoke[T any](ctx context.Context, cmd *Command, params interface{}) (T, error) {
	var out T
	if err := cmd.CallInto(ctx, params, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (cl *Client) observe(method string, elapsed time.Duration, resp *Response, err error) {
	outcome := outcomeOf(err)
	if cl.metrics != nil {
		cl.metrics.observe(method, outcome, elapsed)
	}
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	if resp != nil {
		fields = append(fields, zap.Stringer("id", resp.ID))
	}
	switch outcome {
	case outcomeOK:
		cl.logger.Debug("rpc call", fields...)
	case outcomeRPCError:
		cl.logger.Info("rpc call returned error", append(fields, zap.Error(err))...)
	default:
		cl.logger.Warn("rpc call failed", append(fields, zap.Error(err))...)
	}
}

const (
	outcomeOK              = "ok"
	outcomeRPCError        = "rpc_error"
	outcomeInvalidParams   = "invalid_params"
	outcomeInvalidResponse = "invalid_response"
	outcomeRequestFailed   = "request_failed"
	outcomeUnavailable     = "unavailable"
	outcomePreparation     = "preparation"
	outcomeOther           = "other"
)

func outcomeOf(err error) string {
	var rpcErr *jsonrpc.JSONRPCError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &rpcErr):
		return outcomeRPCError
	case errors.Is(err, ErrInvalidParams):
		return outcomeInvalidParams
	case errors.Is(err, ErrInvalidResponse):
		return outcomeInvalidResponse
	case errors.Is(err, ErrRequestFailed):
		return outcomeRequestFailed
	case errors.Is(err, ErrConnectionUnavailable):
		return outcomeUnavailable
	case errors.Is(err, ErrClientPreparation):
		return outcomePreparation
	default:
		return outcomeOther
	}
}
