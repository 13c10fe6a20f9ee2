package client

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is, except RPC error objects returned by the server,
// which are *jsonrpc.JSONRPCError values.
var (
	ErrInvalidNamespace      = errors.New("invalid namespace")
	ErrInvalidCommand        = errors.New("invalid command")
	ErrInvalidParams         = errors.New("invalid params")
	ErrClientPreparation     = errors.New("client preparation failed")
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrRequestFailed         = errors.New("request failed")
	ErrInvalidResponse       = errors.New("invalid response")
	ErrAlreadyPrepared       = errors.New("connection already prepared")
)

// NavigationError reports a name that the schema does not list where it was
// looked up.
type NavigationError struct {
	// Kind is ErrInvalidNamespace or ErrInvalidCommand.
	Kind error
	// Namespace is the full name of the namespace searched; "" is the root.
	Namespace string
	Name      string
}

func (e *NavigationError) Error() string {
	what := "namespace"
	if e.Kind == ErrInvalidCommand {
		what = "command"
	}
	where := e.Namespace
	if where == "" {
		where = "<root>"
	}
	return fmt.Sprintf("%s %q does not exist in namespace %s", what, e.Name, where)
}

func (e *NavigationError) Unwrap() error {
	return e.Kind
}

// ClientError is a failure to prepare, reach, call or understand the server.
type ClientError struct {
	Kind error
	// Op is the step that failed: "prepare", "probe", "encode", "send" or
	// "decode".
	Op string
	// Method is the fully-qualified method, when the failure belongs to a
	// call.
	Method string
	Cause  error
}

func (e *ClientError) Error() string {
	msg := "nsrpc: " + e.Op
	if e.Method != "" {
		msg += " " + e.Method
	}
	msg += ": " + e.Kind.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and
// errors.As.
func (e *ClientError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newClientError(kind error, op, method string, cause error) error {
	// Avoid double-wrapping.
	var ce *ClientError
	if errors.As(cause, &ce) {
		return cause
	}
	return &ClientError{Kind: kind, Op: op, Method: method, Cause: cause}
}

// IsTransient reports whether err is a network-level failure that may
// succeed if retried once the environment is fixed. The client itself never
// retries.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnectionUnavailable) || errors.Is(err, ErrRequestFailed)
}
