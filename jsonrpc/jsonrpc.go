package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the only protocol version this package speaks.
const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Codes in [CodeServerErrorStart, CodeServerErrorEnd] are reserved for
	// implementation-defined server errors.
	CodeServerErrorStart = -32099
	CodeServerErrorEnd   = -32000
)

var (
	ErrInvalidParams = errors.New("jsonrpc: params must be a JSON array or object")
	ErrParse         = errors.New("jsonrpc: response is not a JSON object")
	ErrVersion       = errors.New("jsonrpc: unsupported protocol version")
	ErrMalformed     = errors.New("jsonrpc: malformed response")
	ErrIDMismatch    = errors.New("jsonrpc: response id does not match request id")
	ErrIDMissing     = errors.New("jsonrpc: response has no id")
)

// JSONRPCError is the error object of a JSON-RPC response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return "jsonrpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// IsServerError reports whether the code lies in the range reserved for
// implementation-defined server errors.
func (e *JSONRPCError) IsServerError() bool {
	return e.Code >= CodeServerErrorStart && e.Code <= CodeServerErrorEnd
}

func NewError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

// ID is a request correlation id. It is either a number or a string; the
// zero value is an absent id.
type ID struct {
	num   uint64
	str   string
	isStr bool
	set   bool
}

// NumberID returns a numeric id.
func NumberID(n uint64) ID {
	return ID{num: n, set: true}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{str: s, isStr: true, set: true}
}

// IsZero reports whether id is the absent id.
func (id ID) IsZero() bool {
	return !id.set
}

func (id ID) String() string {
	switch {
	case !id.set:
		return ""
	case id.isStr:
		return id.str
	default:
		return strconv.FormatUint(id.num, 10)
	}
}

// MarshalJSON encodes id as a JSON number or string, or null when absent.
func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.set:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return []byte(strconv.FormatUint(id.num, 10)), nil
	}
}

// Matches reports whether the raw JSON id of a response refers to id.
// Numbers compare numerically, so 7 and 7.0 match; a number never matches a
// string.
func (id ID) Matches(raw json.RawMessage) bool {
	if !id.set {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch got := v.(type) {
	case string:
		return id.isStr && got == id.str
	case json.Number:
		if id.isStr {
			return false
		}
		if n, err := strconv.ParseUint(got.String(), 10, 64); err == nil {
			return n == id.num
		}
		f, err := got.Float64()
		return err == nil && f == float64(id.num)
	default:
		return false
	}
}

// IDMode controls how responses without an id are treated.
type IDMode int

const (
	// IDLenient accepts responses whose id is missing or null. Some servers
	// omit the id on error responses.
	IDLenient IDMode = iota
	// IDStrict rejects responses whose id is missing or null.
	IDStrict
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Positional returns args as a positional parameter list.
func Positional(args ...interface{}) []interface{} {
	if args == nil {
		return []interface{}{}
	}
	return args
}

// Named returns params as a named parameter object.
func Named(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	return params
}

// EncodeRequest serializes a request for method with the given id.
//
// params may be nil, in which case the params member is omitted. Otherwise it
// must encode to a JSON array (positional) or object (named).
func EncodeRequest(id ID, method string, params interface{}) ([]byte, error) {
	req := Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = bytes.TrimSpace(raw)
		switch {
		case bytes.Equal(raw, []byte("null")):
			// A nil slice or map; leave params out.
		case len(raw) > 0 && (raw[0] == '[' || raw[0] == '{'):
			req.Params = raw
		default:
			return nil, ErrInvalidParams
		}
	}
	return json.Marshal(req)
}

// Response is a decoded JSON-RPC 2.0 response. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string
	// ID is the id as sent by the server, or nil when absent.
	ID     json.RawMessage
	Result json.RawMessage
	Error  *JSONRPCError
}

// DecodeResponse parses body and validates it as the response to the request
// carrying id.
func DecodeResponse(body []byte, id ID, mode IDMode) (*Response, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil || members == nil {
		return nil, ErrParse
	}

	resp := &Response{}
	if raw, ok := members["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &resp.JSONRPC); err != nil || resp.JSONRPC != Version {
			return nil, fmt.Errorf("%w: %s", ErrVersion, raw)
		}
	}

	// Some servers send an explicit null for the member that does not apply.
	rawErr, hasError := members["error"]
	hasError = hasError && !isNull(rawErr)
	result, hasResult := members["result"]
	hasResult = hasResult && !(hasError && isNull(result))
	switch {
	case hasResult && hasError:
		return nil, fmt.Errorf("%w: both result and error present", ErrMalformed)
	case !hasResult && !hasError:
		return nil, fmt.Errorf("%w: neither result nor error present", ErrMalformed)
	case hasError:
		e, err := decodeError(rawErr)
		if err != nil {
			return nil, err
		}
		resp.Error = e
	default:
		resp.Result = result
	}

	rawID, hasID := members["id"]
	if hasID && !isNull(rawID) {
		if !id.Matches(rawID) {
			return nil, fmt.Errorf("%w: got %s, want %s", ErrIDMismatch, rawID, id)
		}
		resp.ID = rawID
	} else if mode == IDStrict {
		return nil, ErrIDMissing
	}

	return resp, nil
}

func decodeError(raw json.RawMessage) (*JSONRPCError, error) {
	var fields struct {
		Code    *json.Number    `json:"code"`
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: error member: %v", ErrMalformed, err)
	}
	if fields.Code == nil || fields.Message == nil {
		return nil, fmt.Errorf("%w: error member needs code and message", ErrMalformed)
	}
	code, err := strconv.Atoi(fields.Code.String())
	if err != nil {
		return nil, fmt.Errorf("%w: error code %s is not an integer", ErrMalformed, fields.Code)
	}
	e := &JSONRPCError{Code: code, Message: *fields.Message}
	if !isNull(fields.Data) {
		e.Data = fields.Data
	}
	return e, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
