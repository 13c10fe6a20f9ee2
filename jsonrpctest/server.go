// Package jsonrpctest provides an in-process JSON-RPC 2.0 server for tests.
//
// The server answers POSTs to /jsonrpc by dispatching to registered method
// handlers, and GETs to the same path as a reachability probe:
//
//	srv := jsonrpctest.NewServer()
//	defer srv.Close()
//	srv.Handle("System.Foo", func(params json.RawMessage) (interface{}, error) {
//	    return 42, nil
//	})
//	c := client.New(srv.Params(), root)
//
// Every request is recorded and can be inspected with Calls. Respond
// replaces the generated envelope with arbitrary bytes, which is how tests
// produce malformed or mismatched responses.
package jsonrpctest

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/mnehpets/nsrpc/jsonrpc"
	"github.com/mnehpets/nsrpc/transport"
)

// HandlerFunc implements one method. Returning a *jsonrpc.JSONRPCError
// preserves its code; any other error becomes CodeInternalError.
type HandlerFunc func(params json.RawMessage) (interface{}, error)

// Call is one recorded request.
type Call struct {
	Method string
	Params json.RawMessage
	// ID is the raw id member, or nil if the request had none.
	ID     json.RawMessage
	Header http.Header
}

// Server is a JSON-RPC test server backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	methods     map[string]HandlerFunc
	calls       []Call
	probes      int
	probeStatus int
	respond     func(id json.RawMessage) string
	authorize   func(r *http.Request) bool
}

// NewServer starts a server with no methods.
func NewServer() *Server {
	s := &Server{
		methods:     make(map[string]HandlerFunc),
		probeStatus: http.StatusOK,
	}
	s.Server = httptest.NewServer(s)
	return s
}

// Handle registers fn for method, replacing any previous handler.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = fn
}

// Respond makes the server answer every POST with the body returned by fn,
// given the raw id of the request. Pass nil to restore normal dispatch.
func (s *Server) Respond(fn func(id json.RawMessage) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = fn
}

// SetProbeStatus sets the status returned to GET requests.
func (s *Server) SetProbeStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeStatus = code
}

// RequireBasicAuth rejects requests without the given credentials with 401.
func (s *Server) RequireBasicAuth(user, pass string) {
	s.setAuthorize(func(r *http.Request) bool {
		u, p, ok := r.BasicAuth()
		return ok && u == user && p == pass
	})
}

// RequireBearer rejects requests whose Bearer token fails valid with 401.
func (s *Server) RequireBearer(valid func(token string) bool) {
	s.setAuthorize(func(r *http.Request) bool {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		return ok && valid(token)
	})
}

func (s *Server) setAuthorize(fn func(r *http.Request) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorize = fn
}

// Calls returns the requests received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Probes returns how many GET requests were received.
func (s *Server) Probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// Params returns server parameters addressing this server.
func (s *Server) Params() transport.ServerParams {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic("jsonrpctest: bad server URL: " + err.Error())
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		panic("jsonrpctest: bad server port: " + err.Error())
	}
	return transport.ServerParams{Host: u.Hostname(), Port: port}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   interface{}     `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != transport.DefaultPath {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	authorize := s.authorize
	s.mu.Unlock()
	if authorize != nil && !authorize(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="jsonrpctest"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		s.probes++
		status := s.probeStatus
		s.mu.Unlock()
		w.WriteHeader(status)
	case http.MethodPost:
		s.serveCall(w, r)
	default:
		http.Error(w, "JSON-RPC requires POST method", http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var req request
	parseErr := json.Unmarshal(body, &req)

	s.mu.Lock()
	if parseErr == nil {
		s.calls = append(s.calls, Call{
			Method: req.Method,
			Params: req.Params,
			ID:     req.ID,
			Header: r.Header.Clone(),
		})
	}
	respond := s.respond
	fn := s.methods[req.Method]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if respond != nil {
		io.WriteString(w, respond(req.ID))
		return
	}

	resp := response{JSONRPC: jsonrpc.Version, ID: req.ID}
	switch {
	case parseErr != nil:
		resp.ID = json.RawMessage("null")
		resp.Error = jsonrpc.NewError(jsonrpc.CodeParseError, "parse error")
	case req.JSONRPC != jsonrpc.Version || req.Method == "":
		resp.Error = jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "invalid request")
	case fn == nil:
		resp.Error = jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)
	default:
		result, err := invoke(fn, req.Params)
		if err != nil {
			resp.Error = mapError(err)
		} else {
			resp.Result = result
			if result == nil {
				// omitempty would drop a nil result entirely.
				resp.Result = json.RawMessage("null")
			}
		}
	}
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("jsonrpctest: encode response: %v", err)
	}
}

func invoke(fn HandlerFunc, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("jsonrpctest: handler panic: %v", r)
			err = jsonrpc.NewError(jsonrpc.CodeInternalError, fmt.Sprint("internal error: ", r))
		}
	}()
	return fn(params)
}

// mapError converts any error to a JSON-RPC error.
// JSONRPCError values keep their code; other errors become InternalError.
func mapError(err error) *jsonrpc.JSONRPCError {
	if rpcErr, ok := err.(*jsonrpc.JSONRPCError); ok {
		return rpcErr
	}
	return &jsonrpc.JSONRPCError{
		Code:    jsonrpc.CodeInternalError,
		Message: err.Error(),
	}
}
