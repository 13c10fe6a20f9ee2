// Package transport moves serialized JSON-RPC envelopes to a server and back.
//
// Transport is the boundary the client package depends on. HTTPTransport is
// the implementation for JSON-RPC over HTTP: each request is the body of one
// POST to a target of the form
//
//	scheme://[user[:pass]@]host:port/jsonrpc
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultScheme = "http"
	DefaultPath   = "/jsonrpc"
)

var (
	ErrInvalidTarget = errors.New("transport: invalid server parameters")
	ErrNotPrepared   = errors.New("transport: not prepared")
	ErrEmptyResponse = errors.New("transport: empty response body")
	ErrTooLarge      = errors.New("transport: response body too large")
)

// Transport performs the network side of a call.
type Transport interface {
	// Prepare resolves params into the target used by later calls.
	Prepare(params ServerParams) error
	// Probe checks that the prepared target is reachable.
	Probe(ctx context.Context) error
	// Send delivers one serialized request and returns the raw response body.
	Send(ctx context.Context, body []byte) ([]byte, error)
	// Close releases any connection state. A closed transport may be
	// prepared and used again.
	Close() error
}

// ServerParams identifies the JSON-RPC server.
type ServerParams struct {
	// Scheme is "http" or "https". Empty means DefaultScheme.
	Scheme string
	Host   string
	Port   int
	// User and Pass are optional. Pass is ignored without a User.
	User string
	Pass string
	// Path is the endpoint path. Empty means DefaultPath.
	Path string
}

// BuildTarget turns params into the endpoint URL. Credentials are embedded
// only when a user is set, and the password only alongside a user.
func BuildTarget(params ServerParams) (*url.URL, error) {
	scheme := strings.ToLower(params.Scheme)
	if scheme == "" {
		scheme = DefaultScheme
	}
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, params.Scheme)
	}
	host := strings.TrimSpace(params.Host)
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidTarget)
	}
	if strings.ContainsAny(host, "/@?#") {
		return nil, fmt.Errorf("%w: bad host %q", ErrInvalidTarget, params.Host)
	}
	if params.Port < 1 || params.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, params.Port)
	}
	path := params.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(params.Port)),
		Path:   path,
	}
	if params.User != "" {
		if params.Pass != "" {
			target.User = url.UserPassword(params.User, params.Pass)
		} else {
			target.User = url.User(params.User)
		}
	}
	return target, nil
}
