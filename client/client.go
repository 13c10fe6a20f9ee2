package client

import (
	"context"
	"sync"
	"time"

	"github.com/mnehpets/nsrpc/jsonrpc"
	"github.com/mnehpets/nsrpc/schema"
	"github.com/mnehpets/nsrpc/transport"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultTimeout applies to probes and sends unless changed with SetTimeout
// or WithTimeout.
const DefaultTimeout = 15 * time.Second

// State is the connection state of a Client.
type State int

const (
	StateUninitialized State = iota
	StatePrepared
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrepared:
		return "prepared"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Client is a JSON-RPC client for one server and the root of its method
// tree.
//
// A Client moves from StateUninitialized to StatePrepared when the
// connection is prepared, and to StateActive after the first successful
// send. Preparation happens once; Reset returns to StateUninitialized.
//
// A Client serves one call at a time. Use one Client per goroutine, or
// serialize access externally.
type Client struct {
	mu        sync.Mutex
	params    transport.ServerParams
	transport transport.Transport
	state     State
	probed    bool

	probe   bool
	timeout time.Duration
	ids     IDGenerator
	idMode  jsonrpc.IDMode
	logger  *zap.Logger
	metrics *Metrics

	httpOpts []transport.Option
	root     *Namespace
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default HTTPTransport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTimeout sets the timeout in seconds, as SetTimeout does.
func WithTimeout(seconds int) Option {
	return func(c *Client) {
		c.SetTimeout(seconds)
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithIDGenerator sets how correlation ids are produced. Defaults to
// SequentialIDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Client) {
		if g != nil {
			c.ids = g
		}
	}
}

// WithIDMode sets whether responses without an id are accepted. Defaults to
// jsonrpc.IDLenient.
func WithIDMode(mode jsonrpc.IDMode) Option {
	return func(c *Client) {
		c.idMode = mode
	}
}

// WithoutProbe skips the reachability probe before the first call.
func WithoutProbe() Option {
	return func(c *Client) {
		c.probe = false
	}
}

// WithTokenSource authenticates calls with Bearer tokens from ts. It only
// affects the default HTTPTransport.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, transport.WithTokenSource(ts))
	}
}

// New creates a Client for the server described by params whose methods are
// described by root. A nil root is an empty schema.
func New(params transport.ServerParams, root *schema.Node, opts ...Option) *Client {
	if root == nil {
		root = schema.MustNew("")
	}
	c := &Client{
		params:  params,
		probe:   true,
		timeout: DefaultTimeout,
		ids:     &SequentialIDs{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		httpOpts := append([]transport.Option{transport.WithLogger(c.logger)}, c.httpOpts...)
		c.transport = transport.NewHTTPTransport(httpOpts...)
	}
	c.root = newNamespace("", root, c, nil)
	return c
}

// Root returns the root namespace.
func (c *Client) Root() *Namespace {
	return c.root
}

// Namespace resolves a dotted namespace path from the root.
func (c *Client) Namespace(path string) (*Namespace, error) {
	return c.root.walk(path)
}

// Command resolves a dotted command path from the root, e.g. "System.Foo".
func (c *Client) Command(path string) (*Command, error) {
	dir, name := splitPath(path)
	ns, err := c.root.walk(dir)
	if err != nil {
		return nil, err
	}
	return ns.Command(name)
}

// Lookup resolves a dotted path of either kind from the root.
func (c *Client) Lookup(path string) (Child, error) {
	return c.root.Lookup(path)
}

// Call resolves the command at path and executes it with params.
func (c *Client) Call(ctx context.Context, path string, params interface{}) (*Response, error) {
	cmd, err := c.Command(path)
	if err != nil {
		return nil, err
	}
	return cmd.Call(ctx, params)
}

// SetTimeout sets the probe and send timeout in seconds. Negative values
// are clamped to 0, which disables the timeout.
func (c *Client) SetTimeout(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = time.Duration(seconds) * time.Second
}

// Timeout returns the current timeout.
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Server returns the server parameters.
func (c *Client) Server() transport.ServerParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetServer replaces the server parameters. It fails with ErrAlreadyPrepared
// once the connection has been prepared; call Reset first.
func (c *Client) SetServer(params transport.ServerParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return ErrAlreadyPrepared
	}
	c.params = params
	return nil
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextID returns a fresh correlation id.
func (c *Client) NextID() jsonrpc.ID {
	return c.ids.Next()
}

// PrepareConnection resolves the server parameters into a transport target.
// It does nothing if the connection is already prepared.
func (c *Client) PrepareConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return nil
	}
	if err := c.transport.Prepare(c.params); err != nil {
		return newClientError(ErrClientPreparation, "prepare", "", err)
	}
	c.state = StatePrepared
	c.probed = false
	c.logger.Debug("connection prepared", zap.String("host", c.params.Host), zap.Int("port", c.params.Port))
	return nil
}

// AssertCanConnect probes the server. It does not change the state.
func (c *Client) AssertCanConnect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.transport.Probe(ctx); err != nil {
		c.logger.Warn("probe failed", zap.Error(err))
		return newClientError(ErrConnectionUnavailable, "probe", "", err)
	}
	return nil
}

// SendRequest sends a serialized envelope and returns the raw response. The
// connection must have been prepared. id is the envelope's correlation id;
// it is used for logging only.
func (c *Client) SendRequest(ctx context.Context, body []byte, id jsonrpc.ID) ([]byte, error) {
	c.logger.Debug("send request", zap.Stringer("id", id), zap.Int("bytes", len(body)))
	return c.send(ctx, "", body)
}

func (c *Client) send(ctx context.Context, method string, body []byte) ([]byte, error) {
	if c.State() == StateUninitialized {
		return nil, newClientError(ErrClientPreparation, "send", method, transport.ErrNotPrepared)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	raw, err := c.transport.Send(ctx, body)
	if err != nil {
		return nil, newClientError(ErrRequestFailed, "send", method, err)
	}
	c.mu.Lock()
	if c.state == StatePrepared {
		c.state = StateActive
	}
	c.mu.Unlock()
	return raw, nil
}

// ensureReady prepares the connection and, unless disabled, probes it once.
// A failed probe is attempted again on the next call.
func (c *Client) ensureReady(ctx context.Context) error {
	if err := c.PrepareConnection(); err != nil {
		return err
	}
	c.mu.Lock()
	needProbe := c.probe && !c.probed
	c.mu.Unlock()
	if !needProbe {
		return nil
	}
	if err := c.AssertCanConnect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.probed = true
	c.mu.Unlock()
	return nil
}

// Reset releases the transport and returns the Client to
// StateUninitialized, so that the next call prepares the connection again.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUninitialized
	c.probed = false
	return c.transport.Close()
}

// Close releases the transport. The Client stays usable; the next call
// prepares a fresh connection.
func (c *Client) Close() error {
	return c.Reset()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout()
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
