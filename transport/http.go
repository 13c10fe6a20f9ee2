package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 32 << 20

// StatusError reports an HTTP response that is neither a success nor a
// JSON-RPC envelope.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("transport: unexpected HTTP status %d", e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPTransport is a Transport for JSON-RPC over HTTP.
//
// The underlying *http.Client is created on first use and reused by every
// later Probe and Send until Close. Credentials embedded in the target are
// sent as HTTP Basic authentication; a token source, if configured, adds a
// Bearer Authorization header instead.
type HTTPTransport struct {
	mu            sync.Mutex
	target        *url.URL
	client        *http.Client
	base          http.RoundTripper
	tokenSource   oauth2.TokenSource
	probeStatuses []int
	logger        *zap.Logger
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithRoundTripper sets the base round tripper. Defaults to a clone of
// http.DefaultTransport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *HTTPTransport) {
		t.base = rt
	}
}

// WithTokenSource authenticates every request with a Bearer token from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(t *HTTPTransport) {
		t.tokenSource = ts
	}
}

// WithProbeStatuses sets the HTTP statuses that Probe accepts as reachable.
// Defaults to 200 and 401: a server that demands credentials is still up.
func WithProbeStatuses(codes ...int) Option {
	return func(t *HTTPTransport) {
		t.probeStatuses = codes
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *HTTPTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewHTTPTransport creates an unprepared HTTPTransport.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		probeStatuses: []int{http.StatusOK, http.StatusUnauthorized},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Prepare implements Transport.
func (t *HTTPTransport) Prepare(params ServerParams) error {
	target, err := BuildTarget(params)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.target != nil && t.target.String() != target.String() {
		t.closeLocked()
	}
	t.target = target
	t.logger.Debug("transport prepared", zap.String("target", target.Redacted()))
	return nil
}

// Target returns the prepared endpoint URL, or nil before Prepare.
func (t *HTTPTransport) Target() *url.URL {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.target == nil {
		return nil
	}
	u := *t.target
	return &u
}

// Probe implements Transport with a GET to the target.
func (t *HTTPTransport) Probe(ctx context.Context) error {
	client, target, err := t.session()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	for _, code := range t.probeStatuses {
		if resp.StatusCode == code {
			t.logger.Debug("probe ok", zap.Int("status", resp.StatusCode))
			return nil
		}
	}
	return &StatusError{StatusCode: resp.StatusCode}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) ([]byte, error) {
	client, target, err := t.session()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxResponseSize {
		return nil, ErrTooLarge
	}
	t.logger.Debug("http exchange",
		zap.Int("status", resp.StatusCode),
		zap.Int("request_bytes", len(body)),
		zap.Int("response_bytes", len(data)),
	)

	// JSON-RPC over HTTP allows error envelopes with non-2xx statuses, so a
	// JSON body is handed back for the codec to judge.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if !isJSON(resp.Header.Get("Content-Type")) || len(data) == 0 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(data)}
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyResponse
	}
	return data, nil
}

// Close implements Transport. The prepared target is kept.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *HTTPTransport) closeLocked() {
	if t.client != nil {
		t.client.CloseIdleConnections()
		t.client = nil
	}
}

// session returns the shared client, creating it on first use, and the
// target URL.
func (t *HTTPTransport) session() (*http.Client, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.target == nil {
		return nil, "", ErrNotPrepared
	}
	if t.client == nil {
		rt := t.base
		if rt == nil {
			rt = http.DefaultTransport.(*http.Transport).Clone()
		}
		if t.tokenSource != nil {
			rt = &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, t.tokenSource),
				Base:   rt,
			}
		}
		t.client = &http.Client{Transport: rt}
	}
	return t.client, t.target.String(), nil
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
