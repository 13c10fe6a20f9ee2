package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
)

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name   string
		params ServerParams
		want   string
	}{
		{"no user", ServerParams{Host: "h", Port: 8080}, "http://h:8080/jsonrpc"},
		{"user only", ServerParams{Host: "h", Port: 8080, User: "u"}, "http://u@h:8080/jsonrpc"},
		{"user and pass", ServerParams{Host: "h", Port: 8080, User: "u", Pass: "x"}, "http://u:x@h:8080/jsonrpc"},
		{"pass without user", ServerParams{Host: "h", Port: 8080, Pass: "x"}, "http://h:8080/jsonrpc"},
		{"https", ServerParams{Scheme: "HTTPS", Host: "h", Port: 443}, "https://h:443/jsonrpc"},
		{"custom path", ServerParams{Host: "h", Port: 1, Path: "rpc"}, "http://h:1/rpc"},
		{"ipv6", ServerParams{Host: "::1", Port: 9090}, "http://[::1]:9090/jsonrpc"},
		{"escaped credentials", ServerParams{Host: "h", Port: 80, User: "a b", Pass: "p@ss"}, "http://a%20b:p%40ss@h:80/jsonrpc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildTarget(tt.params)
			if err != nil {
				t.Fatalf("BuildTarget: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildTargetInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params ServerParams
	}{
		{"no host", ServerParams{Port: 80}},
		{"blank host", ServerParams{Host: "  ", Port: 80}},
		{"host with path", ServerParams{Host: "h/x", Port: 80}},
		{"zero port", ServerParams{Host: "h"}},
		{"port too large", ServerParams{Host: "h", Port: 70000}},
		{"bad scheme", ServerParams{Scheme: "ftp", Host: "h", Port: 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildTarget(tt.params); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("got error %v, want %v", err, ErrInvalidTarget)
			}
		})
	}
}

// paramsFor returns ServerParams pointing at the test server.
func paramsFor(t *testing.T, serverURL string) ServerParams {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return ServerParams{Host: u.Hostname(), Port: port}
}

func TestHTTPTransportSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("got path %s, want /jsonrpc", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type header to be application/json")
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "kodi" || pass != "secret" {
			t.Errorf("got basic auth %q %q %v", user, pass, ok)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"ping":1}` {
			t.Errorf("got body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"pong":1}`)
	}))
	defer server.Close()

	params := paramsFor(t, server.URL)
	params.User, params.Pass = "kodi", "secret"

	tr := NewHTTPTransport(WithLogger(zaptest.NewLogger(t)))
	if err := tr.Prepare(params); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	got, err := tr.Send(context.Background(), []byte(`{"ping":1}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(got) != `{"pong":1}` {
		t.Errorf("got %s", got)
	}
}

func TestHTTPTransportReusesClient(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	server.Start()
	defer server.Close()

	tr := NewHTTPTransport()
	if err := tr.Prepare(paramsFor(t, server.URL)); err != nil {
		t.Fatal(err)
	}
	first, _, _ := tr.session()
	for i := 0; i < 3; i++ {
		if _, err := tr.Send(context.Background(), []byte(`{}`)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	second, _, _ := tr.session()
	if first != second {
		t.Error("expected the http client to be reused")
	}
	if got := conns.Load(); got != 1 {
		t.Errorf("got %d connections, want 1", got)
	}

	tr.Close()
	third, _, _ := tr.session()
	if third == first {
		t.Error("expected a new http client after Close")
	}
}

func TestHTTPTransportNotPrepared(t *testing.T) {
	tr := NewHTTPTransport()
	if _, err := tr.Send(context.Background(), []byte(`{}`)); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Send: got %v, want %v", err, ErrNotPrepared)
	}
	if err := tr.Probe(context.Background()); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Probe: got %v, want %v", err, ErrNotPrepared)
	}
	if tr.Target() != nil {
		t.Error("expected nil target before Prepare")
	}
}

func TestHTTPTransportSendStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
		wantErr     error
		wantBody    string
	}{
		{"ok", http.StatusOK, "application/json", `{"result":1}`, 0, nil, `{"result":1}`},
		{"json error status", http.StatusInternalServerError, "application/json; charset=utf-8", `{"error":{}}`, 0, nil, `{"error":{}}`},
		{"html error status", http.StatusUnauthorized, "text/html", `<h1>401</h1>`, http.StatusUnauthorized, nil, ""},
		{"json empty error status", http.StatusBadGateway, "application/json", ``, http.StatusBadGateway, nil, ""},
		{"empty ok", http.StatusOK, "application/json", ``, 0, ErrEmptyResponse, ""},
		{"whitespace ok", http.StatusOK, "application/json", "  \n", 0, ErrEmptyResponse, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			tr := NewHTTPTransport()
			if err := tr.Prepare(paramsFor(t, server.URL)); err != nil {
				t.Fatal(err)
			}
			got, err := tr.Send(context.Background(), []byte(`{}`))
			switch {
			case tt.wantStatus != 0:
				var se *StatusError
				if !errors.As(err, &se) || se.StatusCode != tt.wantStatus {
					t.Errorf("got error %v, want status %d", err, tt.wantStatus)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got error %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("Send: %v", err)
				}
				if string(got) != tt.wantBody {
					t.Errorf("got body %s, want %s", got, tt.wantBody)
				}
			}
		})
	}
}

func TestHTTPTransportProbe(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET probe, got %s", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			tr := NewHTTPTransport()
			if err := tr.Prepare(paramsFor(t, server.URL)); err != nil {
				t.Fatal(err)
			}
			err := tr.Probe(context.Background())
			if tt.ok && err != nil {
				t.Errorf("Probe: %v", err)
			}
			var se *StatusError
			if !tt.ok && (!errors.As(err, &se) || se.StatusCode != tt.status) {
				t.Errorf("got error %v, want status %d", err, tt.status)
			}
		})
	}
}

func TestHTTPTransportProbeCustomStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	tr := NewHTTPTransport(WithProbeStatuses(http.StatusMethodNotAllowed))
	if err := tr.Prepare(paramsFor(t, server.URL)); err != nil {
		t.Fatal(err)
	}
	if err := tr.Probe(context.Background()); err != nil {
		t.Errorf("Probe: %v", err)
	}
}

func TestHTTPTransportProbeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	params := paramsFor(t, server.URL)
	server.Close()

	tr := NewHTTPTransport()
	if err := tr.Prepare(params); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Probe(ctx); err == nil {
		t.Error("expected error probing a closed server")
	}
}

func TestHTTPTransportBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("got Authorization %q", got)
		}
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	params := paramsFor(t, server.URL)
	params.User = "ignored"
	tr := NewHTTPTransport(WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123"})))
	if err := tr.Prepare(params); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Send(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestHTTPTransportPrepareRetarget(t *testing.T) {
	tr := NewHTTPTransport()
	if err := tr.Prepare(ServerParams{Host: "a", Port: 1}); err != nil {
		t.Fatal(err)
	}
	first, _, _ := tr.session()
	if err := tr.Prepare(ServerParams{Host: "a", Port: 1}); err != nil {
		t.Fatal(err)
	}
	if same, _, _ := tr.session(); same != first {
		t.Error("re-preparing the same target should keep the client")
	}
	if err := tr.Prepare(ServerParams{Host: "b", Port: 2}); err != nil {
		t.Fatal(err)
	}
	if other, _, _ := tr.session(); other == first {
		t.Error("preparing a new target should drop the old client")
	}
	if got := tr.Target().String(); !strings.HasPrefix(got, "http://b:2") {
		t.Errorf("got target %s", got)
	}
	if err := tr.Prepare(ServerParams{}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("got %v, want %v", err, ErrInvalidTarget)
	}
}
