package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petal-labs/toolhost/bridge"
	"github.com/petal-labs/toolhost/dispatch"
	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/schema"
	"github.com/petal-labs/toolhost/tool"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHost(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(tool.Definition{
		Name:        "greet",
		Description: "Say hello",
		InputSchema: schema.Object(schema.Fields{"name": schema.String()}),
		Handler: func(c *tool.CallContext, input any) (tool.Response, error) {
			in := input.(map[string]any)
			return c.Success(map[string]any{"message": "Hello, " + in["name"].(string) + "!", "requestId": c.RequestID}), nil
		},
	})
	reg.MustRegister(tool.Definition{
		Name: "wait",
		Handler: func(c *tool.CallContext, _ any) (tool.Response, error) {
			<-c.Done()
			return tool.Response{}, c.Err()
		},
	})
	reg.MustRegister(tool.Definition{
		Name: "nothing",
		Handler: func(c *tool.CallContext, _ any) (tool.Response, error) {
			return c.NoContent(), nil
		},
	})
	return dispatch.New(reg, nil, dispatch.WithLogger(quietLogger()))
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Host == nil {
		cfg.Host = newTestHost(t)
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return NewServer(cfg)
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %s: %v", w.Body.String(), err)
	}
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Environment != "valid" {
		t.Fatalf("health = %+v, want ok/valid", resp)
	}
	if resp.Tools != 3 {
		t.Fatalf("tools = %d, want 3", resp.Tools)
	}
}

func TestHealthReportsInvalidEnvironment(t *testing.T) {
	environment := env.New(schema.Fields{"API_KEY": schema.String().NonEmpty()}, env.WithMap(nil))
	srv := newTestServer(t, ServerConfig{Environment: environment})

	w := serve(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"environment":"invalid"`) {
		t.Fatalf("body = %s, want invalid environment", w.Body.String())
	}
}

func TestManifest(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodGet, "/api/manifest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var man tool.Manifest
	if err := json.Unmarshal(w.Body.Bytes(), &man); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := man.Names(); len(got) != 3 || got[0] != "greet" {
		t.Fatalf("names = %v, want [greet wait nothing]", got)
	}
}

func TestCallSuccess(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodPost, "/api/call", `{"name":"greet","input":{"name":"Ada"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != tool.ContentTypeJSON {
		t.Fatalf("Content-Type = %q, want %q", ct, tool.ContentTypeJSON)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "Hello, Ada!" {
		t.Fatalf("message = %q, want Hello, Ada!", body["message"])
	}
	if body["requestId"] == "" {
		t.Fatal("requestId is empty, want HTTP request id")
	}
}

func TestCallKeepsCallerRequestID(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodPost, "/api/call",
		`{"name":"greet","input":{"name":"Ada"},"meta":{"requestId":"req-42"}}`)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["requestId"] != "req-42" {
		t.Fatalf("requestId = %q, want req-42", body["requestId"])
	}
}

func TestCallNoContent(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodPost, "/api/call", `{"name":"nothing"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", w.Body.String())
	}
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "unknown tool", body: `{"name":"missing"}`, status: http.StatusNotFound, code: tool.ErrorCodeUnknownTool},
		{name: "invalid input", body: `{"name":"greet","input":{"name":7}}`, status: http.StatusBadRequest, code: tool.ErrorCodeInputInvalid},
		{name: "malformed body", body: `{"name":`, status: http.StatusBadRequest, code: tool.ErrorCodeInvalidRequest},
		{name: "unknown field", body: `{"name":"greet","extra":true}`, status: http.StatusBadRequest, code: tool.ErrorCodeInvalidRequest},
		{name: "trailing data", body: `{"name":"greet"}{}`, status: http.StatusBadRequest, code: tool.ErrorCodeInvalidRequest},
		{name: "trailing brace", body: `{"name":"greet"}}`, status: http.StatusBadRequest, code: tool.ErrorCodeInvalidRequest},
		{name: "missing name", body: `{"input":{}}`, status: http.StatusBadRequest, code: tool.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, ServerConfig{})
			w := serve(srv, http.MethodPost, "/api/call", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestCallBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, ServerConfig{MaxBody: 64})
	body := `{"name":"greet","input":{"name":"` + strings.Repeat("a", 128) + `"}}`
	w := serve(srv, http.MethodPost, "/api/call", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Timeout: 20 * time.Millisecond})
	w := serve(srv, http.MethodPost, "/api/call", `{"name":"wait"}`)
	if w.Code != tool.StatusAborted {
		t.Fatalf("status = %d, want %d", w.Code, tool.StatusAborted)
	}
	if code := errorCode(t, w); code != tool.ErrorCodeAborted {
		t.Fatalf("code = %q, want %q", code, tool.ErrorCodeAborted)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodGet, "/api/call", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

type greetInput struct {
	Name string `json:"name"`
}

func newTestBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "memo", Version: "v0.0.1"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "greet", Description: "Say hello"},
		func(ctx context.Context, req *mcp.CallToolRequest, in greetInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "Hello, " + in.Name + "!"}},
			}, nil, nil
		})
	server.AddResource(&mcp.Resource{URI: "memo://readme", Name: "readme", MIMEType: "text/plain"},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{URI: req.Params.URI, MIMEType: "text/plain", Text: "memo"}},
			}, nil
		})

	b, err := bridge.New(context.Background(), server, &bridge.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("bridge.New() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBridgeRoutes(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Bridges: map[string]Bridge{"Memo": newTestBridge(t)}})

	man := serve(srv, http.MethodGet, "/api/bridges/memo/manifest", "")
	if man.Code != http.StatusOK || !strings.Contains(man.Body.String(), `"greet"`) {
		t.Fatalf("manifest = %d %s", man.Code, man.Body.String())
	}

	call := serve(srv, http.MethodPost, "/api/bridges/memo/call", `{"name":"greet","input":{"name":"Ada"}}`)
	if call.Code != http.StatusOK {
		t.Fatalf("call status = %d, want 200 (body %s)", call.Code, call.Body.String())
	}
	if ct := call.Header().Get("Content-Type"); ct != tool.ContentTypeBridged {
		t.Fatalf("Content-Type = %q, want %q", ct, tool.ContentTypeBridged)
	}
	if origin := call.Header().Get(tool.HeaderOrigin); origin != tool.OriginMCP {
		t.Fatalf("origin = %q, want %q", origin, tool.OriginMCP)
	}
	if !strings.Contains(call.Body.String(), "Hello, Ada!") {
		t.Fatalf("call body = %s, want greeting", call.Body.String())
	}

	res := serve(srv, http.MethodPost, "/api/bridges/memo/resources", `{"uri":"memo://readme"}`)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"memo"`) {
		t.Fatalf("resources = %d %s", res.Code, res.Body.String())
	}
}

func TestUnknownBridge(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	w := serve(srv, http.MethodGet, "/api/bridges/nope/manifest", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if code := errorCode(t, w); code != "UNKNOWN_BRIDGE" {
		t.Fatalf("code = %q, want UNKNOWN_BRIDGE", code)
	}
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedRequest
}

func (f *fakeRecorder) RecordRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsUseRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	srv := newTestServer(t, ServerConfig{Metrics: rec})

	serve(srv, http.MethodPost, "/api/call", `{"name":"missing"}`)
	serve(srv, http.MethodGet, "/api/bridges/nope/manifest", "")

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	want := []recordedRequest{
		{method: http.MethodPost, route: "/api/call", status: http.StatusNotFound},
		{method: http.MethodGet, route: "/api/bridges/{bridge}/manifest", status: http.StatusNotFound},
	}
	for i, w := range want {
		if rec.records[i] != w {
			t.Fatalf("records[%d] = %+v, want %+v", i, rec.records[i], w)
		}
	}
}

func TestNewServerDefaults(t *testing.T) {
	srv := NewServer(ServerConfig{})
	if srv.timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want %v", srv.timeout, DefaultTimeout)
	}
	if srv.maxBody != DefaultMaxBody {
		t.Fatalf("maxBody = %d, want %d", srv.maxBody, DefaultMaxBody)
	}
	if srv.logger == nil {
		t.Fatal("logger = nil, want default")
	}

	w := serve(srv, http.MethodPost, "/api/call", `{"name":"greet"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without host = %d, want 503", w.Code)
	}
}
