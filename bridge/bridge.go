// Package bridge exposes an MCP server through the same call contract as
// natively registered tools.
//
// A Bridge connects the server and a client over one duplex channel (an
// in-memory transport pair by default) when it is created, and forwards
// tools/call and resources/read requests across it. Replies come back as
// bridged responses marked with the X-Tool-Origin header.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/petal-labs/toolhost/schema"
	"github.com/petal-labs/toolhost/tool"
)

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("bridge: closed")

// Options configures a Bridge. All fields are optional.
type Options struct {
	// Implementation identifies the bridging client to the server.
	Implementation *mcp.Implementation
	Logger         *slog.Logger
	// Observer receives call observations. Nil uses the process-wide observer.
	Observer tool.Observer
	// Transports returns the client and server ends of the channel. The
	// default is mcp.NewInMemoryTransports.
	Transports func() (client, server mcp.Transport)
}

// Bridge forwards calls to one MCP server over a single long-lived session.
type Bridge struct {
	client   *mcp.ClientSession
	server   *mcp.ServerSession
	logger   *slog.Logger
	observer tool.Observer

	mu       sync.RWMutex
	manifest tool.Manifest
	closed   bool
}

// New connects server and caches its tool list.
func New(ctx context.Context, server *mcp.Server, opts *Options) (*Bridge, error) {
	if server == nil {
		return nil, errors.New("bridge: nil server")
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	impl := opts.Implementation
	if impl == nil {
		impl = &mcp.Implementation{Name: "toolhost-bridge", Version: "v1.0.0"}
	}

	clientTransport, serverTransport := defaultTransports()
	if opts.Transports != nil {
		clientTransport, serverTransport = opts.Transports()
	}

	server.AddReceivingMiddleware(recoverPanics(logger))
	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect server: %w", err)
	}
	cs, err := mcp.NewClient(impl, nil).Connect(ctx, clientTransport, nil)
	if err != nil {
		_ = ss.Close()
		return nil, fmt.Errorf("bridge: connect client: %w", err)
	}

	b := &Bridge{
		client:   cs,
		server:   ss,
		logger:   logger,
		observer: opts.Observer,
		manifest: tool.NewManifest(),
	}
	if err := b.Refresh(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// recoverPanics turns a panic in a server method handler into an error
// result. Handlers run on the session's goroutine, so an unrecovered panic
// would take the whole process down.
func recoverPanics(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (result mcp.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("bridged server panicked", "method", method, "panic", r, "stack", string(debug.Stack()))
					result, err = nil, fmt.Errorf("bridged server panic in %s: %v", method, r)
				}
			}()
			return next(ctx, method, req)
		}
	}
}

func defaultTransports() (mcp.Transport, mcp.Transport) {
	client, server := mcp.NewInMemoryTransports()
	return client, server
}

// Manifest describes the bridged server's tools as of the last Refresh.
func (b *Bridge) Manifest() tool.Manifest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := tool.NewManifest()
	out.Tools = append(out.Tools, b.manifest.Tools...)
	return out
}

// Refresh re-lists the bridged server's tools.
func (b *Bridge) Refresh(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	man := tool.NewManifest()
	var cursor string
	for {
		res, err := b.client.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("bridge: list tools: %w", err)
		}
		for _, t := range res.Tools {
			man.Tools = append(man.Tools, tool.ManifestTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: describeInput(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	b.mu.Lock()
	b.manifest = man
	b.mu.Unlock()
	return nil
}

// HandleToolCall forwards req as a tools/call request.
func (b *Bridge) HandleToolCall(ctx context.Context, req tool.CallRequest) tool.Response {
	started := time.Now()
	resp := b.callTool(ctx, req)
	b.observe(req.Name, req.Meta, resp, time.Since(started))
	return resp
}

func (b *Bridge) callTool(ctx context.Context, req tool.CallRequest) tool.Response {
	args, err := schema.DecodeJSON(req.Input)
	if err != nil {
		return failure(http.StatusBadRequest, tool.NewError(tool.ErrorCodeInputInvalid, "input is not valid JSON", err))
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := b.client.CallTool(ctx, &mcp.CallToolParams{
		Name:      req.Name,
		Arguments: args,
		Meta:      mcp.Meta(req.Meta),
	})
	if err != nil {
		return b.callError(ctx, fmt.Sprintf("call %q", req.Name), err)
	}
	return reply(result, result.IsError)
}

// HandleResources forwards req as a resources/read request.
func (b *Bridge) HandleResources(ctx context.Context, req tool.ResourceRequest) tool.Response {
	started := time.Now()
	var resp tool.Response
	if req.URI == "" {
		resp = failure(http.StatusBadRequest, tool.NewError(tool.ErrorCodeInvalidRequest, "resource uri is required", nil))
	} else {
		result, err := b.client.ReadResource(ctx, &mcp.ReadResourceParams{
			URI:  req.URI,
			Meta: mcp.Meta(req.Meta),
		})
		if err != nil {
			resp = b.callError(ctx, fmt.Sprintf("read %q", req.URI), err)
		} else {
			resp = reply(result, false)
		}
	}
	b.observe(req.URI, req.Meta, resp, time.Since(started))
	return resp
}

// Close tears down both ends of the session. It is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.client.Close()
	if waitErr := b.server.Wait(); waitErr != nil {
		b.logger.Debug("bridge server session ended", "error", waitErr)
	}
	return err
}

func (b *Bridge) callError(ctx context.Context, op string, err error) tool.Response {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return failure(tool.StatusAborted, tool.NewError(tool.ErrorCodeAborted, op+": aborted", ctxErr))
	}
	return failure(http.StatusInternalServerError, tool.NewError(tool.ErrorCodeBridgeFailure, fmt.Sprintf("%s: %v", op, err), err))
}

func (b *Bridge) observe(name string, meta map[string]any, resp tool.Response, elapsed time.Duration) {
	requestID, _ := meta["requestId"].(string)
	obs := tool.CallObservation{
		ToolName:   name,
		Origin:     tool.OriginMCP,
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		Duration:   elapsed,
	}
	if !resp.OK() {
		obs.ErrorCode = tool.ErrorCodeBridgeFailure
		var envelope struct {
			Error *tool.Error `json:"error"`
		}
		if resp.Decode(&envelope) == nil && envelope.Error != nil {
			obs.ErrorCode = envelope.Error.Code
		}
	}
	b.notify(obs)
	if obs.ErrorCode != "" {
		b.logger.Warn("bridged call failed", "target", name, "status", obs.StatusCode, "error_code", obs.ErrorCode)
	}
}

// notify reports obs. A panicking observer is logged and otherwise ignored.
func (b *Bridge) notify(obs tool.CallObservation) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("tool observer panicked", "target", obs.ToolName, "panic", r)
		}
	}()
	if b.observer != nil {
		b.observer.ObserveCall(obs)
		return
	}
	tool.ObserveCall(obs)
}

// reply wraps a protocol result. Results flagged as errors keep their raw
// body but report BRIDGE_FAILURE status.
func reply(result any, isError bool) tool.Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return failure(http.StatusInternalServerError, tool.NewError(tool.ErrorCodeEncodeFailure, "encode bridged reply", err))
	}
	if isError {
		return tool.BridgedResponse(http.StatusInternalServerError, raw)
	}
	return tool.BridgedResponse(http.StatusOK, raw)
}

func failure(status int, toolErr *tool.Error) tool.Response {
	resp := tool.ErrorResponse(status, toolErr)
	resp.Headers[tool.HeaderContentType] = tool.ContentTypeBridged
	resp.Headers[tool.HeaderOrigin] = tool.OriginMCP
	return resp
}

// describeInput converts the wire form of an input schema into a descriptor.
func describeInput(v any) *jsonschema.Schema {
	if v == nil {
		return nil
	}
	if s, ok := v.(*jsonschema.Schema); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}
