// Package dispatch turns a CallRequest into exactly one Response.
//
// Every failure mode (unknown tool, invalid environment, invalid input,
// handler error or panic, cancellation) is converted into an error
// response; HandleToolCall never returns an error and never panics.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/schema"
	"github.com/petal-labs/toolhost/tool"
)

// MetaRequestID is the meta key a caller may use to supply its own request ID.
const MetaRequestID = "requestId"

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sends call observations to observer instead of the
// process-wide tool observer.
func WithObserver(observer tool.Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// WithTimeout bounds each handler run when the caller's context carries no
// deadline of its own. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout >= 0 {
			d.timeout = timeout
		}
	}
}

// WithRequestIDFunc overrides request ID generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newRequestID = fn
		}
	}
}

// Dispatcher resolves, validates, and runs tool calls against a registry.
type Dispatcher struct {
	registry     *tool.Registry
	env          *env.Environment
	logger       *slog.Logger
	timeout      time.Duration
	observer     tool.Observer
	newRequestID func() string
}

// New returns a Dispatcher over registry. A nil environment declares nothing.
func New(registry *tool.Registry, environment *env.Environment, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = tool.NewRegistry()
	}
	d := &Dispatcher{
		registry:     registry,
		env:          environment,
		logger:       slog.Default(),
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *tool.Registry {
	return d.registry
}

// Manifest describes the registry's tools.
func (d *Dispatcher) Manifest() tool.Manifest {
	return d.registry.Manifest()
}

// HandleToolCall runs one invocation and always returns a Response.
//
// The registry is sealed on the first call. When ctx is cancelled (or the
// configured timeout elapses) before the handler finishes, the call
// resolves to an ABORTED response and the handler's late result is dropped.
func (d *Dispatcher) HandleToolCall(ctx context.Context, req tool.CallRequest) tool.Response {
	d.registry.Seal()

	started := time.Now()
	requestID := d.requestID(req.Meta)
	resp := d.dispatch(ctx, req, requestID)

	obs := tool.CallObservation{
		ToolName:   req.Name,
		Origin:     tool.OriginNative,
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		ErrorCode:  responseErrorCode(resp),
		Duration:   time.Since(started),
	}
	d.observe(obs)
	d.log(obs)
	return resp
}

// observe reports obs. A panicking observer is logged and otherwise ignored.
func (d *Dispatcher) observe(obs tool.CallObservation) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool observer panicked", "tool", obs.ToolName, "panic", r)
		}
	}()
	if d.observer != nil {
		d.observer.ObserveCall(obs)
		return
	}
	tool.ObserveCall(obs)
}

func (d *Dispatcher) dispatch(ctx context.Context, req tool.CallRequest, requestID string) tool.Response {
	def, ok := d.registry.Get(req.Name)
	if !ok {
		return tool.ErrorResponse(http.StatusNotFound, tool.NewError(
			tool.ErrorCodeUnknownTool,
			fmt.Sprintf("unknown tool %q", req.Name),
			nil,
		))
	}

	values, err := d.env.Values()
	if err != nil {
		toolErr := tool.NewError(tool.ErrorCodeEnvironmentInvalid, "environment failed validation", err)
		var envErr *env.ValidationError
		if errors.As(err, &envErr) {
			toolErr.WithIssues(envErr.Issues)
		}
		return tool.ErrorResponse(http.StatusInternalServerError, toolErr)
	}

	input, issues := validateInput(def.InputSchema, req.Input)
	if len(issues) > 0 {
		return tool.ErrorResponse(http.StatusBadRequest,
			tool.NewError(tool.ErrorCodeInputInvalid, "input failed validation", nil).WithIssues(issues))
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if ctx.Err() != nil {
		return aborted(ctx.Err())
	}

	call := &tool.CallContext{
		Context:   ctx,
		ToolName:  def.Name,
		RequestID: requestID,
		Meta:      req.Meta,
		Env:       values,
	}
	return d.run(ctx, def.Handler, call, input)
}

func validateInput(s schema.Schema, raw []byte) (any, []schema.Issue) {
	value, err := schema.DecodeJSON(raw)
	if err != nil {
		return nil, []schema.Issue{{
			Message: fmt.Sprintf("Invalid JSON: %v", err),
			Code:    schema.CodeInvalidJSON,
		}}
	}
	result := s.Validate(value)
	if !result.OK() {
		return nil, result.Issues
	}
	return result.Value, nil
}

type outcome struct {
	resp tool.Response
	err  error
}

// run executes handler on its own goroutine so cancellation can win the race.
// Panics raised on that goroutine are converted into errors; goroutines the
// handler starts itself are outside this containment.
func (d *Dispatcher) run(ctx context.Context, handler tool.HandlerFunc, call *tool.CallContext, input any) tool.Response {
	done := make(chan outcome, 1)
	go func() {
		completed := false
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool handler panicked",
					"tool", call.ToolName,
					"request_id", call.RequestID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- outcome{err: panicError(r)}
				return
			}
			if !completed {
				// runtime.Goexit unwinds without a panic value.
				done <- outcome{err: errors.New("handler exited without returning")}
			}
		}()
		resp, err := handler(call, input)
		completed = true
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return aborted(ctx.Err())
	case out := <-done:
		if out.err != nil {
			return tool.ErrorResponse(http.StatusInternalServerError,
				tool.NewError(tool.ErrorCodeHandlerException, out.err.Error(), out.err))
		}
		return normalize(out.resp)
	}
}

// normalize makes a handler's Response writable: a status in 100-599, a
// valid JSON body, and a Content-Type header.
func normalize(resp tool.Response) tool.Response {
	if resp.IsZero() {
		return tool.Empty()
	}
	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		return tool.ErrorResponse(http.StatusInternalServerError, tool.NewError(
			tool.ErrorCodeHandlerException,
			fmt.Sprintf("handler returned invalid status %d", resp.StatusCode),
			nil,
		))
	}
	if len(resp.Body) == 0 {
		resp.Body = json.RawMessage("{}")
	} else if !json.Valid(resp.Body) {
		return tool.ErrorResponse(http.StatusInternalServerError, tool.NewError(
			tool.ErrorCodeEncodeFailure,
			"handler returned a body that is not valid JSON",
			nil,
		))
	}
	if resp.Header(tool.HeaderContentType) == "" {
		headers := make(map[string]string, len(resp.Headers)+1)
		for k, v := range resp.Headers {
			headers[k] = v
		}
		headers[tool.HeaderContentType] = tool.ContentTypeJSON
		resp.Headers = headers
	}
	return resp
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("handler panic: %w", err)
	}
	return fmt.Errorf("handler panic: %v", r)
}

func aborted(cause error) tool.Response {
	msg := "call aborted"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "call timed out"
	}
	return tool.ErrorResponse(tool.StatusAborted, tool.NewError(tool.ErrorCodeAborted, msg, cause))
}

func (d *Dispatcher) requestID(meta map[string]any) string {
	if id, ok := meta[MetaRequestID].(string); ok && id != "" {
		return id
	}
	return d.newRequestID()
}

func (d *Dispatcher) log(obs tool.CallObservation) {
	attrs := []any{
		"tool", obs.ToolName,
		"request_id", obs.RequestID,
		"status", obs.StatusCode,
		"duration_ms", obs.Duration.Milliseconds(),
	}
	switch {
	case obs.StatusCode >= http.StatusInternalServerError:
		d.logger.Warn("tool call failed", append(attrs, "error_code", obs.ErrorCode)...)
	case obs.ErrorCode != "":
		d.logger.Warn("tool call rejected", append(attrs, "error_code", obs.ErrorCode)...)
	default:
		d.logger.Debug("tool call", attrs...)
	}
}

// responseErrorCode extracts error.code from a standard error envelope.
func responseErrorCode(resp tool.Response) string {
	if resp.OK() {
		return ""
	}
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := resp.Decode(&envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return envelope.Error.Code
}
