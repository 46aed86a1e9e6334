package tool

import (
	"context"
	"encoding/json"

	"github.com/petal-labs/toolhost/env"
)

// CallRequest is the transport-agnostic invocation payload.
type CallRequest struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

// ResourceRequest asks a bridged server to read one resource.
type ResourceRequest struct {
	URI   string          `json:"uri"`
	Input json.RawMessage `json:"input,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

// NewCallRequest marshals input into a CallRequest.
func NewCallRequest(name string, input any) (CallRequest, error) {
	req := CallRequest{Name: name}
	if input == nil {
		return req, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return CallRequest{}, err
	}
	req.Input = raw
	return req, nil
}

// CallContext is handed to a handler for exactly one invocation.
//
// The embedded context carries the call's cancellation signal; handlers doing
// long work should watch Done. Env is the process-wide validated environment
// and must be treated as read-only.
type CallContext struct {
	context.Context

	ToolName  string
	RequestID string
	Meta      map[string]any
	Env       env.Values
}

// Success builds a 200 response carrying data as JSON.
func (c *CallContext) Success(data any) Response {
	return Success(data)
}

// Failure builds an error response carrying data as JSON. Status defaults to 500.
func (c *CallContext) Failure(data any, opts ...ResponseOption) Response {
	return Failure(data, opts...)
}

// NoContent builds an empty 204 response.
func (c *CallContext) NoContent() Response {
	return NoContent()
}

// HandlerFunc runs a tool against validated input.
//
// Returning an error, or panicking, produces a HANDLER_EXCEPTION response.
// Returning the zero Response produces the canonical empty success.
type HandlerFunc func(c *CallContext, input any) (Response, error)
