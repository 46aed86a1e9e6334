package tool

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
)

// Content types and headers set on responses.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeBridged = "application/mcp+json"

	HeaderContentType = "Content-Type"
	HeaderOrigin      = "X-Tool-Origin"

	OriginNative = "native"
	OriginMCP    = "mcp"
)

// StatusAborted is the status reported when cancellation wins the race
// against the handler.
const StatusAborted = http.StatusGatewayTimeout

// Response is the single outcome shape of every invocation path.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       json.RawMessage   `json:"body"`
	Headers    map[string]string `json:"headers"`
}

// IsZero reports whether r was never built, e.g. a handler returned Response{}.
func (r Response) IsZero() bool {
	return r.StatusCode == 0 && len(r.Body) == 0 && len(r.Headers) == 0
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns one header value.
func (r Response) Header(key string) string {
	return r.Headers[key]
}

// Decode unmarshals the body into target.
func (r Response) Decode(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Clone returns a copy with its own header map and body slice.
func (r Response) Clone() Response {
	out := r
	out.Body = append(json.RawMessage(nil), r.Body...)
	out.Headers = maps.Clone(r.Headers)
	return out
}

type responseOptions struct {
	status  int
	headers map[string]string
}

// ResponseOption customizes Failure.
type ResponseOption func(*responseOptions)

// WithStatus sets the response status.
func WithStatus(status int) ResponseOption {
	return func(o *responseOptions) {
		o.status = status
	}
}

// WithHeader adds one response header.
func WithHeader(key, value string) ResponseOption {
	return func(o *responseOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// Success builds a 200 response with data encoded as JSON.
func Success(data any) Response {
	return build(http.StatusOK, data, nil)
}

// Failure builds a domain-level failure with data encoded as JSON.
// The status defaults to 500.
func Failure(data any, opts ...ResponseOption) Response {
	o := responseOptions{status: http.StatusInternalServerError}
	for _, opt := range opts {
		opt(&o)
	}
	if o.status < 100 || o.status > 599 {
		o.status = http.StatusInternalServerError
	}
	return build(o.status, data, o.headers)
}

// NoContent builds a 204 response with a JSON null body.
func NoContent() Response {
	return Response{
		StatusCode: http.StatusNoContent,
		Body:       json.RawMessage("null"),
		Headers:    jsonHeaders(nil),
	}
}

// Empty is the canonical response for a handler that produced nothing.
func Empty() Response {
	return Response{
		StatusCode: http.StatusOK,
		Body:       json.RawMessage("{}"),
		Headers:    jsonHeaders(nil),
	}
}

type errorEnvelope struct {
	Error *Error `json:"error"`
}

// ErrorResponse builds the standard error envelope {"error": {...}}.
func ErrorResponse(status int, err *Error) Response {
	if err == nil {
		err = NewError(ErrorCodeHandlerException, http.StatusText(status), nil)
	}
	return build(status, errorEnvelope{Error: err}, nil)
}

// BridgedResponse wraps a raw reply from a bridged protocol server.
func BridgedResponse(status int, raw json.RawMessage) Response {
	if len(raw) == 0 || !json.Valid(raw) {
		raw = json.RawMessage("null")
	}
	return Response{
		StatusCode: status,
		Body:       raw,
		Headers: map[string]string{
			HeaderContentType: ContentTypeBridged,
			HeaderOrigin:      OriginMCP,
		},
	}
}

func build(status int, data any, headers map[string]string) Response {
	body, err := json.Marshal(data)
	if err != nil {
		fallback, _ := json.Marshal(errorEnvelope{Error: NewError(
			ErrorCodeEncodeFailure,
			fmt.Sprintf("encode response: %v", err),
			err,
		)})
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       fallback,
			Headers:    jsonHeaders(nil),
		}
	}
	return Response{
		StatusCode: status,
		Body:       body,
		Headers:    jsonHeaders(headers),
	}
}

func jsonHeaders(extra map[string]string) map[string]string {
	headers := make(map[string]string, len(extra)+1)
	for key, value := range extra {
		headers[key] = value
	}
	headers[HeaderContentType] = ContentTypeJSON
	return headers
}
