// Package schema validates dynamic values against declared shapes.
//
// A Schema both validates (returning a coerced value or the full list of
// issues) and describes itself as a JSON Schema document. The same schemas
// are used for process environment variables and for per-call tool input.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Issue codes reported by the built-in schema variants.
const (
	CodeRequired        = "REQUIRED"
	CodeInvalidType     = "INVALID_TYPE"
	CodeTooSmall        = "TOO_SMALL"
	CodeTooBig          = "TOO_BIG"
	CodeInvalidString   = "INVALID_STRING"
	CodeInvalidEnum     = "INVALID_ENUM"
	CodeUnrecognizedKey = "UNRECOGNIZED_KEY"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeSchemaViolation = "SCHEMA_VIOLATION"
)

// Schema validates a value and describes the accepted shape.
type Schema interface {
	// Validate checks value and returns the coerced value or the issues found.
	// Validate must not retain or mutate value.
	Validate(value any) Result
	// Describe returns a JSON Schema descriptor for manifests.
	Describe() *jsonschema.Schema
}

// Fields maps object keys to their schemas.
type Fields map[string]Schema

// Issue is one validation failure located by path.
//
// Paths use dotted keys and [i] indices, e.g. "items[2].name". The root
// value has an empty path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Result is the outcome of a validation pass.
type Result struct {
	Value  any     `json:"value,omitempty"`
	Issues []Issue `json:"issues,omitempty"`
}

// OK reports whether validation produced no issues.
func (r Result) OK() bool {
	return len(r.Issues) == 0
}

func valid(value any) Result {
	return Result{Value: value}
}

func invalid(code, message string) Result {
	return Result{Issues: []Issue{{Code: code, Message: message}}}
}

func required() Result {
	return invalid(CodeRequired, "Required")
}

func typeMismatch(want string, got any) Result {
	return invalid(CodeInvalidType, fmt.Sprintf("Expected %s, received %s", want, typeName(got)))
}

// optional is implemented by schemas that accept an absent value.
type optional interface {
	acceptsAbsent() bool
}

func isOptional(s Schema) bool {
	o, ok := s.(optional)
	return ok && o.acceptsAbsent()
}

// ValidationError carries the issues of a failed validation as an error.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "schema: validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return "schema: " + strings.Join(parts, "; ")
}

// Check validates value and returns the coerced value or a *ValidationError.
func Check(s Schema, value any) (any, error) {
	result := s.Validate(value)
	if !result.OK() {
		return nil, &ValidationError{Issues: slices.Clone(result.Issues)}
	}
	return result.Value, nil
}

// DecodeJSON decodes raw JSON input preserving number precision.
// Empty input decodes to nil.
func DecodeJSON(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("input must contain a single JSON value")
	}
	return value, nil
}

// Decode binds a validated value onto target, typically a struct pointer.
func Decode(value any, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("schema: encode value: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema: decode value: %w", err)
	}
	return nil
}

func joinPath(base, key string) string {
	switch {
	case base == "":
		return key
	case key == "":
		return base
	case strings.HasPrefix(key, "["):
		return base + key
	default:
		return base + "." + key
	}
}

func indexPath(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func prefixIssues(prefix string, issues []Issue) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		issue.Path = joinPath(prefix, issue.Path)
		out = append(out, issue)
	}
	return out
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
