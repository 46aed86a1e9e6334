package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
)

// StringSchema accepts string values.
type StringSchema struct {
	minLen  *int
	maxLen  *int
	pattern *regexp.Regexp
}

// String returns a schema accepting any string.
func String() *StringSchema {
	return &StringSchema{}
}

// Min requires at least n characters.
func (s *StringSchema) Min(n int) *StringSchema {
	s.minLen = &n
	return s
}

// Max allows at most n characters.
func (s *StringSchema) Max(n int) *StringSchema {
	s.maxLen = &n
	return s
}

// NonEmpty is shorthand for Min(1).
func (s *StringSchema) NonEmpty() *StringSchema {
	return s.Min(1)
}

// Pattern requires the value to match expr. It panics if expr does not compile.
func (s *StringSchema) Pattern(expr string) *StringSchema {
	s.pattern = regexp.MustCompile(expr)
	return s
}

func (s *StringSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	str, ok := value.(string)
	if !ok {
		return typeMismatch("string", value)
	}

	var issues []Issue
	length := utf8.RuneCountInString(str)
	if s.minLen != nil && length < *s.minLen {
		issues = append(issues, Issue{
			Code:    CodeTooSmall,
			Message: fmt.Sprintf("String must contain at least %d character(s)", *s.minLen),
		})
	}
	if s.maxLen != nil && length > *s.maxLen {
		issues = append(issues, Issue{
			Code:    CodeTooBig,
			Message: fmt.Sprintf("String must contain at most %d character(s)", *s.maxLen),
		})
	}
	if s.pattern != nil && !s.pattern.MatchString(str) {
		issues = append(issues, Issue{
			Code:    CodeInvalidString,
			Message: fmt.Sprintf("String must match pattern %s", s.pattern.String()),
		})
	}
	if len(issues) > 0 {
		return Result{Issues: issues}
	}
	return valid(str)
}

func (s *StringSchema) Describe() *jsonschema.Schema {
	out := &jsonschema.Schema{Type: "string"}
	if s.minLen != nil {
		out.MinLength = intPtr(*s.minLen)
	}
	if s.maxLen != nil {
		out.MaxLength = intPtr(*s.maxLen)
	}
	if s.pattern != nil {
		out.Pattern = s.pattern.String()
	}
	return out
}

// NumberSchema accepts floating point numbers and produces float64.
type NumberSchema struct {
	min    *float64
	max    *float64
	coerce bool
}

// Number returns a schema accepting any JSON number.
func Number() *NumberSchema {
	return &NumberSchema{}
}

// Min requires value >= n.
func (s *NumberSchema) Min(n float64) *NumberSchema {
	s.min = &n
	return s
}

// Max requires value <= n.
func (s *NumberSchema) Max(n float64) *NumberSchema {
	s.max = &n
	return s
}

// Coerce additionally accepts numeric strings, as read from the environment.
func (s *NumberSchema) Coerce() *NumberSchema {
	s.coerce = true
	return s
}

func (s *NumberSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	if s.coerce {
		if parsed, ok := parseNumberString(value); ok {
			value = parsed
		}
	}
	f, ok := asFloat(value)
	if !ok {
		return typeMismatch("number", value)
	}
	if issues := checkBounds(f, s.min, s.max); len(issues) > 0 {
		return Result{Issues: issues}
	}
	return valid(f)
}

func (s *NumberSchema) Describe() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Minimum: s.min, Maximum: s.max}
}

// IntegerSchema accepts whole numbers and produces int64.
type IntegerSchema struct {
	min    *float64
	max    *float64
	coerce bool
}

// Integer returns a schema accepting whole numbers.
func Integer() *IntegerSchema {
	return &IntegerSchema{}
}

// Min requires value >= n.
func (s *IntegerSchema) Min(n int64) *IntegerSchema {
	f := float64(n)
	s.min = &f
	return s
}

// Max requires value <= n.
func (s *IntegerSchema) Max(n int64) *IntegerSchema {
	f := float64(n)
	s.max = &f
	return s
}

// Coerce additionally accepts integer strings, as read from the environment.
func (s *IntegerSchema) Coerce() *IntegerSchema {
	s.coerce = true
	return s
}

func (s *IntegerSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	if s.coerce {
		if parsed, ok := parseNumberString(value); ok {
			value = parsed
		}
	}
	if _, isNumber := asFloat(value); !isNumber {
		return typeMismatch("integer", value)
	}
	i, ok := asInteger(value)
	if !ok {
		return invalid(CodeInvalidType, "Expected integer, received float")
	}
	if issues := checkBounds(float64(i), s.min, s.max); len(issues) > 0 {
		return Result{Issues: issues}
	}
	return valid(i)
}

func (s *IntegerSchema) Describe() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Minimum: s.min, Maximum: s.max}
}

func checkBounds(f float64, min, max *float64) []Issue {
	var issues []Issue
	if min != nil && f < *min {
		issues = append(issues, Issue{
			Code:    CodeTooSmall,
			Message: "Number must be greater than or equal to " + formatFloat(*min),
		})
	}
	if max != nil && f > *max {
		issues = append(issues, Issue{
			Code:    CodeTooBig,
			Message: "Number must be less than or equal to " + formatFloat(*max),
		})
	}
	return issues
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// BooleanSchema accepts booleans.
type BooleanSchema struct {
	coerce bool
}

// Boolean returns a schema accepting true or false.
func Boolean() *BooleanSchema {
	return &BooleanSchema{}
}

// Coerce additionally accepts strings understood by strconv.ParseBool.
func (s *BooleanSchema) Coerce() *BooleanSchema {
	s.coerce = true
	return s
}

func (s *BooleanSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	if b, ok := value.(bool); ok {
		return valid(b)
	}
	if str, ok := value.(string); ok && s.coerce {
		if b, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
			return valid(b)
		}
	}
	return typeMismatch("boolean", value)
}

func (s *BooleanSchema) Describe() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean"}
}

// EnumSchema accepts one of a fixed set of strings.
type EnumSchema struct {
	values []string
}

// Enum returns a schema accepting exactly one of values.
func Enum(values ...string) *EnumSchema {
	return &EnumSchema{values: slices.Clone(values)}
}

func (s *EnumSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	str, ok := value.(string)
	if !ok {
		return typeMismatch("string", value)
	}
	if !slices.Contains(s.values, str) {
		return invalid(CodeInvalidEnum, fmt.Sprintf("Expected one of %s, received %q", strings.Join(s.values, ", "), str))
	}
	return valid(str)
}

func (s *EnumSchema) Describe() *jsonschema.Schema {
	enum := make([]any, 0, len(s.values))
	for _, v := range s.values {
		enum = append(enum, v)
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

type anySchema struct{}

// Any accepts every value, including an absent one.
func Any() Schema {
	return anySchema{}
}

func (anySchema) Validate(value any) Result { return valid(value) }

func (anySchema) Describe() *jsonschema.Schema { return &jsonschema.Schema{} }

func (anySchema) acceptsAbsent() bool { return true }

func intPtr(n int) *int {
	return &n
}
