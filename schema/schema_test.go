package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestObjectReportsMissingRequiredField(t *testing.T) {
	s := Object(Fields{"name": String()})

	result := s.Validate(map[string]any{})
	if result.OK() {
		t.Fatal("OK() = true, want false")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("issue count = %d, want 1: %#v", len(result.Issues), result.Issues)
	}
	issue := result.Issues[0]
	if issue.Path != "name" || issue.Code != CodeRequired {
		t.Fatalf("issue = %#v, want required issue at name", issue)
	}
}

func TestObjectReportsAllIssuesInStableOrder(t *testing.T) {
	s := Object(Fields{
		"zeta":  Integer(),
		"alpha": String().Min(3),
		"mid":   Boolean(),
	})
	input := map[string]any{"alpha": "x", "mid": "yes", "zeta": 1.5}

	first := s.Validate(input)
	for i := 0; i < 5; i++ {
		again := s.Validate(input)
		if !reflect.DeepEqual(first.Issues, again.Issues) {
			t.Fatalf("pass %d issues = %#v, want %#v", i, again.Issues, first.Issues)
		}
	}

	paths := make([]string, 0, len(first.Issues))
	for _, issue := range first.Issues {
		paths = append(paths, issue.Path)
	}
	if want := []string{"alpha", "mid", "zeta"}; !slices.Equal(paths, want) {
		t.Fatalf("issue paths = %v, want %v", paths, want)
	}
}

func TestObjectStripsUnknownKeysUnlessStrict(t *testing.T) {
	loose := Object(Fields{"a": String()})
	result := loose.Validate(map[string]any{"a": "x", "b": "y"})
	if !result.OK() {
		t.Fatalf("loose issues = %#v, want none", result.Issues)
	}
	if got := result.Value.(map[string]any); !reflect.DeepEqual(got, map[string]any{"a": "x"}) {
		t.Fatalf("loose value = %#v, want only a", got)
	}

	strict := Object(Fields{"a": String()}).Strict()
	result = strict.Validate(map[string]any{"a": "x", "b": "y"})
	if result.OK() {
		t.Fatal("strict OK() = true, want false")
	}
	if result.Issues[0].Code != CodeUnrecognizedKey || result.Issues[0].Path != "b" {
		t.Fatalf("strict issue = %#v, want unrecognized key b", result.Issues[0])
	}
}

func TestNestedPaths(t *testing.T) {
	s := Object(Fields{
		"items": Array(Object(Fields{"id": Integer()})),
	})
	input := map[string]any{
		"items": []any{
			map[string]any{"id": json.Number("1")},
			map[string]any{"id": "two"},
		},
	}

	result := s.Validate(input)
	if len(result.Issues) != 1 {
		t.Fatalf("issues = %#v, want 1", result.Issues)
	}
	if result.Issues[0].Path != "items[1].id" {
		t.Fatalf("path = %q, want items[1].id", result.Issues[0].Path)
	}
}

func TestNumericCoercion(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		input  any
		want   any
		ok     bool
	}{
		{name: "integer from json number", schema: Integer(), input: json.Number("42"), want: int64(42), ok: true},
		{name: "integer rejects fraction", schema: Integer(), input: json.Number("4.2"), ok: false},
		{name: "integer rejects string without coerce", schema: Integer(), input: "42", ok: false},
		{name: "integer coerces string", schema: Integer().Coerce(), input: " 42 ", want: int64(42), ok: true},
		{name: "number from int", schema: Number(), input: 3, want: float64(3), ok: true},
		{name: "number bounds", schema: Number().Min(1).Max(2), input: 3.5, ok: false},
		{name: "boolean coerces", schema: Boolean().Coerce(), input: "true", want: true, ok: true},
		{name: "boolean rejects string", schema: Boolean(), input: "true", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.schema.Validate(tt.input)
			if result.OK() != tt.ok {
				t.Fatalf("OK() = %v, want %v (issues=%#v)", result.OK(), tt.ok, result.Issues)
			}
			if tt.ok && result.Value != tt.want {
				t.Fatalf("value = %#v, want %#v", result.Value, tt.want)
			}
		})
	}
}

func TestOptionalAndDefault(t *testing.T) {
	s := Object(Fields{
		"nickname": Optional(String()),
		"port":     Default(Integer().Coerce(), "8080"),
	})

	result := s.Validate(map[string]any{})
	if !result.OK() {
		t.Fatalf("issues = %#v, want none", result.Issues)
	}
	got := result.Value.(map[string]any)
	if _, ok := got["nickname"]; ok {
		t.Fatalf("nickname present in %#v, want omitted", got)
	}
	if got["port"] != int64(8080) {
		t.Fatalf("port = %#v, want 8080", got["port"])
	}
}

func TestEnum(t *testing.T) {
	s := Enum("debug", "info")
	if !s.Validate("info").OK() {
		t.Fatal("Validate(info) not OK")
	}
	result := s.Validate("trace")
	if result.OK() || result.Issues[0].Code != CodeInvalidEnum {
		t.Fatalf("Validate(trace) = %#v, want invalid enum", result)
	}
}

func TestDescribe(t *testing.T) {
	s := Object(Fields{
		"name":  Described(String().NonEmpty(), "who to greet"),
		"times": Optional(Integer().Min(1)),
		"tags":  Array(String()),
	})

	desc := s.Describe()
	if desc.Type != "object" {
		t.Fatalf("type = %q, want object", desc.Type)
	}
	if want := []string{"name", "tags"}; !slices.Equal(desc.Required, want) {
		t.Fatalf("required = %v, want %v", desc.Required, want)
	}
	if desc.Properties["name"].Description != "who to greet" {
		t.Fatalf("name description = %q", desc.Properties["name"].Description)
	}
	if desc.Properties["tags"].Items == nil || desc.Properties["tags"].Items.Type != "string" {
		t.Fatalf("tags items = %#v, want string items", desc.Properties["tags"].Items)
	}
	if _, err := json.Marshal(desc); err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
}

func TestJSONSchemaVariant(t *testing.T) {
	s, err := FromJSONSchema(&jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"city": {Type: "string"},
		},
		Required: []string{"city"},
	})
	if err != nil {
		t.Fatalf("FromJSONSchema() error = %v", err)
	}

	if result := s.Validate(map[string]any{"city": "Paris"}); !result.OK() {
		t.Fatalf("valid input issues = %#v", result.Issues)
	}
	result := s.Validate(map[string]any{})
	if result.OK() {
		t.Fatal("OK() = true for missing city, want false")
	}
	if result.Issues[0].Code != CodeSchemaViolation {
		t.Fatalf("code = %q, want %q", result.Issues[0].Code, CodeSchemaViolation)
	}
	if s.Describe().Type != "object" {
		t.Fatalf("Describe().Type = %q, want object", s.Describe().Type)
	}
}

func TestDecodeJSON(t *testing.T) {
	value, err := DecodeJSON([]byte(`{"n": 12345678901234567}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	n := value.(map[string]any)["n"]
	if n != json.Number("12345678901234567") {
		t.Fatalf("n = %#v, want exact json.Number", n)
	}

	if value, err := DecodeJSON(nil); err != nil || value != nil {
		t.Fatalf("DecodeJSON(nil) = %#v, %v; want nil, nil", value, err)
	}
	for _, raw := range []string{`{} {}`, `{"name":"Ada"}}`, `[1]]`, `{} x`} {
		if _, err := DecodeJSON([]byte(raw)); err == nil {
			t.Fatalf("DecodeJSON(%s) error = nil, want error", raw)
		}
	}
	if _, err := DecodeJSON([]byte("{}\n")); err != nil {
		t.Fatalf("DecodeJSON(trailing newline) error = %v, want nil", err)
	}
}

func TestCheckAndDecode(t *testing.T) {
	type greeting struct {
		Name string `json:"name"`
	}
	value, err := Check(Object(Fields{"name": String()}), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	var g greeting
	if err := Decode(value, &g); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if g.Name != "Ada" {
		t.Fatalf("Name = %q, want Ada", g.Name)
	}

	_, err = Check(String(), 1)
	var verr *ValidationError
	if err == nil {
		t.Fatal("Check(String, 1) error = nil")
	}
	if !errors.As(err, &verr) || len(verr.Issues) != 1 {
		t.Fatalf("Check error = %v, want *ValidationError with one issue", err)
	}
}
