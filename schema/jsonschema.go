package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// JSONSchemaSchema validates against a full JSON Schema document.
//
// It is meant for tools whose input contract is already authored as JSON
// Schema. Validation failures are reported as a single root issue because the
// underlying validator returns one aggregated error.
type JSONSchemaSchema struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// FromJSONSchema resolves s for validation.
func FromJSONSchema(s *jsonschema.Schema) (*JSONSchemaSchema, error) {
	if s == nil {
		return nil, fmt.Errorf("schema: nil json schema")
	}
	resolved, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("schema: resolve json schema: %w", err)
	}
	return &JSONSchemaSchema{schema: s, resolved: resolved}, nil
}

// MustJSONSchema is like FromJSONSchema but panics on error.
func MustJSONSchema(s *jsonschema.Schema) *JSONSchemaSchema {
	out, err := FromJSONSchema(s)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseJSONSchema decodes and resolves a JSON Schema document.
func ParseJSONSchema(raw []byte) (*JSONSchemaSchema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("schema: decode json schema: %w", err)
	}
	return FromJSONSchema(&s)
}

func (s *JSONSchemaSchema) Validate(value any) Result {
	// The resolver works on plain JSON values; normalize json.Number and Go
	// typed values into that form on a private copy.
	normalized, err := normalizeJSON(value)
	if err != nil {
		return invalid(CodeInvalidJSON, err.Error())
	}
	if obj, ok := normalized.(map[string]any); ok {
		if err := s.resolved.ApplyDefaults(&obj); err != nil {
			return invalid(CodeSchemaViolation, err.Error())
		}
		normalized = obj
	}
	if err := s.resolved.Validate(normalized); err != nil {
		return invalid(CodeSchemaViolation, err.Error())
	}
	return valid(normalized)
}

func (s *JSONSchemaSchema) Describe() *jsonschema.Schema {
	// Callers may decorate the descriptor, so hand out a copy.
	data, err := json.Marshal(s.schema)
	if err != nil {
		return &jsonschema.Schema{}
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return &jsonschema.Schema{}
	}
	return &out
}

func normalizeJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}
