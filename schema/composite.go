package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// ObjectSchema accepts JSON objects with declared fields.
//
// Undeclared keys are dropped from the coerced value unless the schema is
// strict, in which case each one is reported as an issue.
type ObjectSchema struct {
	fields Fields
	keys   []string
	strict bool
}

// Object returns a schema for an object with the given fields.
func Object(fields Fields) *ObjectSchema {
	keys := make([]string, 0, len(fields))
	copied := make(Fields, len(fields))
	for key, field := range fields {
		keys = append(keys, key)
		copied[key] = field
	}
	slices.Sort(keys)
	return &ObjectSchema{fields: copied, keys: keys}
}

// Strict rejects keys that are not declared.
func (s *ObjectSchema) Strict() *ObjectSchema {
	s.strict = true
	return s
}

// Fields returns the declared field names in sorted order.
func (s *ObjectSchema) Fields() []string {
	return slices.Clone(s.keys)
}

func (s *ObjectSchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	obj, ok := asObject(value)
	if !ok {
		return typeMismatch("object", value)
	}

	out := make(map[string]any, len(s.keys))
	var issues []Issue
	for _, key := range s.keys {
		raw, present := obj[key]
		result := s.fields[key].Validate(raw)
		if !result.OK() {
			issues = append(issues, prefixIssues(key, result.Issues)...)
			continue
		}
		if !present && result.Value == nil {
			continue
		}
		out[key] = result.Value
	}

	if s.strict {
		unknown := make([]string, 0)
		for key := range obj {
			if _, declared := s.fields[key]; !declared {
				unknown = append(unknown, key)
			}
		}
		slices.Sort(unknown)
		for _, key := range unknown {
			issues = append(issues, Issue{
				Path:    key,
				Code:    CodeUnrecognizedKey,
				Message: fmt.Sprintf("Unrecognized key %q", key),
			})
		}
	}

	if len(issues) > 0 {
		return Result{Issues: issues}
	}
	return valid(out)
}

func (s *ObjectSchema) Describe() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.keys)),
	}
	for _, key := range s.keys {
		field := s.fields[key]
		out.Properties[key] = field.Describe()
		if !isOptional(field) {
			out.Required = append(out.Required, key)
		}
	}
	if s.strict {
		out.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
	return out
}

// ArraySchema accepts arrays whose items all satisfy one schema.
type ArraySchema struct {
	item     Schema
	minItems *int
	maxItems *int
}

// Array returns a schema for arrays of item.
func Array(item Schema) *ArraySchema {
	if item == nil {
		item = Any()
	}
	return &ArraySchema{item: item}
}

// Min requires at least n items.
func (s *ArraySchema) Min(n int) *ArraySchema {
	s.minItems = &n
	return s
}

// Max allows at most n items.
func (s *ArraySchema) Max(n int) *ArraySchema {
	s.maxItems = &n
	return s
}

func (s *ArraySchema) Validate(value any) Result {
	if value == nil {
		return required()
	}
	items, ok := asArray(value)
	if !ok {
		return typeMismatch("array", value)
	}

	var issues []Issue
	if s.minItems != nil && len(items) < *s.minItems {
		issues = append(issues, Issue{
			Code:    CodeTooSmall,
			Message: fmt.Sprintf("Array must contain at least %d item(s)", *s.minItems),
		})
	}
	if s.maxItems != nil && len(items) > *s.maxItems {
		issues = append(issues, Issue{
			Code:    CodeTooBig,
			Message: fmt.Sprintf("Array must contain at most %d item(s)", *s.maxItems),
		})
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		result := s.item.Validate(item)
		if !result.OK() {
			issues = append(issues, prefixIssues(indexPath(i), result.Issues)...)
			continue
		}
		out = append(out, result.Value)
	}

	if len(issues) > 0 {
		return Result{Issues: issues}
	}
	return valid(out)
}

func (s *ArraySchema) Describe() *jsonschema.Schema {
	out := &jsonschema.Schema{Type: "array", Items: s.item.Describe()}
	if s.minItems != nil {
		out.MinItems = intPtr(*s.minItems)
	}
	if s.maxItems != nil {
		out.MaxItems = intPtr(*s.maxItems)
	}
	return out
}

type optionalSchema struct {
	inner Schema
}

// Optional accepts an absent (nil) value and otherwise defers to inner.
func Optional(inner Schema) Schema {
	return optionalSchema{inner: inner}
}

func (s optionalSchema) Validate(value any) Result {
	if value == nil {
		return valid(nil)
	}
	return s.inner.Validate(value)
}

func (s optionalSchema) Describe() *jsonschema.Schema { return s.inner.Describe() }

func (optionalSchema) acceptsAbsent() bool { return true }

type defaultSchema struct {
	inner Schema
	value any
}

// Default substitutes value when the input is absent. The default itself
// passes through inner so coercion applies to it as well.
func Default(inner Schema, value any) Schema {
	return defaultSchema{inner: inner, value: value}
}

func (s defaultSchema) Validate(value any) Result {
	if value == nil {
		return s.inner.Validate(s.value)
	}
	return s.inner.Validate(value)
}

func (s defaultSchema) Describe() *jsonschema.Schema {
	out := s.inner.Describe()
	if raw, err := json.Marshal(s.value); err == nil {
		out.Default = raw
	}
	return out
}

func (defaultSchema) acceptsAbsent() bool { return true }

type describedSchema struct {
	inner       Schema
	description string
}

// Described attaches a human readable description to inner's descriptor.
func Described(inner Schema, description string) Schema {
	return describedSchema{inner: inner, description: description}
}

func (s describedSchema) Validate(value any) Result { return s.inner.Validate(value) }

func (s describedSchema) Describe() *jsonschema.Schema {
	out := s.inner.Describe()
	out.Description = s.description
	return out
}

func (s describedSchema) acceptsAbsent() bool { return isOptional(s.inner) }

func asObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = item
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asArray(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
