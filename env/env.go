// Package env validates process environment variables against declared
// schemas once per process and caches the result.
package env

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/toolhost/schema"
)

// LookupFunc resolves one environment variable.
type LookupFunc func(key string) (string, bool)

// Option configures an Environment.
type Option func(*Environment)

// WithLookup overrides the variable source. The default is os.LookupEnv.
func WithLookup(lookup LookupFunc) Option {
	return func(e *Environment) {
		if lookup != nil {
			e.lookup = lookup
		}
	}
}

// WithMap reads variables from a fixed map, typically in tests.
func WithMap(values map[string]string) Option {
	return WithLookup(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
}

// WithSensitive marks keys whose values are masked by Redacted.
func WithSensitive(keys ...string) Option {
	return func(e *Environment) {
		if e.sensitive == nil {
			e.sensitive = make(map[string]bool, len(keys))
		}
		for _, key := range keys {
			e.sensitive[key] = true
		}
	}
}

// Environment is the declared set of variables required by the registered tools.
//
// Variables do not change mid-process, so validation runs at most once and
// both outcomes (values or error) are cached. Concurrent first callers all
// wait on that single validation.
type Environment struct {
	fields    schema.Fields
	object    *schema.ObjectSchema
	lookup    LookupFunc
	sensitive map[string]bool

	once   sync.Once
	values Values
	err    error
}

// New declares an environment with one schema per variable name.
func New(fields schema.Fields, opts ...Option) *Environment {
	e := &Environment{
		fields: fields,
		object: schema.Object(fields),
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys returns declared variable names in sorted order.
func (e *Environment) Keys() []string {
	if e == nil {
		return nil
	}
	return e.object.Fields()
}

// Values returns the validated environment, validating on first use.
// A nil Environment declares nothing and yields empty Values.
func (e *Environment) Values() (Values, error) {
	if e == nil {
		return Values{}, nil
	}
	e.once.Do(func() {
		e.values, e.err = e.validate()
	})
	return e.values, e.err
}

// MaskedValue replaces sensitive values in user-facing output.
const MaskedValue = "**********"

// Redacted returns the validated values as strings with sensitive entries
// masked. It returns the validation error when the environment is invalid.
func (e *Environment) Redacted() (map[string]string, error) {
	values, err := e.Values()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for key := range values {
		value := values.String(key)
		if e.sensitive[key] && strings.TrimSpace(value) != "" {
			value = MaskedValue
		}
		out[key] = value
	}
	return out, nil
}

func (e *Environment) validate() (Values, error) {
	raw := make(map[string]any, len(e.fields))
	for _, key := range e.object.Fields() {
		if v, ok := e.lookup(key); ok {
			raw[key] = v
		}
	}

	result := e.object.Validate(raw)
	if !result.OK() {
		return nil, &ValidationError{Issues: slices.Clone(result.Issues)}
	}
	values, _ := result.Value.(map[string]any)
	return Values(values), nil
}

// ValidationError lists every environment variable that failed validation.
type ValidationError struct {
	Issues []schema.Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "env: invalid environment"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}
	return "env: invalid environment: " + strings.Join(parts, "; ")
}
