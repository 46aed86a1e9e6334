package env

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/petal-labs/toolhost/schema"
)

func TestValuesCoercesDeclaredVariables(t *testing.T) {
	e := New(schema.Fields{
		"API_KEY": schema.String().NonEmpty(),
		"PORT":    schema.Default(schema.Integer().Coerce(), "8080"),
		"DEBUG":   schema.Optional(schema.Boolean().Coerce()),
	}, WithMap(map[string]string{
		"API_KEY": "secret",
		"DEBUG":   "true",
		"IGNORED": "x",
	}))

	values, err := e.Values()
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if values.String("API_KEY") != "secret" {
		t.Fatalf("API_KEY = %q, want secret", values.String("API_KEY"))
	}
	if values.Int("PORT") != 8080 {
		t.Fatalf("PORT = %d, want 8080", values.Int("PORT"))
	}
	if !values.Bool("DEBUG") {
		t.Fatal("DEBUG = false, want true")
	}
	if values.Has("IGNORED") {
		t.Fatal("undeclared IGNORED leaked into values")
	}
}

func TestValuesReportsAllIssues(t *testing.T) {
	e := New(schema.Fields{
		"API_KEY": schema.String(),
		"PORT":    schema.Integer().Coerce(),
		"REGION":  schema.Enum("us", "eu"),
	}, WithMap(map[string]string{
		"PORT":   "not-a-number",
		"REGION": "ap",
	}))

	_, err := e.Values()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Values() error = %v, want *ValidationError", err)
	}
	paths := make([]string, 0, len(verr.Issues))
	for _, issue := range verr.Issues {
		paths = append(paths, issue.Path)
	}
	if want := []string{"API_KEY", "PORT", "REGION"}; !reflect.DeepEqual(paths, want) {
		t.Fatalf("issue paths = %v, want %v", paths, want)
	}
}

func TestValuesCachesFailure(t *testing.T) {
	calls := 0
	e := New(schema.Fields{"TOKEN": schema.String()}, WithLookup(func(key string) (string, bool) {
		calls++
		return "", false
	}))

	_, first := e.Values()
	_, second := e.Values()
	if first == nil || first != second {
		t.Fatalf("errors = %v, %v; want identical cached error", first, second)
	}
	if calls != 1 {
		t.Fatalf("lookup calls = %d, want 1", calls)
	}
}

type countingSchema struct {
	calls atomic.Int64
}

func (s *countingSchema) Validate(value any) schema.Result {
	s.calls.Add(1)
	return schema.Result{Value: value}
}

func (s *countingSchema) Describe() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func TestValuesConcurrentFirstAccessValidatesOnce(t *testing.T) {
	counter := &countingSchema{}
	e := New(schema.Fields{"REGION": counter}, WithMap(map[string]string{"REGION": "eu"}))

	const workers = 32
	results := make([]Values, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			values, err := e.Values()
			if err != nil {
				t.Errorf("Values() error = %v", err)
				return
			}
			results[i] = values
		}(i)
	}
	close(start)
	wg.Wait()

	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("validator calls = %d, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if reflect.ValueOf(results[i]).Pointer() != reflect.ValueOf(results[0]).Pointer() {
			t.Fatalf("worker %d received a different Values instance", i)
		}
	}
}

func TestNilEnvironment(t *testing.T) {
	var e *Environment
	values, err := e.Values()
	if err != nil || len(values) != 0 {
		t.Fatalf("nil Values() = %v, %v; want empty, nil", values, err)
	}
}

func TestRedactedMasksSensitiveKeys(t *testing.T) {
	e := New(schema.Fields{
		"API_KEY": schema.String(),
		"REGION":  schema.String(),
		"TOKEN":   schema.Optional(schema.String()),
	}, WithMap(map[string]string{
		"API_KEY": "secret",
		"REGION":  "eu-west-1",
		"TOKEN":   "",
	}), WithSensitive("API_KEY", "TOKEN"))

	got, err := e.Redacted()
	if err != nil {
		t.Fatalf("Redacted() error = %v", err)
	}
	want := map[string]string{"API_KEY": MaskedValue, "REGION": "eu-west-1", "TOKEN": ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Redacted() = %#v, want %#v", got, want)
	}
}
