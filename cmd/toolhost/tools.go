package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/petal-labs/toolhost"
	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/schema"
)

const (
	envGreeting = "TOOLHOST_GREETING"
	envAPIToken = "TOOLHOST_API_TOKEN"
	envMaxItems = "TOOLHOST_MAX_ITEMS"
)

func setup(lookup env.LookupFunc, logger *slog.Logger) (*toolhost.Runtime, error) {
	environment := env.New(schema.Fields{
		envGreeting: schema.Default(schema.String().NonEmpty(), "Hello"),
		envAPIToken: schema.Optional(schema.String()),
		envMaxItems: schema.Default(schema.Integer().Coerce().Min(1), int64(100)),
	}, env.WithLookup(lookup), env.WithSensitive(envAPIToken))

	rt := toolhost.New(&toolhost.Options{Environment: environment, Logger: logger})
	rt.Tool(toolhost.Definition{
		Name:        "greet",
		Description: "Greet someone by name",
		InputSchema: schema.Object(schema.Fields{
			"name": schema.Described(schema.String().NonEmpty(), "Who to greet"),
		}),
		Handler: greet,
	}).Tool(toolhost.Definition{
		Name:        "sum",
		Description: "Add a list of numbers",
		InputSchema: schema.Object(schema.Fields{
			"values": schema.Array(schema.Number()),
		}),
		Handler: sum,
	})
	if err := rt.RegisterTool(slugTool{}); err != nil {
		return nil, err
	}
	return rt, nil
}

func greet(c *toolhost.CallContext, input any) (toolhost.Response, error) {
	in := input.(map[string]any)
	greeting := c.Env.String(envGreeting)
	return c.Success(map[string]string{
		"message": fmt.Sprintf("%s, %s!", greeting, in["name"]),
	}), nil
}

func sum(c *toolhost.CallContext, input any) (toolhost.Response, error) {
	values := input.(map[string]any)["values"].([]any)
	if limit := c.Env.Int(envMaxItems); int64(len(values)) > limit {
		return c.Failure(map[string]any{
			"message": fmt.Sprintf("at most %d values are accepted", limit),
		}, toolhost.WithStatus(http.StatusUnprocessableEntity)), nil
	}
	var total float64
	for _, v := range values {
		total += v.(float64)
	}
	return c.Success(map[string]any{"total": total, "count": len(values)}), nil
}

// slugTool turns text into a URL slug.
type slugTool struct{}

func (slugTool) Name() string        { return "slugify" }
func (slugTool) Description() string { return "Convert text into a lowercase URL slug" }
func (slugTool) InputSchema() schema.Schema {
	return schema.Object(schema.Fields{
		"text":      schema.String().Max(512),
		"separator": schema.Default(schema.Enum("-", "_"), "-"),
	})
}

func (slugTool) Call(c *toolhost.CallContext, input any) (toolhost.Response, error) {
	in := input.(map[string]any)
	sep := in["separator"].(string)
	fields := strings.FieldsFunc(strings.ToLower(in["text"].(string)), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	if len(fields) == 0 {
		return c.NoContent(), nil
	}
	return c.Success(map[string]string{"slug": strings.Join(fields, sep)}), nil
}
