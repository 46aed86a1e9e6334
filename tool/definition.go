package tool

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/petal-labs/toolhost/schema"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Definition declares one tool as a plain value with a handler function.
type Definition struct {
	Name        string
	Description string
	InputSchema schema.Schema
	Handler     HandlerFunc
}

// Tool is the method-set form of a tool definition. Types implementing it are
// registered through Registry.RegisterTool and behave exactly like a
// Definition built from the same parts.
type Tool interface {
	Name() string
	Description() string
	InputSchema() schema.Schema
	Call(c *CallContext, input any) (Response, error)
}

// FromTool converts a Tool into a Definition.
func FromTool(t Tool) Definition {
	if t == nil {
		return Definition{}
	}
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Handler:     t.Call,
	}
}

// ValidateName checks a tool name against the identifier pattern.
func ValidateName(name string) error {
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter or underscore and contain only letters, digits, and underscores (max 64)", ErrInvalidToolName, name)
	}
	return nil
}

func (d Definition) validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Handler == nil {
		return ErrNilHandler
	}
	return nil
}

func (d Definition) normalized() Definition {
	d.Description = strings.TrimSpace(d.Description)
	if d.InputSchema == nil {
		d.InputSchema = schema.Any()
	}
	return d
}
