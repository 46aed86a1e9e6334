package tool

import (
	"slices"
	"sync/atomic"
)

// Registry is the ordered, name-keyed set of tool definitions.
//
// Registration happens during setup only. Seal is called on the first
// dispatch; after that the registry is read-only and safe for concurrent use
// without locking. Register is not safe to call concurrently.
type Registry struct {
	order  []string
	byName map[string]Definition
	sealed atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Definition)}
}

// Register adds def. Invalid names, nil handlers, duplicates, and
// registration after Seal are rejected with a *RegistrationError.
func (r *Registry) Register(def Definition) error {
	if r.sealed.Load() {
		return &RegistrationError{Name: def.Name, Err: ErrRegistrySealed}
	}
	if err := def.validate(); err != nil {
		return &RegistrationError{Name: def.Name, Err: err}
	}
	if _, exists := r.byName[def.Name]; exists {
		return &RegistrationError{Name: def.Name, Err: ErrDuplicateTool}
	}

	r.byName[def.Name] = def.normalized()
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterTool adds a method-set Tool.
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(FromTool(t))
}

// MustRegister is like Register but panics on error, returning r for chaining.
func (r *Registry) MustRegister(def Definition) *Registry {
	if err := r.Register(def); err != nil {
		panic(err)
	}
	return r
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// All returns definitions in registration order.
func (r *Registry) All() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Seal freezes the registry. It is idempotent.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}
