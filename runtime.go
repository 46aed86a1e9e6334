package toolhost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petal-labs/toolhost/dispatch"
	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/tool"
)

// Options configures a Runtime. The zero value is valid.
type Options struct {
	// Environment declares the process variables tools depend on.
	Environment *env.Environment
	Logger      *slog.Logger
	// Timeout bounds calls whose context has no deadline. Zero disables it.
	Timeout time.Duration
	// Observer receives call observations. Nil uses the process-wide observer.
	Observer tool.Observer
}

// Runtime is the registration and dispatch entry point for one process.
type Runtime struct {
	registry *tool.Registry
	env      *env.Environment
	logger   *slog.Logger
	timeout  time.Duration
	observer tool.Observer

	once       sync.Once
	dispatcher *dispatch.Dispatcher
}

// New creates a Runtime with an empty registry.
func New(opts *Options) *Runtime {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		registry: tool.NewRegistry(),
		env:      opts.Environment,
		logger:   logger,
		timeout:  opts.Timeout,
		observer: opts.Observer,
	}
}

// Tool registers def and returns r for chaining. It panics on a
// registration error, which is always a programming mistake.
func (r *Runtime) Tool(def Definition) *Runtime {
	r.registry.MustRegister(def)
	return r
}

// Register adds def, returning any registration error.
func (r *Runtime) Register(def Definition) error {
	return r.registry.Register(def)
}

// RegisterTool adds a method-set Tool.
func (r *Runtime) RegisterTool(t Tool) error {
	return r.registry.RegisterTool(t)
}

// Registry returns the underlying registry.
func (r *Runtime) Registry() *tool.Registry {
	return r.registry
}

// Environment returns the declared environment, which may be nil.
func (r *Runtime) Environment() *env.Environment {
	return r.env
}

// Manifest describes every registered tool in registration order.
func (r *Runtime) Manifest() Manifest {
	return r.registry.Manifest()
}

// ValidateEnvironment validates the declared environment now instead of on
// the first call. The outcome is cached either way.
func (r *Runtime) ValidateEnvironment() (env.Values, error) {
	return r.env.Values()
}

// HandleToolCall dispatches req. The first call seals the registry.
func (r *Runtime) HandleToolCall(ctx context.Context, req CallRequest) Response {
	return r.Dispatcher().HandleToolCall(ctx, req)
}

// Dispatcher returns the runtime's dispatcher, creating it on first use.
func (r *Runtime) Dispatcher() *dispatch.Dispatcher {
	r.once.Do(func() {
		opts := []dispatch.Option{
			dispatch.WithLogger(r.logger),
			dispatch.WithTimeout(r.timeout),
		}
		if r.observer != nil {
			opts = append(opts, dispatch.WithObserver(r.observer))
		}
		r.dispatcher = dispatch.New(r.registry, r.env, opts...)
	})
	return r.dispatcher
}
