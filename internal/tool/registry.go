package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "pilot/internal/errors"
	"pilot/internal/shared/logging"
)

const defaultExecuteTimeout = 30 * time.Second

// Registry maps tool names to tools. Registration happens during process
// init; after startup the registry is effectively read-only.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string // stable iteration order for deterministic prompts
	timeout time.Duration
	logger  logging.Logger
}

// NewRegistry creates an empty registry with the default per-tool timeout.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: defaultExecuteTimeout,
		logger:  logging.OrNop(logger),
	}
}

// SetDefaultTimeout overrides the per-invocation deadline for tools that do
// not carry their own TimeoutHint.
func (r *Registry) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Register inserts a tool by unique name. Replacing is disallowed.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errs.New(errs.KindInternal, "tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return errs.New(errs.KindDuplicateTool, "tool already exists: %s", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tool schemas in registration order.
func (r *Registry) List() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Execute dispatches to the named tool. Errors never escape as Go errors or
// panics; they come back as {Success:false, Error}.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked: %v", name, rec)
			result = Result{Success: false, Error: fmt.Sprintf("internal: tool %s panicked: %v", name, rec)}
		}
	}()

	t, ok := r.Get(name)
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("tool not found: %s", name)}
	}

	if v, ok := t.(Validator); ok {
		if err := v.Validate(args); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("invalid arguments for %s: %v", name, err)}
		}
	}

	timeout := r.timeout
	if h, ok := t.(TimeoutHint); ok && h.Timeout() > 0 {
		timeout = h.Timeout()
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result = t.Execute(execCtx, args)
	if execCtx.Err() == context.DeadlineExceeded && !result.Success && result.Error == "" {
		result.Error = "timeout"
	}
	return result
}
