// Package tool defines the capability contract the core dispatches against.
// Concrete tools (bash, file, grep, web, git, edit) live outside the core and
// register themselves during process init.
package tool

import (
	"context"
	"time"
)

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the read-only description of a tool used to build planner prompts.
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Result is the uniform outcome of a tool invocation. Registry.Execute never
// panics or returns a Go error; failures are carried in Error.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ConfirmationDetails describes a pending side effect for the approval gate.
type ConfirmationDetails struct {
	Operation string // e.g. "file_write", "shell_exec"
	Path      string
	Summary   string
	Diff      string
}

// Tool is a named, schema-typed capability.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, args map[string]any) Result
}

// Validator is optionally implemented by tools that pre-check arguments.
type Validator interface {
	Validate(args map[string]any) error
}

// Confirmer is optionally implemented by tools whose invocations may need
// external confirmation. A nil return means no confirmation required.
type Confirmer interface {
	ShouldConfirm(args map[string]any) *ConfirmationDetails
}

// TimeoutHint is optionally implemented by tools that need a deadline other
// than the registry default.
type TimeoutHint interface {
	Timeout() time.Duration
}

// Executor is the dispatch surface the core executes through. *Registry and
// the cache decorator both implement it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) Result
}
