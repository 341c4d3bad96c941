// Package agent contains the planner/executor/orchestrator trio and the
// state they exchange: task plans, execution context, approval policy.
package agent

import (
	"fmt"
	"time"

	errs "pilot/internal/errors"
)

// Mode is a pacing hint detected from the prompt. It influences token
// budgets and memory configuration, never behavior.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeConcise Mode = "concise"
	ModeDeep    Mode = "deep"
)

// Complexity is a derived logging/budgeting hint, never a behavior gate.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// TaskType classifies a task by how it executes.
type TaskType string

const (
	TaskSimple    TaskType = "simple"
	TaskTool      TaskType = "tool"
	TaskMultiStep TaskType = "multi-step"
)

// Task is a single unit of work bound to at most one tool.
type Task struct {
	ID           string                    `json:"id"`
	Description  string                    `json:"description"`
	Type         TaskType                  `json:"type"`
	Tools        []string                  `json:"tools,omitempty"`
	Arguments    map[string]map[string]any `json:"arguments,omitempty"`
	Dependencies []string                  `json:"dependencies,omitempty"`
	Priority     int                       `json:"priority"`
}

// TaskPlan is the validated output of one planning call. Created once per
// run and immutable thereafter.
type TaskPlan struct {
	ID                   string     `json:"id"`
	Prompt               string     `json:"prompt"`
	Tasks                []Task     `json:"tasks"`
	Complexity           Complexity `json:"complexity"`
	Parallelizable       bool       `json:"parallelizable"`
	ConversationResponse string     `json:"conversation_response,omitempty"`
}

// IsConversation reports whether the plan is a pure reply with no tasks.
func (p *TaskPlan) IsConversation() bool {
	return p.ConversationResponse != ""
}

// Validate enforces the plan invariants: a conversation plan has no tasks, an
// executable plan has at least one; dependencies only point backwards; tool
// lists agree with task types.
func (p *TaskPlan) Validate() error {
	if p.IsConversation() {
		if len(p.Tasks) != 0 {
			return errs.New(errs.KindPlanShape, "conversation plan carries %d tasks", len(p.Tasks))
		}
		return nil
	}
	if len(p.Tasks) == 0 {
		return errs.New(errs.KindPlanShape, "plan has no tasks and no conversation response")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.ID == "" {
			return errs.New(errs.KindPlanShape, "task %d has no id", i)
		}
		if seen[t.ID] {
			return errs.New(errs.KindPlanShape, "duplicate task id %s", t.ID)
		}
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return errs.New(errs.KindPlanShape, "task %s depends on %s which does not appear earlier", t.ID, dep)
			}
		}
		if len(t.Tools) > 0 && t.Type == TaskSimple {
			return errs.New(errs.KindPlanShape, "task %s is simple but lists tools", t.ID)
		}
		if len(t.Tools) == 0 && t.Type == TaskTool {
			return errs.New(errs.KindPlanShape, "task %s is tool-typed but lists no tools", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// ExecutionResult records the outcome of one task.
type ExecutionResult struct {
	TaskID    string        `json:"task_id"`
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	ToolsUsed []string      `json:"tools_used,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// TrioMessage is one coordination log entry between the three roles.
type TrioMessage struct {
	From    string         `json:"from"` // planner, executor, orchestrator
	To      string         `json:"to"`   // same set, or "all"
	Type    string         `json:"type"` // question, response, adjustment, status, error
	Content string         `json:"content"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskRecord is one taskHistory entry on the execution context.
type TaskRecord struct {
	TaskID      string        `json:"task_id"`
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
	ToolsUsed   []string      `json:"tools_used,omitempty"`
	Result      string        `json:"result"`
	Duration    time.Duration `json:"duration"`
}

// DisplayName renders the short status label for a tool invocation,
// e.g. Write(notes.txt), Bash(ls -la…), WebSearch("price of gold").
func DisplayName(toolName string, args map[string]any) string {
	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := args[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	clip := func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "…"
	}
	switch toolName {
	case "write_file", "file":
		return fmt.Sprintf("Write(%s)", str("file_path", "path"))
	case "read_file":
		return fmt.Sprintf("Read(%s)", str("file_path", "path"))
	case "bash":
		return fmt.Sprintf("Bash(%s)", clip(str("command"), 40))
	case "web":
		return fmt.Sprintf("WebSearch(%q)", clip(str("query", "url"), 40))
	case "grep", "rg":
		return fmt.Sprintf("Search(%q)", clip(str("pattern"), 40))
	case "edit", "smart_edit":
		return fmt.Sprintf("Edit(%s)", str("file_path", "path"))
	case "git":
		return fmt.Sprintf("Git(%s)", clip(str("command", "subcommand"), 40))
	default:
		return toolName
	}
}
