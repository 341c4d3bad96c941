// Package event defines the closed set of lifecycle events the core emits and
// a non-blocking fan-out bus. Consumers receive tagged values; there are no
// stringly-typed event names on hot paths.
package event

import "time"

// Kind enumerates every event the core can emit.
type Kind string

const (
	KindStatus     Kind = "status"
	KindRetry      Kind = "retry"
	KindTimeout    Kind = "timeout"
	KindError      Kind = "error"
	KindTokenUsage Kind = "token-usage"

	KindPlanningStart    Kind = "planning-start"
	KindPlanningComplete Kind = "planning-complete"

	KindTaskStart    Kind = "task-start"
	KindTaskComplete Kind = "task-complete"
	KindTaskError    Kind = "task-error"
	KindTaskAborted  Kind = "task-aborted"

	KindToolExecute Kind = "tool-execute"
	KindToolResult  Kind = "tool-result"
	KindToolFailure Kind = "tool-failure"

	KindPlanStart    Kind = "plan-start"
	KindPlanComplete Kind = "plan-complete"
	KindPlanError    Kind = "plan-error"

	KindOrchestrationStart    Kind = "orchestration-start"
	KindOrchestrationComplete Kind = "orchestration-complete"
	KindOrchestrationError    Kind = "orchestration-error"

	KindTrioMessage  Kind = "trio-message"
	KindMemoryUpdate Kind = "memory-update"
)

// Event is the contract every emitted value satisfies. Sequence numbers are
// monotonically increasing per run and assigned by the bus at publish time.
type Event interface {
	Kind() Kind
	RunID() string
	Timestamp() time.Time
	Seq() uint64
}

// Base provides the common fields for all events. Embed it by value and
// construct with NewBase.
type Base struct {
	runID string
	ts    time.Time
	seq   uint64
}

// NewBase creates event base fields for a run.
func NewBase(runID string) Base {
	return Base{runID: runID, ts: time.Now()}
}

func (b *Base) RunID() string        { return b.runID }
func (b *Base) Timestamp() time.Time { return b.ts }
func (b *Base) Seq() uint64          { return b.seq }

func (b *Base) stamp(seq uint64) {
	b.seq = seq
	if b.ts.IsZero() {
		b.ts = time.Now()
	}
}

// stamper is implemented by every concrete event via the embedded *Base.
type stamper interface{ stamp(seq uint64) }

// Status carries a human-readable progress line from one component.
type Status struct {
	Base
	Component string
	Message   string
}

func (*Status) Kind() Kind { return KindStatus }

// Retry is emitted before an LLM call re-attempt.
type Retry struct {
	Base
	Component  string
	Attempt    int
	MaxRetries int
}

func (*Retry) Kind() Kind { return KindRetry }

// Timeout is emitted when an LLM call hits its deadline.
type Timeout struct {
	Base
	Component string
	After     time.Duration
}

func (*Timeout) Kind() Kind { return KindTimeout }

// Error is emitted on component errors. Final marks a permanently failed call.
type Error struct {
	Base
	Component string
	Err       string
	Final     bool
}

func (*Error) Kind() Kind { return KindError }

// TokenUsage is emitted once per successful LLM call.
type TokenUsage struct {
	Base
	Model  string
	Input  int
	Output int
	Total  int
}

func (*TokenUsage) Kind() Kind { return KindTokenUsage }

// PlanningStart is emitted when the planner begins decomposition.
type PlanningStart struct {
	Base
	Prompt string
}

func (*PlanningStart) Kind() Kind { return KindPlanningStart }

// PlanningComplete is emitted with the resulting plan shape.
type PlanningComplete struct {
	Base
	PlanID       string
	TaskCount    int
	Complexity   string
	Conversation bool
}

func (*PlanningComplete) Kind() Kind { return KindPlanningComplete }

// TaskStart marks the PENDING→RUNNING transition.
type TaskStart struct {
	Base
	TaskID      string
	Description string
}

func (*TaskStart) Kind() Kind { return KindTaskStart }

// TaskComplete marks the RUNNING→SUCCEEDED transition.
type TaskComplete struct {
	Base
	TaskID    string
	ToolsUsed []string
	Duration  time.Duration
}

func (*TaskComplete) Kind() Kind { return KindTaskComplete }

// TaskError marks the RUNNING→FAILED transition.
type TaskError struct {
	Base
	TaskID string
	Err    string
}

func (*TaskError) Kind() Kind { return KindTaskError }

// TaskAborted marks the RUNNING→ABORTED transition.
type TaskAborted struct {
	Base
	TaskID string
}

func (*TaskAborted) Kind() Kind { return KindTaskAborted }

// ToolExecute is emitted immediately before a tool invocation.
type ToolExecute struct {
	Base
	TaskID string
	Tool   string
	Args   map[string]any
}

func (*ToolExecute) Kind() Kind { return KindToolExecute }

// ToolResult is emitted after every tool invocation.
type ToolResult struct {
	Base
	TaskID  string
	Tool    string
	Success bool
	Output  string
}

func (*ToolResult) Kind() Kind { return KindToolResult }

// ToolFailure is emitted when a tool reports failure, before recovery.
type ToolFailure struct {
	Base
	TaskID string
	Tool   string
	Err    string
}

func (*ToolFailure) Kind() Kind { return KindToolFailure }

// PlanStart is emitted when the executor begins a plan.
type PlanStart struct {
	Base
	PlanID    string
	TaskCount int
	Parallel  bool
}

func (*PlanStart) Kind() Kind { return KindPlanStart }

// PlanComplete is emitted when all tasks have settled.
type PlanComplete struct {
	Base
	PlanID    string
	Succeeded int
	Failed    int
}

func (*PlanComplete) Kind() Kind { return KindPlanComplete }

// PlanError is emitted when sequential execution stops on a failed task.
type PlanError struct {
	Base
	PlanID string
	TaskID string
	Err    string
}

func (*PlanError) Kind() Kind { return KindPlanError }

// OrchestrationStart opens a run.
type OrchestrationStart struct {
	Base
	Prompt string
	Mode   string
}

func (*OrchestrationStart) Kind() Kind { return KindOrchestrationStart }

// OrchestrationComplete closes a run with the final response.
type OrchestrationComplete struct {
	Base
	Response string
	Success  bool
}

func (*OrchestrationComplete) Kind() Kind { return KindOrchestrationComplete }

// OrchestrationError closes a run that failed before producing a response.
type OrchestrationError struct {
	Base
	Err string
}

func (*OrchestrationError) Kind() Kind { return KindOrchestrationError }

// TrioMessage mirrors planner/executor/orchestrator coordination log entries.
type TrioMessage struct {
	Base
	From    string
	To      string
	Type    string
	Content string
}

func (*TrioMessage) Kind() Kind { return KindTrioMessage }

// MemoryUpdate is emitted after a successful memory write-back.
type MemoryUpdate struct {
	Base
	Key      string
	Category string
}

func (*MemoryUpdate) Kind() Kind { return KindMemoryUpdate }
