package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "pilot/internal/errors"
	"pilot/internal/event"
	"pilot/internal/shared/jsonx"
	"pilot/internal/shared/logging"
	tokenutil "pilot/internal/shared/token"
)

// maxPromptTokens bounds the user prompt before any LLM call is made.
const maxPromptTokens = 32768

// retrievalTools are the tools whose output justifies a synthesis pass for an
// informational query.
var retrievalTools = map[string]bool{
	"memory_retrieval": true,
	"git":              true,
	"read_file":        true,
	"rg":               true,
	"grep":             true,
}

// Monitor is the optional runtime-toggleable metrics endpoint surface.
type Monitor interface {
	Enable() error
	Disable()
	Enabled() bool
}

// RunResult is the outcome of one orchestrated run or slash command.
type RunResult struct {
	Success   bool
	Response  string
	ToolsUsed []string
	Exit      bool // set by /quit and /exit
	Err       error
}

// Orchestrator coordinates one run: plan, execute, reconcile, respond. It owns
// the execution context and the run lifecycle events.
type Orchestrator struct {
	planner  *Planner
	executor *Executor
	registry SchemaSource
	memory   MemoryProvider
	monitor  Monitor
	bus      *event.Bus
	logger   logging.Logger

	execCtx *ExecutionContext

	mu             sync.Mutex
	runsCompleted  int
	tasksSucceeded int
	tasksFailed    int
}

// NewOrchestrator wires the trio. memory and monitor may be nil.
func NewOrchestrator(planner *Planner, executor *Executor, registry SchemaSource, memory MemoryProvider, monitor Monitor, bus *event.Bus, logger logging.Logger) *Orchestrator {
	o := &Orchestrator{
		planner:  planner,
		executor: executor,
		registry: registry,
		memory:   memory,
		monitor:  monitor,
		bus:      bus,
		logger:   logging.OrNop(logger),
		execCtx:  NewExecutionContext(""),
	}
	if memory != nil {
		// Token accounting flows through the bus; forward totals so the
		// provider sees every LLM call made on the orchestrator's behalf.
		usage := bus.Subscribe(64)
		go func() {
			for ev := range usage {
				if u, ok := ev.(*event.TokenUsage); ok {
					memory.TrackAPITokens(u.Total)
				}
			}
		}()
	}
	return o
}

// Context exposes the run accumulator, mainly for tests and the CLI status
// view.
func (o *Orchestrator) Context() *ExecutionContext { return o.execCtx }

// Execute handles one user input: slash commands locally, everything else
// through the plan/execute/respond pipeline.
func (o *Orchestrator) Execute(ctx context.Context, prompt string) RunResult {
	prompt = strings.TrimSpace(prompt)
	if strings.HasPrefix(prompt, "/") {
		result := o.handleSlash(prompt)
		if result.Err == nil {
			runID := uuid.NewString()
			o.bus.Publish(&event.OrchestrationComplete{Base: event.NewBase(runID), Response: result.Response, Success: result.Success})
			o.bus.EndRun(runID)
		}
		return result
	}

	if prompt == "" {
		return RunResult{Err: errs.New(errs.KindInvalidInput, "empty prompt")}
	}
	if n := tokenutil.EstimateFast(prompt); n > maxPromptTokens {
		return RunResult{Err: errs.New(errs.KindInvalidInput, "prompt too large: ~%d tokens (limit %d)", n, maxPromptTokens)}
	}

	runID := uuid.NewString()
	mode := detectMode(prompt)
	if o.memory != nil {
		o.memory.SetMode(mode)
	}
	o.bus.Publish(&event.OrchestrationStart{Base: event.NewBase(runID), Prompt: prompt, Mode: string(mode)})

	result := o.run(ctx, runID, prompt)

	if result.Err != nil {
		o.bus.Publish(&event.OrchestrationError{Base: event.NewBase(runID), Err: result.Err.Error()})
	} else {
		o.bus.Publish(&event.OrchestrationComplete{Base: event.NewBase(runID), Response: result.Response, Success: result.Success})
	}
	o.bus.EndRun(runID)

	o.mu.Lock()
	o.runsCompleted++
	o.mu.Unlock()
	return result
}

func (o *Orchestrator) run(ctx context.Context, runID, prompt string) RunResult {
	infoQuery := isInfoQuery(prompt)
	hint := ""
	if infoQuery {
		hint = "SIMPLE QUESTION: if this can be answered without tools, answer it directly as a conversation."
	}

	o.logTrio(runID, "orchestrator", "planner", "question", prompt)
	plan, err := o.planner.CreatePlan(ctx, runID, prompt, hint)
	if err != nil {
		o.logger.Warn("planning failed (%v), retrying with simplified framing", err)
		plan, err = o.planner.CreatePlan(ctx, runID,
			prompt+"\n\nBreak this into simple steps. Return JSON only.", hint)
		if err != nil {
			return RunResult{Err: err}
		}
	}
	o.logTrio(runID, "planner", "orchestrator", "response",
		fmt.Sprintf("plan %s: %d tasks, conversation=%v", plan.ID, len(plan.Tasks), plan.IsConversation()))

	if plan.IsConversation() {
		o.recordResponse(ctx, runID, plan.ConversationResponse)
		return RunResult{Success: true, Response: plan.ConversationResponse}
	}

	o.logTrio(runID, "orchestrator", "executor", "status", fmt.Sprintf("executing plan %s", plan.ID))
	results := o.executor.ExecutePlan(ctx, runID, plan, o.execCtx)

	succeeded, failed := 0, 0
	var toolsUsed []string
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
		toolsUsed = append(toolsUsed, r.ToolsUsed...)
	}
	o.mu.Lock()
	o.tasksSucceeded += succeeded
	o.tasksFailed += failed
	o.mu.Unlock()

	o.recordRunOutcome(ctx, runID, prompt, plan, results)

	if failed > 0 || len(results) < len(plan.Tasks) {
		response := o.failureReport(plan, results)
		o.recordResponse(ctx, runID, response)
		return RunResult{Success: false, Response: response, ToolsUsed: toolsUsed}
	}

	if infoQuery && usedRetrievalTool(toolsUsed) {
		answer, err := o.synthesize(ctx, runID, prompt, results)
		if err != nil {
			return RunResult{Success: false, ToolsUsed: toolsUsed, Err: err}
		}
		o.recordResponse(ctx, runID, answer)
		return RunResult{Success: true, Response: answer, ToolsUsed: toolsUsed}
	}

	response := o.successReport(results)
	o.recordResponse(ctx, runID, response)
	return RunResult{Success: true, Response: response, ToolsUsed: toolsUsed}
}

// failureReport enumerates outcomes factually. No generated prose, no
// apologies: counts plus one line per failed task.
func (o *Orchestrator) failureReport(plan *TaskPlan, results []ExecutionResult) string {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d tasks completed.", succeeded, len(plan.Tasks))
	for _, r := range results {
		if r.Success {
			continue
		}
		desc := r.TaskID
		for _, t := range plan.Tasks {
			if t.ID == r.TaskID && t.Description != "" {
				desc = t.Description
				break
			}
		}
		fmt.Fprintf(&b, "\n❌ %s: %s", desc, r.Error)
	}
	return b.String()
}

func (o *Orchestrator) successReport(results []ExecutionResult) string {
	var outputs []string
	for _, r := range results {
		if r.Output != "" {
			outputs = append(outputs, r.Output)
		}
	}
	header := fmt.Sprintf("Completed %d operation(s).", len(results))
	if len(outputs) == 0 {
		return header
	}
	return header + "\n" + strings.Join(outputs, "\n")
}

// synthesize turns gathered retrieval output into a direct answer. The
// synthesis call must come back as a conversation; a plan here is a failure.
func (o *Orchestrator) synthesize(ctx context.Context, runID, prompt string, results []ExecutionResult) (string, error) {
	var gathered []string
	for _, r := range results {
		if r.Output != "" {
			gathered = append(gathered, r.Output)
		}
	}
	synthPrompt := fmt.Sprintf("%s\n\nGathered information:\n%s\n\nAnswer the question directly using only the gathered information.",
		prompt, strings.Join(gathered, "\n---\n"))

	plan, err := o.planner.CreatePlan(ctx, runID, synthPrompt,
		"SIMPLE QUESTION: answer directly as a conversation. Do not plan tasks.")
	if err != nil {
		return "", errs.Wrap(errs.KindSynthesisFailed, err)
	}
	if !plan.IsConversation() {
		return "", errs.New(errs.KindSynthesisFailed, "synthesis returned a task plan instead of an answer")
	}
	return plan.ConversationResponse, nil
}

// recordRunOutcome persists what the run did: the prompt, each task's
// description, tools and success, plus a semantic chunk of the same material.
// Failures are logged, never surfaced.
func (o *Orchestrator) recordRunOutcome(ctx context.Context, runID, prompt string, plan *TaskPlan, results []ExecutionResult) {
	if o.memory == nil {
		return
	}
	type taskOutcome struct {
		Description string   `json:"description"`
		Tools       []string `json:"tools,omitempty"`
		Success     bool     `json:"success"`
	}
	record := struct {
		Prompt    string        `json:"prompt"`
		Tasks     []taskOutcome `json:"tasks"`
		Timestamp string        `json:"timestamp"`
	}{Prompt: prompt, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for _, r := range results {
		out := taskOutcome{Tools: r.ToolsUsed, Success: r.Success}
		for _, t := range plan.Tasks {
			if t.ID == r.TaskID {
				out.Description = t.Description
				break
			}
		}
		record.Tasks = append(record.Tasks, out)
	}
	payload, err := jsonx.Marshal(record)
	if err != nil {
		o.logger.Warn("run record marshal failed: %v", err)
		return
	}
	key := "run_" + runID
	if err := o.memory.StoreKnowledge(ctx, key, string(payload), "task_run"); err != nil {
		o.logger.Warn("knowledge write-back failed: %v", err)
		return
	}
	if err := o.memory.StoreChunk(ctx, key, string(payload), "task_run", map[string]any{"run_id": runID}); err != nil {
		o.logger.Warn("chunk write-back failed: %v", err)
	}
	o.bus.Publish(&event.MemoryUpdate{Base: event.NewBase(runID), Key: key, Category: "task_run"})
}

// recordResponse persists the assistant reply to memory. Failures are logged,
// never surfaced.
func (o *Orchestrator) recordResponse(ctx context.Context, runID, response string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.AddAssistantResponse(ctx, response); err != nil {
		o.logger.Warn("memory write-back failed: %v", err)
		return
	}
	o.bus.Publish(&event.MemoryUpdate{Base: event.NewBase(runID), Key: "assistant_response", Category: "conversation"})
}

func (o *Orchestrator) logTrio(runID, from, to, typ, content string) {
	o.execCtx.LogTrio(TrioMessage{From: from, To: to, Type: typ, Content: content})
	o.bus.Publish(&event.TrioMessage{Base: event.NewBase(runID), From: from, To: to, Type: typ, Content: content})
}

// handleSlash executes built-in commands. All commands are idempotent; an
// unknown command is an input error, not a run.
func (o *Orchestrator) handleSlash(input string) RunResult {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	switch cmd {
	case "/help", "/?":
		return RunResult{Success: true, Response: helpText}
	case "/status":
		return RunResult{Success: true, Response: o.statusText()}
	case "/tools":
		return RunResult{Success: true, Response: o.toolsText()}
	case "/clear":
		o.execCtx = NewExecutionContext(o.execCtx.WorkDir)
		return RunResult{Success: true, Response: "Context cleared."}
	case "/quit", "/exit":
		return RunResult{Success: true, Response: "Bye.", Exit: true}
	case "/monitor":
		arg := ""
		if len(fields) > 1 {
			arg = strings.ToLower(fields[1])
		}
		return o.handleMonitor(arg)
	default:
		return RunResult{Err: errs.New(errs.KindInvalidInput, "unknown command %s, try /help", cmd)}
	}
}

func (o *Orchestrator) handleMonitor(arg string) RunResult {
	if o.monitor == nil {
		return RunResult{Err: errs.New(errs.KindInvalidInput, "monitoring is not available in this build")}
	}
	switch arg {
	case "on":
		if o.monitor.Enabled() {
			return RunResult{Success: true, Response: "Monitoring already on."}
		}
		if err := o.monitor.Enable(); err != nil {
			return RunResult{Err: err}
		}
		return RunResult{Success: true, Response: "Monitoring on."}
	case "off":
		o.monitor.Disable()
		return RunResult{Success: true, Response: "Monitoring off."}
	case "status", "":
		state := "off"
		if o.monitor.Enabled() {
			state = "on"
		}
		return RunResult{Success: true, Response: "Monitoring is " + state + "."}
	default:
		return RunResult{Err: errs.New(errs.KindInvalidInput, "usage: /monitor on|off|status")}
	}
}

func (o *Orchestrator) statusText() string {
	o.mu.Lock()
	runs, ok, bad := o.runsCompleted, o.tasksSucceeded, o.tasksFailed
	o.mu.Unlock()
	toolCalls := 0
	for _, tools := range o.execCtx.ToolExecutions() {
		toolCalls += len(tools)
	}
	created := len(o.execCtx.CreatedFiles())
	modified := len(o.execCtx.ModifiedFiles())
	return fmt.Sprintf("Runs: %d\nTasks: %d succeeded, %d failed\nTool calls: %d\nFiles: %d created, %d modified",
		runs, ok, bad, toolCalls, created, modified)
}

func (o *Orchestrator) toolsText() string {
	schemas := o.registry.List()
	if len(schemas) == 0 {
		return "No tools registered."
	}
	var b strings.Builder
	b.WriteString("Available tools:")
	for _, s := range schemas {
		fmt.Fprintf(&b, "\n  %-16s %s", s.Name, s.Description)
	}
	return b.String()
}

const helpText = `Commands:
  /help, /?        show this help
  /status          run and task counters
  /tools           list registered tools
  /clear           reset the execution context
  /monitor on|off|status   toggle the metrics endpoint
  /quit, /exit     leave the session

Anything else is treated as a request for the agent.`

// detectMode derives the pacing hint from keywords and prompt length. An
// explicit keyword wins; otherwise a long prompt is treated as a request for
// depth and everything else stays direct.
func detectMode(prompt string) Mode {
	lower := strings.ToLower(prompt)
	words := len(strings.Fields(prompt))
	switch {
	case strings.Contains(lower, "think deeply") || strings.Contains(lower, "in depth") ||
		strings.Contains(lower, "analyze") || strings.Contains(lower, "thorough"):
		return ModeDeep
	case strings.Contains(lower, "briefly") || strings.Contains(lower, "concise") ||
		strings.Contains(lower, "short answer"):
		return ModeConcise
	case words > 60:
		return ModeDeep
	default:
		return ModeDirect
	}
}

// isInfoQuery reports whether the prompt asks for information rather than
// work.
func isInfoQuery(prompt string) bool {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	if strings.HasSuffix(lower, "?") {
		return true
	}
	for _, w := range []string{"what ", "who ", "when ", "where ", "why ", "how ", "which "} {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	for _, phrase := range []string{"tell me", "explain", "describe", "show me"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func usedRetrievalTool(tools []string) bool {
	for _, t := range tools {
		if retrievalTools[t] {
			return true
		}
	}
	return false
}
