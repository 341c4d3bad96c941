package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pilot/internal/event"
	"pilot/internal/llm"
	"pilot/internal/observability"
	"pilot/internal/shared/logging"
	"pilot/internal/tool"
)

const (
	depPollInterval  = 100 * time.Millisecond
	contentMaxTokens = 16384
	contentFailStub  = "TODO: content generation failed, fill in manually"
)

// recoveryWebPause is the wait before a single web retry. Variable so tests
// can shorten it.
var recoveryWebPause = 2 * time.Second

// Executor runs tasks against the tool dispatch surface. Recovery from tool
// failures is deterministic and bounded: one retry per rule, no LLM calls on
// the recovery path.
type Executor struct {
	tools    tool.Executor
	registry *tool.Registry
	gate     *ApprovalGate
	llm      ChatClient
	bus      *event.Bus
	logger   logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewExecutor wires an executor. gate may be nil (everything auto-approved).
func NewExecutor(tools tool.Executor, registry *tool.Registry, gate *ApprovalGate, client ChatClient, bus *event.Bus, logger logging.Logger) *Executor {
	return &Executor{
		tools:    tools,
		registry: registry,
		gate:     gate,
		llm:      client,
		bus:      bus,
		logger:   logging.OrNop(logger),
		active:   make(map[string]context.CancelFunc),
	}
}

// AbortTask cancels one running task. Returns false when the task is not
// currently running.
func (e *Executor) AbortTask(taskID string) bool {
	e.mu.Lock()
	cancel, ok := e.active[taskID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// AbortAll cancels every running task.
func (e *Executor) AbortAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.active))
	for _, c := range e.active {
		cancels = append(cancels, c)
	}
	e.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// ExecutePlan runs every task of the plan. Sequential plans stop on the first
// failed task; parallelizable plans run all tasks and report per-task
// outcomes, preserving plan order in the result slice.
func (e *Executor) ExecutePlan(ctx context.Context, runID string, plan *TaskPlan, execCtx *ExecutionContext) []ExecutionResult {
	e.bus.Publish(&event.PlanStart{
		Base:      event.NewBase(runID),
		PlanID:    plan.ID,
		TaskCount: len(plan.Tasks),
		Parallel:  plan.Parallelizable,
	})

	var results []ExecutionResult
	if plan.Parallelizable && len(plan.Tasks) > 1 {
		results = e.executeParallel(ctx, runID, plan, execCtx)
	} else {
		results = e.executeSequential(ctx, runID, plan, execCtx)
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	e.bus.Publish(&event.PlanComplete{
		Base:      event.NewBase(runID),
		PlanID:    plan.ID,
		Succeeded: succeeded,
		Failed:    failed,
	})
	return results
}

func (e *Executor) executeSequential(ctx context.Context, runID string, plan *TaskPlan, execCtx *ExecutionContext) []ExecutionResult {
	var results []ExecutionResult
	for _, task := range plan.Tasks {
		if err := e.waitForDependencies(ctx, task, execCtx); err != nil {
			r := ExecutionResult{TaskID: task.ID, Success: false, Error: err.Error()}
			execCtx.AppendResult(r)
			results = append(results, r)
			break
		}
		r := e.ExecuteTask(ctx, runID, task, execCtx)
		execCtx.AppendResult(r)
		results = append(results, r)
		if !r.Success {
			e.bus.Publish(&event.PlanError{
				Base:   event.NewBase(runID),
				PlanID: plan.ID,
				TaskID: task.ID,
				Err:    r.Error,
			})
			break
		}
	}
	return results
}

// executeParallel runs independent tasks concurrently. One failed task never
// cancels its siblings; results come back in plan order regardless of
// completion order.
func (e *Executor) executeParallel(ctx context.Context, runID string, plan *TaskPlan, execCtx *ExecutionContext) []ExecutionResult {
	results := make([]ExecutionResult, len(plan.Tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range plan.Tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = e.ExecuteTask(gctx, runID, task, execCtx)
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		execCtx.AppendResult(r)
	}
	return results
}

// waitForDependencies polls the execution context until every dependency has a
// recorded result. A failed dependency fails the waiter immediately.
func (e *Executor) waitForDependencies(ctx context.Context, task Task, execCtx *ExecutionContext) error {
	for {
		pending := false
		for _, dep := range task.Dependencies {
			r, ok := execCtx.ResultFor(dep)
			if !ok {
				pending = true
				continue
			}
			if !r.Success {
				return fmt.Errorf("dependency %s failed: %s", dep, r.Error)
			}
		}
		if !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(depPollInterval):
		}
	}
}

// ExecuteTask runs one task through its tools, applying approval policy,
// argument resolution and bounded recovery. It never returns a Go error; the
// outcome lives in the result.
func (e *Executor) ExecuteTask(ctx context.Context, runID string, task Task, execCtx *ExecutionContext) ExecutionResult {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.active[task.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, task.ID)
		e.mu.Unlock()
	}()

	start := time.Now()
	e.bus.Publish(&event.TaskStart{Base: event.NewBase(runID), TaskID: task.ID, Description: task.Description})

	if taskCtx.Err() != nil {
		return e.finishAborted(runID, task, start, execCtx)
	}

	if len(task.Tools) == 0 {
		r := ExecutionResult{TaskID: task.ID, Success: true, Output: task.Description, Duration: time.Since(start)}
		e.finishTask(runID, task, r, execCtx)
		return r
	}

	var outputs []string
	var toolsUsed []string
	for _, toolName := range task.Tools {
		args := e.resolveArguments(taskCtx, runID, task, toolName, execCtx)

		if err := e.confirmIfNeeded(taskCtx, toolName, args); err != nil {
			r := ExecutionResult{
				TaskID:    task.ID,
				Success:   false,
				Error:     err.Error(),
				ToolsUsed: toolsUsed,
				Duration:  time.Since(start),
			}
			e.finishTask(runID, task, r, execCtx)
			return r
		}

		e.bus.Publish(&event.ToolExecute{Base: event.NewBase(runID), TaskID: task.ID, Tool: toolName, Args: args})
		e.bus.Publish(&event.Status{
			Base:      event.NewBase(runID),
			Component: "executor",
			Message:   DisplayName(toolName, args),
		})

		res := e.tools.Execute(taskCtx, toolName, args)
		observability.ObserveTool(toolName)

		if taskCtx.Err() == context.Canceled {
			return e.finishAborted(runID, task, start, execCtx)
		}

		if !res.Success {
			e.bus.Publish(&event.ToolFailure{Base: event.NewBase(runID), TaskID: task.ID, Tool: toolName, Err: res.Error})
			res = e.attemptRecovery(taskCtx, runID, task, toolName, args, res)
		}

		e.bus.Publish(&event.ToolResult{
			Base:    event.NewBase(runID),
			TaskID:  task.ID,
			Tool:    toolName,
			Success: res.Success,
			Output:  res.Output,
		})

		execCtx.RecordToolExecution(task.ID, toolName)
		toolsUsed = append(toolsUsed, toolName)

		if !res.Success {
			r := ExecutionResult{
				TaskID:    task.ID,
				Success:   false,
				Output:    strings.Join(outputs, "\n"),
				Error:     res.Error,
				ToolsUsed: toolsUsed,
				Duration:  time.Since(start),
			}
			e.finishTask(runID, task, r, execCtx)
			return r
		}

		e.trackSideEffects(toolName, args, res, execCtx)
		if res.Output != "" {
			outputs = append(outputs, res.Output)
		}
	}

	r := ExecutionResult{
		TaskID:    task.ID,
		Success:   true,
		Output:    strings.Join(outputs, "\n"),
		ToolsUsed: toolsUsed,
		Duration:  time.Since(start),
	}
	e.finishTask(runID, task, r, execCtx)
	return r
}

func (e *Executor) confirmIfNeeded(ctx context.Context, toolName string, args map[string]any) error {
	if e.gate == nil || e.registry == nil {
		return nil
	}
	t, ok := e.registry.Get(toolName)
	if !ok {
		return nil // registry.Execute reports the missing tool
	}
	details := e.gate.NeedsConfirmation(t, args)
	if details == nil {
		return nil
	}
	return e.gate.Confirm(ctx, toolName, details, args)
}

func (e *Executor) finishTask(runID string, task Task, r ExecutionResult, execCtx *ExecutionContext) {
	outcome := "succeeded"
	resultLine := "success"
	if !r.Success {
		outcome = "failed"
		resultLine = "failed: " + r.Error
		e.bus.Publish(&event.TaskError{Base: event.NewBase(runID), TaskID: task.ID, Err: r.Error})
	} else {
		e.bus.Publish(&event.TaskComplete{Base: event.NewBase(runID), TaskID: task.ID, ToolsUsed: r.ToolsUsed, Duration: r.Duration})
		// A successful task whose description names a file counts as having
		// produced it, even when no tool reported the path.
		execCtx.TrackCreatedFile(mentionsFile(task.Description))
	}
	observability.ObserveTask(outcome)
	execCtx.RecordHistory(TaskRecord{
		TaskID:      task.ID,
		Description: task.Description,
		Timestamp:   time.Now(),
		ToolsUsed:   r.ToolsUsed,
		Result:      resultLine,
		Duration:    r.Duration,
	})
}

func (e *Executor) finishAborted(runID string, task Task, start time.Time, execCtx *ExecutionContext) ExecutionResult {
	e.bus.Publish(&event.TaskAborted{Base: event.NewBase(runID), TaskID: task.ID})
	observability.ObserveTask("aborted")
	r := ExecutionResult{TaskID: task.ID, Success: false, Error: "aborted", Duration: time.Since(start)}
	execCtx.RecordHistory(TaskRecord{
		TaskID:      task.ID,
		Description: task.Description,
		Timestamp:   time.Now(),
		Result:      "aborted",
		Duration:    r.Duration,
	})
	return r
}

// resolveArguments builds the final argument record for one tool invocation.
// Precedence: plan-supplied values, then description extraction, then
// context-derived defaults. Content marked "generate later" is produced here
// with a deterministic temperature.
func (e *Executor) resolveArguments(ctx context.Context, runID string, task Task, toolName string, execCtx *ExecutionContext) map[string]any {
	args := make(map[string]any)
	for k, v := range task.Arguments[toolName] {
		args[k] = v
	}

	switch toolName {
	case "bash":
		if s, _ := args["command"].(string); s == "" {
			args["command"] = extractCommand(task.Description)
		}
	case "write_file", "file":
		if s, _ := args["file_path"].(string); s == "" {
			args["file_path"] = extractFilePath(task.Description)
		}
		if _, ok := args["content"]; !ok {
			path, _ := args["file_path"].(string)
			args["content"] = e.generateFileContent(ctx, runID, task, path)
		}
	case "read_file", "edit", "smart_edit":
		if s, _ := args["file_path"].(string); s == "" {
			if last, ok := execCtx.LastCreatedFile(); ok && hasAnaphora(task.Description) {
				args["file_path"] = last
			} else {
				args["file_path"] = extractFilePath(task.Description)
			}
		}
	case "grep", "rg":
		if s, _ := args["pattern"].(string); s == "" {
			args["pattern"] = extractPattern(task.Description)
		}
	case "web":
		if s, _ := args["query"].(string); s == "" {
			q := extractQuoted(task.Description)
			if q == "" {
				q = task.Description
			}
			args["query"] = q
		}
	}
	return args
}

// generateFileContent fills in a file body the plan deferred. Generation
// failures degrade to a stub body; they never fail the task.
func (e *Executor) generateFileContent(ctx context.Context, runID string, task Task, path string) string {
	prompt := fmt.Sprintf(
		"Write the complete contents of the file %s.\nGoal: %s\nReturn only the raw file body. No markdown fences, no commentary.",
		path, task.Description,
	)
	content, err := e.llm.Chat(ctx, runID, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   contentMaxTokens,
		Temperature: llm.Temp(0),
	})
	if err != nil {
		e.logger.Warn("content generation for %s failed: %v", path, err)
		return contentFailStub
	}
	return stripFences(content)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// attemptRecovery applies at most one deterministic retry per failure class:
// missing parent directory on a write, permission denied on a shell command,
// transient network failure on a web call. Anything else returns unchanged.
func (e *Executor) attemptRecovery(ctx context.Context, runID string, task Task, toolName string, args map[string]any, failed tool.Result) tool.Result {
	errLower := strings.ToLower(failed.Error)

	switch {
	case (toolName == "write_file" || toolName == "file") &&
		(strings.Contains(errLower, "no such file or directory") || strings.Contains(errLower, "file not found")):
		path, _ := args["file_path"].(string)
		dir := filepath.Dir(path)
		if dir == "" || dir == "." {
			return failed
		}
		e.recoveryStatus(runID, task.ID, fmt.Sprintf("creating missing directory %s and retrying", dir))
		mk := e.tools.Execute(ctx, "bash", map[string]any{"command": "mkdir -p " + dir})
		if !mk.Success {
			return failed
		}
		return e.tools.Execute(ctx, toolName, args)

	case toolName == "bash" && strings.Contains(errLower, "permission denied"):
		cmd, _ := args["command"].(string)
		rewritten, ok := rewriteToTmp(cmd)
		if !ok {
			return failed
		}
		e.recoveryStatus(runID, task.ID, "permission denied, retrying under /tmp")
		retryArgs := map[string]any{"command": rewritten}
		for k, v := range args {
			if k != "command" {
				retryArgs[k] = v
			}
		}
		return e.tools.Execute(ctx, toolName, retryArgs)

	case toolName == "web" &&
		(strings.Contains(errLower, "timeout") || strings.Contains(errLower, "network") ||
			strings.Contains(errLower, "connection")):
		e.recoveryStatus(runID, task.ID, "network error, retrying once")
		select {
		case <-ctx.Done():
			return failed
		case <-time.After(recoveryWebPause):
		}
		return e.tools.Execute(ctx, toolName, args)
	}
	return failed
}

func (e *Executor) recoveryStatus(runID, taskID, msg string) {
	e.logger.Info("task %s recovery: %s", taskID, msg)
	e.bus.Publish(&event.Status{Base: event.NewBase(runID), Component: "executor", Message: msg})
}

// rewriteToTmp redirects the first protected absolute path in a command to
// /tmp. Paths already under /tmp are left alone.
func rewriteToTmp(cmd string) (string, bool) {
	fields := strings.Fields(cmd)
	for i, f := range fields {
		if strings.HasPrefix(f, "/") && !strings.HasPrefix(f, "/tmp/") && f != "/tmp" {
			fields[i] = filepath.Join("/tmp", filepath.Base(f))
			return strings.Join(fields, " "), true
		}
	}
	return cmd, false
}

// trackSideEffects records created files, commands and searches on the
// execution context after a successful invocation.
func (e *Executor) trackSideEffects(toolName string, args map[string]any, res tool.Result, execCtx *ExecutionContext) {
	switch toolName {
	case "write_file", "file":
		if path, _ := args["file_path"].(string); path != "" {
			execCtx.TrackCreatedFile(path)
		}
	case "edit", "smart_edit":
		if path, _ := args["file_path"].(string); path != "" {
			execCtx.TrackModifiedFile(path)
		}
	case "bash":
		if cmd, _ := args["command"].(string); cmd != "" {
			execCtx.TrackCommand(cmd)
		}
		for _, line := range strings.Split(res.Output, "\n") {
			line = strings.TrimSpace(line)
			for _, prefix := range []string{"File written: ", "Created: "} {
				if strings.HasPrefix(line, prefix) {
					execCtx.TrackCreatedFile(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
				}
			}
		}
	case "web":
		if q, _ := args["query"].(string); q != "" {
			execCtx.TrackWebSearch(q)
		}
	}
}
