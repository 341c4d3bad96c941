package agent

import (
	"os"
	"strings"
	"sync"
)

// ExecutionContext is the per-run mutable accumulator of side effects and
// history. The orchestrator owns it; the executor mutates it between tasks.
// All mutation goes through the mutex so parallel plans stay safe.
type ExecutionContext struct {
	mu sync.Mutex

	WorkDir string
	Env     map[string]string

	previousResults  []ExecutionResult
	createdFiles     []string
	modifiedFiles    []string
	deletedFiles     []string
	executedCommands []string
	webSearches      []string
	toolExecutions   map[string][]string // task id → tools used
	taskHistory      []TaskRecord
	trioLog          []TrioMessage
}

// NewExecutionContext snapshots the working directory and environment.
func NewExecutionContext(workDir string) *ExecutionContext {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return &ExecutionContext{
		WorkDir:        workDir,
		Env:            env,
		toolExecutions: make(map[string][]string),
	}
}

// AppendResult records a task outcome in execution order.
func (c *ExecutionContext) AppendResult(r ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previousResults = append(c.previousResults, r)
}

// PreviousResults returns a copy of the ordered task outcomes so far.
func (c *ExecutionContext) PreviousResults() []ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExecutionResult, len(c.previousResults))
	copy(out, c.previousResults)
	return out
}

// ResultFor looks up the result of a task by id.
func (c *ExecutionContext) ResultFor(taskID string) (ExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.previousResults {
		if r.TaskID == taskID {
			return r, true
		}
	}
	return ExecutionResult{}, false
}

// TrackCreatedFile appends a path to createdFiles, deduplicated.
func (c *ExecutionContext) TrackCreatedFile(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.createdFiles {
		if p == path {
			return
		}
	}
	c.createdFiles = append(c.createdFiles, path)
}

// CreatedFiles returns a copy of the created-file list in creation order.
func (c *ExecutionContext) CreatedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.createdFiles))
	copy(out, c.createdFiles)
	return out
}

// LastCreatedFile returns the most recently created file, if any.
func (c *ExecutionContext) LastCreatedFile() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.createdFiles) == 0 {
		return "", false
	}
	return c.createdFiles[len(c.createdFiles)-1], true
}

// TrackModifiedFile appends to modifiedFiles, deduplicated.
func (c *ExecutionContext) TrackModifiedFile(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.modifiedFiles {
		if p == path {
			return
		}
	}
	c.modifiedFiles = append(c.modifiedFiles, path)
}

// ModifiedFiles returns a copy of the modified-file list.
func (c *ExecutionContext) ModifiedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.modifiedFiles))
	copy(out, c.modifiedFiles)
	return out
}

// TrackCommand appends an executed shell command.
func (c *ExecutionContext) TrackCommand(cmd string) {
	if cmd == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executedCommands = append(c.executedCommands, cmd)
}

// TrackWebSearch appends a web query.
func (c *ExecutionContext) TrackWebSearch(query string) {
	if query == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webSearches = append(c.webSearches, query)
}

// RecordToolExecution adds a tool name under the task id.
func (c *ExecutionContext) RecordToolExecution(taskID, toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolExecutions[taskID] = append(c.toolExecutions[taskID], toolName)
}

// ToolExecutions returns a copy of the task-id→tools map.
func (c *ExecutionContext) ToolExecutions() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string, len(c.toolExecutions))
	for k, v := range c.toolExecutions {
		tools := make([]string, len(v))
		copy(tools, v)
		out[k] = tools
	}
	return out
}

// RecordHistory appends a taskHistory entry. Entries are never reordered or
// removed during a run.
func (c *ExecutionContext) RecordHistory(rec TaskRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskHistory = append(c.taskHistory, rec)
}

// TaskHistory returns a copy of the history log.
func (c *ExecutionContext) TaskHistory() []TaskRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TaskRecord, len(c.taskHistory))
	copy(out, c.taskHistory)
	return out
}

// LogTrio appends a trio message to the run log.
func (c *ExecutionContext) LogTrio(msg TrioMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trioLog = append(c.trioLog, msg)
}

// TrioLog returns a copy of the trio message log.
func (c *ExecutionContext) TrioLog() []TrioMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrioMessage, len(c.trioLog))
	copy(out, c.trioLog)
	return out
}
