package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	errs "pilot/internal/errors"
	"pilot/internal/event"
	"pilot/internal/llm"
	"pilot/internal/shared/jsonx"
	"pilot/internal/shared/logging"
	"pilot/internal/tool"
)

// ChatClient is the planner/executor view of the LLM conduit.
type ChatClient interface {
	Chat(ctx context.Context, runID string, req llm.Request) (string, error)
}

// SchemaSource enumerates tool schemas in stable order.
type SchemaSource interface {
	List() []tool.Schema
}

// Planner turns a prompt into either a conversation reply or a TaskPlan of
// atomic, tool-bound tasks. It never returns a partial plan: on structural
// errors it fails the whole call.
type Planner struct {
	llm      ChatClient
	registry SchemaSource
	memory   MemoryProvider
	bus      *event.Bus
	logger   logging.Logger
	now      func() time.Time
}

// NewPlanner wires a planner. memory may be nil.
func NewPlanner(client ChatClient, registry SchemaSource, memory MemoryProvider, bus *event.Bus, logger logging.Logger) *Planner {
	return &Planner{
		llm:      client,
		registry: registry,
		memory:   memory,
		bus:      bus,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// planEntry is one raw task from the LLM. Legacy key "tasks" and legacy
// tool identifier "type" are accepted alongside the preferred "plan"/"tool".
type planEntry struct {
	ID           string                    `json:"id"`
	Description  string                    `json:"description"`
	Tool         string                    `json:"tool"`
	Type         string                    `json:"type"` // legacy tool identifier
	Command      string                    `json:"command"`
	FilePath     string                    `json:"file_path"`
	Path         string                    `json:"path"`
	Content      *string                   `json:"content"` // nil means "generate at execution time"
	Query        string                    `json:"query"`
	Pattern      string                    `json:"pattern"`
	Arguments    map[string]map[string]any `json:"arguments"`
	Dependencies []string                  `json:"dependencies"`
}

type planResponse struct {
	Type     string      `json:"type"`
	Response string      `json:"response"`
	Plan     []planEntry `json:"plan"`
	Tasks    []planEntry `json:"tasks"` // legacy key
}

// CreatePlan runs one planning call for the prompt. hint, when non-empty, is
// prepended framing (e.g. "SIMPLE QUESTION") that biases the model toward a
// conversation reply.
func (p *Planner) CreatePlan(ctx context.Context, runID, prompt, hint string) (*TaskPlan, error) {
	p.bus.Publish(&event.PlanningStart{Base: event.NewBase(runID), Prompt: prompt})

	enriched := prompt
	if p.memory != nil {
		if memCtx, err := p.memory.BuildPrompt(ctx, prompt); err != nil {
			p.logger.Warn("memory retrieval failed, planning without it: %v", err)
		} else if memCtx != "" {
			enriched = memCtx + "\n\n" + prompt
		}
	}

	schemas := p.registry.List()
	parsed, err := p.planWithRetry(ctx, runID, p.buildPlannerPrompt(enriched, schemas, hint))
	if err != nil {
		return nil, err
	}

	plan, err := p.assemblePlan(runID, prompt, parsed)
	if err != nil {
		return nil, err
	}

	p.bus.Publish(&event.PlanningComplete{
		Base:         event.NewBase(runID),
		PlanID:       plan.ID,
		TaskCount:    len(plan.Tasks),
		Complexity:   string(plan.Complexity),
		Conversation: plan.IsConversation(),
	})
	return plan, nil
}

// planWithRetry performs the first attempt and, on a parse failure, one more
// attempt with a simplified prompt. A second parse failure is fatal.
func (p *Planner) planWithRetry(ctx context.Context, runID, prompt string) (*planResponse, error) {
	content, err := p.llm.Chat(ctx, runID, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		ForceJSON: true,
	})
	if err != nil {
		return nil, err
	}

	parsed, parseErr := parsePlanResponse(content)
	if parseErr == nil {
		return parsed, nil
	}

	p.logger.Warn("plan response did not parse (%v), retrying with simplified prompt", parseErr)
	p.bus.Publish(&event.Status{
		Base:      event.NewBase(runID),
		Component: "planner",
		Message:   "response was not valid JSON, retrying with simplified prompt",
	})

	content, err = p.llm.Chat(ctx, runID, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: simplifiedPlannerPrompt(prompt)}},
		ForceJSON: true,
	})
	if err != nil {
		return nil, err
	}
	parsed, parseErr = parsePlanResponse(content)
	if parseErr != nil {
		return nil, errs.New(errs.KindPlanInvalidJSON, "planner produced unparseable JSON twice: %v", parseErr)
	}
	return parsed, nil
}

// parsePlanResponse decodes the planner JSON, repairing structurally damaged
// output before giving up.
func parsePlanResponse(content string) (*planResponse, error) {
	raw := llm.StripJSONFraming(content)
	if raw == "" || (raw[0] != '{' && raw[0] != '[') {
		return nil, fmt.Errorf("no JSON object in planner response")
	}

	var parsed planResponse
	if err := jsonx.Unmarshal([]byte(raw), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("unmarshal plan: %w (repair also failed: %v)", err, repairErr)
		}
		if err := jsonx.Unmarshal([]byte(repaired), &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal repaired plan: %w", err)
		}
	}

	switch parsed.Type {
	case "conversation":
		if strings.TrimSpace(parsed.Response) == "" {
			return nil, fmt.Errorf("conversation response is empty")
		}
	case "tasks":
		if len(parsed.Plan) == 0 && len(parsed.Tasks) == 0 {
			return nil, fmt.Errorf("task response carries no plan entries")
		}
	default:
		return nil, fmt.Errorf("unknown plan type %q", parsed.Type)
	}
	return &parsed, nil
}

// assemblePlan normalizes the raw entries into a validated TaskPlan.
func (p *Planner) assemblePlan(runID, prompt string, parsed *planResponse) (*TaskPlan, error) {
	plan := &TaskPlan{
		ID:         fmt.Sprintf("plan_%d", p.now().UnixMilli()),
		Prompt:     prompt,
		Complexity: classifyComplexity(prompt),
	}

	if parsed.Type == "conversation" {
		plan.ConversationResponse = parsed.Response
		plan.Complexity = ComplexitySimple
		return plan, nil
	}

	entries := parsed.Plan
	if len(entries) == 0 {
		entries = parsed.Tasks
	}

	runTS := p.now().UnixMilli()
	tasks := make([]Task, 0, len(entries))
	for i, e := range entries {
		task := normalizeEntry(e, runTS, i)
		tasks = append(tasks, task)
	}
	inferDependencies(tasks)

	plan.Tasks = tasks
	plan.Parallelizable = isParallelizable(tasks)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// normalizeEntry maps one raw entry to a Task: resolves the tool, builds its
// argument record, and assigns id/priority.
func normalizeEntry(e planEntry, runTS int64, index int) Task {
	task := Task{
		ID:           strings.TrimSpace(e.ID),
		Description:  strings.TrimSpace(e.Description),
		Dependencies: append([]string(nil), e.Dependencies...),
		Priority:     index + 1,
	}
	if task.ID == "" {
		task.ID = fmt.Sprintf("task_%d_%d", runTS, index+1)
	}

	toolName := strings.TrimSpace(e.Tool)
	if toolName == "" {
		// Legacy key: "type" identifies the tool unless it names a task type.
		if t := strings.TrimSpace(e.Type); t != "" && !isTaskType(t) {
			toolName = t
		}
	}
	if toolName != "" {
		task.Tools = []string{toolName}
	} else {
		task.Tools = inferTools(task.Description)
	}

	if len(task.Tools) > 0 {
		task.Type = TaskTool
		task.Arguments = buildArguments(e, task.Description, task.Tools)
	} else {
		task.Type = TaskSimple
	}
	return task
}

func isTaskType(s string) bool {
	switch TaskType(s) {
	case TaskSimple, TaskTool, TaskMultiStep:
		return true
	}
	return false
}

// buildArguments constructs per-tool argument records from explicit entry
// fields, falling back to description extraction.
func buildArguments(e planEntry, description string, tools []string) map[string]map[string]any {
	args := make(map[string]map[string]any, len(tools))
	for name, record := range e.Arguments {
		args[name] = record
	}

	for _, name := range tools {
		if args[name] == nil {
			args[name] = make(map[string]any)
		}
		record := args[name]
		switch name {
		case "bash":
			if _, ok := record["command"]; !ok {
				cmd := e.Command
				if cmd == "" {
					cmd = extractCommand(description)
				}
				record["command"] = cmd
			}
		case "write_file", "file":
			if _, ok := record["file_path"]; !ok {
				path := e.FilePath
				if path == "" {
					path = e.Path
				}
				if path == "" {
					path = extractFilePath(description)
				}
				record["file_path"] = path
			}
			if _, ok := record["content"]; !ok && e.Content != nil {
				record["content"] = *e.Content
			}
			// Missing content stays absent: "generate at execution time".
		case "grep", "rg":
			if _, ok := record["pattern"]; !ok {
				pattern := e.Pattern
				if pattern == "" {
					pattern = extractPattern(description)
				}
				record["pattern"] = pattern
			}
		case "web":
			if _, ok := record["query"]; !ok {
				query := e.Query
				if query == "" {
					query = extractQuoted(description)
				}
				if query == "" {
					query = description
				}
				record["query"] = query
			}
		}
	}
	return args
}

// inferDependencies adds the immediately preceding task as a dependency when
// a description refers back to earlier work.
func inferDependencies(tasks []Task) {
	for i := 1; i < len(tasks); i++ {
		if !hasAnaphora(tasks[i].Description) {
			continue
		}
		prev := tasks[i-1].ID
		already := false
		for _, dep := range tasks[i].Dependencies {
			if dep == prev {
				already = true
				break
			}
		}
		if !already {
			tasks[i].Dependencies = append(tasks[i].Dependencies, prev)
		}
	}
}

func isParallelizable(tasks []Task) bool {
	for _, t := range tasks {
		if len(t.Dependencies) > 0 {
			return false
		}
	}
	return true
}

// buildPlannerPrompt assembles the single user message: the user's text, the
// tool catalog, and the strict JSON output contract.
func (p *Planner) buildPlannerPrompt(prompt string, schemas []tool.Schema, hint string) string {
	var b strings.Builder
	if hint != "" {
		b.WriteString(hint)
		b.WriteString("\n\n")
	}
	b.WriteString("User request:\n")
	b.WriteString(prompt)
	b.WriteString("\n\n")

	if len(schemas) > 0 {
		b.WriteString("Available tools:\n")
		for _, s := range schemas {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
			for _, param := range s.Parameters {
				req := "optional"
				if param.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "    %s (%s, %s): %s\n", param.Name, param.Type, req, param.Description)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(`Respond with ONLY JSON, no prose, in exactly one of these two shapes.

For a question or chat that needs no tools:
{"type":"conversation","response":"<your answer>"}

For work that needs tools:
{"type":"tasks","plan":[{"id":"t1","description":"<what this step does>","tool":"<tool name>","command":"...","file_path":"...","content":"..."}]}

Rules:
- Each plan entry is one atomic step bound to one tool.
- Include tool-specific fields (command for bash, file_path and content for write_file).
- Omit content when the file body should be generated later.
- Order entries so every step only depends on earlier ones.`)
	return b.String()
}

func simplifiedPlannerPrompt(original string) string {
	return original + `

Your previous reply was not valid JSON. Return ONLY a JSON object, nothing else.
Either {"type":"conversation","response":"..."} or {"type":"tasks","plan":[...]}.
No markdown. No explanations.`
}
