package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pilot/internal/errors"
	"pilot/internal/event"
	"pilot/internal/llm"
	"pilot/internal/tool"
)

// stubChat replays canned responses in call order.
type stubChat struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.Request
}

func (s *stubChat) Chat(ctx context.Context, runID string, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", fmt.Errorf("stub chat: no reply prepared for call %d", i+1)
}

func (s *stubChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubSchemas []tool.Schema

func (s stubSchemas) List() []tool.Schema { return s }

func newTestPlanner(chat *stubChat) *Planner {
	p := NewPlanner(chat, stubSchemas{
		{Name: "bash", Description: "run a shell command"},
		{Name: "write_file", Description: "write a file"},
	}, nil, event.NewBus(), nil)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return p
}

func TestCreatePlanConversation(t *testing.T) {
	chat := &stubChat{replies: []string{`{"type":"conversation","response":"Hello there"}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.NoError(t, err)
	assert.True(t, plan.IsConversation())
	assert.Equal(t, "Hello there", plan.ConversationResponse)
	assert.Empty(t, plan.Tasks)
	require.NoError(t, plan.Validate())
}

func TestCreatePlanStripsFences(t *testing.T) {
	chat := &stubChat{replies: []string{
		"Here you go:\n```json\n{\"type\":\"conversation\",\"response\":\"ok\"}\n```",
	}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", plan.ConversationResponse)
}

func TestCreatePlanNormalizesTasks(t *testing.T) {
	chat := &stubChat{replies: []string{`{
		"type":"tasks",
		"plan":[
			{"description":"Run the tests","tool":"bash","command":"go test ./..."},
			{"description":"Create notes.txt","tool":"write_file","file_path":"notes.txt","content":"hello"}
		]
	}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "test then write notes", "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)

	first := plan.Tasks[0]
	assert.Equal(t, "task_1700000000000_1", first.ID)
	assert.Equal(t, TaskTool, first.Type)
	assert.Equal(t, []string{"bash"}, first.Tools)
	assert.Equal(t, "go test ./...", first.Arguments["bash"]["command"])
	assert.Equal(t, 1, first.Priority)

	second := plan.Tasks[1]
	assert.Equal(t, "notes.txt", second.Arguments["write_file"]["file_path"])
	assert.Equal(t, "hello", second.Arguments["write_file"]["content"])
	assert.Equal(t, 2, second.Priority)

	assert.True(t, plan.Parallelizable)
}

func TestCreatePlanAcceptsLegacyKeys(t *testing.T) {
	chat := &stubChat{replies: []string{`{
		"type":"tasks",
		"tasks":[{"description":"List files","type":"bash","command":"ls"}]
	}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "list files", "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, []string{"bash"}, plan.Tasks[0].Tools)
	assert.Equal(t, "ls", plan.Tasks[0].Arguments["bash"]["command"])
}

func TestCreatePlanInfersToolsFromDescription(t *testing.T) {
	chat := &stubChat{replies: []string{`{
		"type":"tasks",
		"plan":[{"description":"Create a file called report.md"}]
	}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "create report", "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, []string{"write_file"}, plan.Tasks[0].Tools)
	assert.Equal(t, "report.md", plan.Tasks[0].Arguments["write_file"]["file_path"])
	// No content supplied: stays absent so it is generated at execution time.
	_, hasContent := plan.Tasks[0].Arguments["write_file"]["content"]
	assert.False(t, hasContent)
}

func TestCreatePlanRepairsDamagedJSON(t *testing.T) {
	// Trailing comma: invalid JSON that jsonrepair can fix.
	chat := &stubChat{replies: []string{`{"type":"conversation","response":"fixed",}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "fixed", plan.ConversationResponse)
	assert.Equal(t, 1, chat.callCount())
}

func TestCreatePlanRetriesOnceOnGarbage(t *testing.T) {
	chat := &stubChat{replies: []string{
		"sorry, I cannot respond in JSON",
		`{"type":"conversation","response":"second try"}`,
	}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "second try", plan.ConversationResponse)
	assert.Equal(t, 2, chat.callCount())
}

func TestCreatePlanFailsAfterTwoGarbageReplies(t *testing.T) {
	chat := &stubChat{replies: []string{"nope", "still nope"}}
	p := newTestPlanner(chat)

	_, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.KindPlanInvalidJSON))
	assert.Equal(t, 2, chat.callCount())
}

func TestCreatePlanInfersAnaphoricDependency(t *testing.T) {
	chat := &stubChat{replies: []string{`{
		"type":"tasks",
		"plan":[
			{"description":"Create a file called data.txt","tool":"write_file","file_path":"data.txt","content":"x"},
			{"description":"Read it back","tool":"bash","command":"cat data.txt"}
		]
	}`}}
	p := newTestPlanner(chat)

	plan, err := p.CreatePlan(context.Background(), "run1", "write data then read it back", "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, []string{plan.Tasks[0].ID}, plan.Tasks[1].Dependencies)
	assert.False(t, plan.Parallelizable)
}

func TestCreatePlanRejectsForwardDependency(t *testing.T) {
	chat := &stubChat{replies: []string{`{
		"type":"tasks",
		"plan":[
			{"id":"a","description":"first","tool":"bash","command":"true","dependencies":["b"]},
			{"id":"b","description":"second","tool":"bash","command":"true"}
		]
	}`}}
	p := newTestPlanner(chat)

	_, err := p.CreatePlan(context.Background(), "run1", "ordered work", "")
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.KindPlanShape))
}

func TestCreatePlanPropagatesLLMError(t *testing.T) {
	chat := &stubChat{errs: []error{fmt.Errorf("endpoint unreachable")}}
	p := newTestPlanner(chat)

	_, err := p.CreatePlan(context.Background(), "run1", "hi", "")
	require.Error(t, err)
	assert.Equal(t, 1, chat.callCount())
}

func TestPlannerPromptCarriesToolCatalogAndHint(t *testing.T) {
	chat := &stubChat{replies: []string{`{"type":"conversation","response":"ok"}`}}
	p := newTestPlanner(chat)

	_, err := p.CreatePlan(context.Background(), "run1", "hi", "SIMPLE QUESTION: answer directly.")
	require.NoError(t, err)
	require.Equal(t, 1, chat.callCount())
	sent := chat.requests[0].Messages[0].Content
	assert.Contains(t, sent, "SIMPLE QUESTION")
	assert.Contains(t, sent, "- bash: run a shell command")
	assert.Contains(t, sent, "- write_file: write a file")
	assert.True(t, chat.requests[0].ForceJSON)
}

func TestPlanValidate(t *testing.T) {
	t.Run("conversation with tasks", func(t *testing.T) {
		plan := &TaskPlan{ConversationResponse: "hi", Tasks: []Task{{ID: "t1"}}}
		assert.True(t, errs.HasKind(plan.Validate(), errs.KindPlanShape))
	})
	t.Run("duplicate ids", func(t *testing.T) {
		plan := &TaskPlan{Tasks: []Task{
			{ID: "t1", Type: TaskSimple},
			{ID: "t1", Type: TaskSimple},
		}}
		assert.True(t, errs.HasKind(plan.Validate(), errs.KindPlanShape))
	})
	t.Run("tool task without tools", func(t *testing.T) {
		plan := &TaskPlan{Tasks: []Task{{ID: "t1", Type: TaskTool}}}
		assert.True(t, errs.HasKind(plan.Validate(), errs.KindPlanShape))
	})
}
