package llm

import (
	"strings"

	"pilot/internal/tool"
)

// Message is one turn of a chat conversation. Ordering is preserved verbatim
// on the wire.
type Message struct {
	Role       string `json:"role"` // system, user, assistant, tool
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Request describes one chat-completion call.
type Request struct {
	Messages  []Message
	Tools     []tool.Schema // advertised as callable functions; may be nil
	ForceJSON bool          // response must be raw JSON; framing is stripped
	MaxTokens int           // soft output ceiling; 0 means model default

	// Temperature is sent only when non-nil so an explicit 0 survives.
	Temperature *float64
}

// Temp is a convenience for building Temperature pointers.
func Temp(v float64) *float64 { return &v }

// Usage carries token counts for one call.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// StripJSONFraming removes markdown code fences and leading/trailing prose
// around a JSON document. It never repairs the JSON itself; structural
// validity stays the caller's responsibility.
func StripJSONFraming(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+7:]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return strings.TrimSpace(s[start : end+1])
}
