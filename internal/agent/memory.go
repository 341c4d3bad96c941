package agent

import "context"

// MemoryProvider is the black-box persistence the core may be wired with.
// Retrieval and persistence failures are logged, never fatal: the core is
// correct without memory.
type MemoryProvider interface {
	// BuildPrompt returns context components to prepend to the user prompt.
	BuildPrompt(ctx context.Context, prompt string) (string, error)

	// StoreKnowledge persists a keyed knowledge record under a category.
	StoreKnowledge(ctx context.Context, key, value, category string) error

	// StoreChunk persists a semantic chunk for later retrieval.
	StoreChunk(ctx context.Context, path, content, kind string, metadata map[string]any) error

	// AddAssistantResponse records the assistant's final reply.
	AddAssistantResponse(ctx context.Context, text string) error

	// TrackAPITokens accounts tokens consumed by the run.
	TrackAPITokens(n int)

	// SetMode configures retrieval pacing for the current run.
	SetMode(mode Mode)
}
