package tool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(name string, args map[string]any) Result
}

func (c *countingExecutor) Execute(ctx context.Context, name string, args map[string]any) Result {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(name, args)
	}
	return Result{Success: true, Output: "ok"}
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCachedExecutorReturnsCachedResult(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())

	args := map[string]any{"file_path": "a.txt"}
	first := cached.Execute(context.Background(), "read_file", args)
	second := cached.Execute(context.Background(), "read_file", args)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, delegate.count())
}

func TestCachedExecutorKeyIsArgOrderIndependent(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())

	cached.Execute(context.Background(), "read_file", map[string]any{"a": "1", "b": "2"})
	cached.Execute(context.Background(), "read_file", map[string]any{"b": "2", "a": "1"})

	assert.Equal(t, 1, delegate.count())
}

func TestCachedExecutorSkipsSideEffectingTools(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())

	args := map[string]any{"command": "ls"}
	cached.Execute(context.Background(), "bash", args)
	cached.Execute(context.Background(), "bash", args)

	assert.Equal(t, 2, delegate.count())
}

func TestCachedExecutorInvalidatesReadsAfterEdit(t *testing.T) {
	content := "v1"
	delegate := &countingExecutor{fn: func(name string, args map[string]any) Result {
		if name == "edit" {
			content = "v2"
		}
		return Result{Success: true, Output: content}
	}}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())
	ctx := context.Background()
	readArgs := map[string]any{"file_path": "notes.txt"}

	first := cached.Execute(ctx, "read_file", readArgs)
	assert.Equal(t, "v1", first.Output)

	cached.Execute(ctx, "edit", map[string]any{"file_path": "notes.txt", "old": "v1", "new": "v2"})

	// A read after a write to the same path must see the new content, even
	// though the pre-edit result is still within its TTL.
	second := cached.Execute(ctx, "read_file", readArgs)
	assert.Equal(t, "v2", second.Output)
	assert.Equal(t, 3, delegate.count())
}

func TestCachedExecutorEditLeavesOtherPathsCached(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())
	ctx := context.Background()

	cached.Execute(ctx, "read_file", map[string]any{"file_path": "a.txt"})
	cached.Execute(ctx, "write_file", map[string]any{"file_path": "b.txt", "content": "x"})
	cached.Execute(ctx, "read_file", map[string]any{"file_path": "a.txt"})

	// read a, write b, cached read a.
	assert.Equal(t, 2, delegate.count())
}

func TestCachedExecutorShellCommandDropsCache(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())
	ctx := context.Background()

	readArgs := map[string]any{"file_path": "a.txt"}
	cached.Execute(ctx, "read_file", readArgs)
	cached.Execute(ctx, "bash", map[string]any{"command": "rm a.txt"})
	cached.Execute(ctx, "read_file", readArgs)

	// The shell can touch any path, so its success empties the cache.
	assert.Equal(t, 3, delegate.count())
}

func TestCachedExecutorFailedMutationKeepsCache(t *testing.T) {
	delegate := &countingExecutor{fn: func(name string, args map[string]any) Result {
		if name == "edit" {
			return Result{Success: false, Error: "no match"}
		}
		return Result{Success: true, Output: "ok"}
	}}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())
	ctx := context.Background()

	readArgs := map[string]any{"file_path": "a.txt"}
	cached.Execute(ctx, "read_file", readArgs)
	cached.Execute(ctx, "edit", map[string]any{"file_path": "a.txt"})
	cached.Execute(ctx, "read_file", readArgs)

	// A failed edit changed nothing; the cached read is still valid.
	assert.Equal(t, 2, delegate.count())
}

func TestCachedExecutorNeverCachesFailures(t *testing.T) {
	delegate := &countingExecutor{fn: func(name string, args map[string]any) Result {
		return Result{Success: false, Error: "boom"}
	}}
	cached := NewCachedExecutor(delegate, DefaultCacheConfig())

	cached.Execute(context.Background(), "read_file", nil)
	cached.Execute(context.Background(), "read_file", nil)

	assert.Equal(t, 2, delegate.count())
}

func TestCachedExecutorExpiresAfterTTL(t *testing.T) {
	delegate := &countingExecutor{}
	cached := NewCachedExecutor(delegate, CacheConfig{MaxSize: 8, TTL: 10 * time.Millisecond})

	cached.Execute(context.Background(), "read_file", nil)
	time.Sleep(20 * time.Millisecond)
	cached.Execute(context.Background(), "read_file", nil)

	assert.Equal(t, 2, delegate.count())
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := cacheKey("grep", map[string]any{"pattern": "x", "path": map[string]any{"dir": "src", "depth": 2}})
	b := cacheKey("grep", map[string]any{"path": map[string]any{"depth": 2, "dir": "src"}, "pattern": "x"})
	require.Equal(t, a, b)
}
