package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"pilot/internal/shared/jsonx"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures the tool result cache behaviour.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
	// ExcludeTools lists tool names that should never be cached.
	ExcludeTools []string
}

// DefaultCacheConfig returns sensible defaults for tool result caching.
// Side-effecting tools are never cached.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize: defaultCacheMaxSize,
		TTL:     defaultCacheTTL,
		ExcludeTools: []string{
			"bash",
			"write_file",
			"file",
			"edit",
			"smart_edit",
			"git",
			"memory",
		},
	}
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// cachedExecutor wraps an Executor with an LRU result cache keyed by
// (tool name + normalised arguments). Errors are never cached.
type cachedExecutor struct {
	delegate     Executor
	cache        *lru.Cache[string, cacheEntry]
	ttl          time.Duration
	excludeTools map[string]bool
}

// NewCachedExecutor wraps delegate with an LRU result cache. Zero config
// values fall back to DefaultCacheConfig defaults.
func NewCachedExecutor(delegate Executor, config CacheConfig) Executor {
	if delegate == nil {
		return nil
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return delegate
	}
	exclude := make(map[string]bool, len(config.ExcludeTools))
	for _, name := range config.ExcludeTools {
		exclude[strings.TrimSpace(name)] = true
	}
	return &cachedExecutor{
		delegate:     delegate,
		cache:        cache,
		ttl:          config.TTL,
		excludeTools: exclude,
	}
}

func (c *cachedExecutor) Execute(ctx context.Context, name string, args map[string]any) Result {
	if c.excludeTools[strings.TrimSpace(name)] {
		result := c.delegate.Execute(ctx, name, args)
		if result.Success {
			c.invalidate(name, args)
		}
		return result
	}

	key := cacheKey(name, args)
	if entry, ok := c.cache.Get(key); ok {
		if time.Since(entry.storedAt) < c.ttl {
			return entry.result
		}
		c.cache.Remove(key)
	}

	result := c.delegate.Execute(ctx, name, args)
	if result.Success {
		c.invalidate(name, args)
		c.cache.Add(key, cacheEntry{result: result, storedAt: time.Now()})
	}
	return result
}

// mutatingPathArg maps tools that rewrite one known path to the argument
// naming it. Shell and git commands can touch anything and drop the whole
// cache instead.
var mutatingPathArg = map[string]string{
	"write_file": "file_path",
	"file":       "file_path",
	"edit":       "file_path",
	"smart_edit": "file_path",
}

// invalidate drops cached results made stale by a successful mutation. A read
// cached before a write to the same path must never outlive that write: later
// tasks in a sequential plan have to observe the post-write content.
func (c *cachedExecutor) invalidate(name string, args map[string]any) {
	name = strings.TrimSpace(name)
	if argKey, ok := mutatingPathArg[name]; ok {
		path, _ := args[argKey].(string)
		if path == "" {
			return
		}
		for _, key := range c.cache.Keys() {
			if strings.Contains(key, path) {
				c.cache.Remove(key)
			}
		}
		return
	}
	if name == "bash" || name == "git" {
		c.cache.Purge()
	}
}

// cacheKey produces a deterministic string key from tool name + arguments.
func cacheKey(name string, args map[string]any) string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(name), normalizeArgs(args))
}

// normalizeArgs serialises a map[string]any into a deterministic JSON string
// by sorting keys at every level.
func normalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := jsonx.Marshal(sortedMap(args))
	if err != nil {
		return "{}"
	}
	return string(data)
}

func sortedMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = sortedMap(nested)
		}
		out[k] = v
	}
	return out
}

var _ Executor = (*cachedExecutor)(nil)
