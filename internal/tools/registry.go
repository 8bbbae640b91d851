package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/jobscout/internal/providers"
)

type limitKey struct{}

// WithLimitKey tags ctx with the key used for per-run rate limiting.
func WithLimitKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, limitKey{}, key)
}

// LimitKeyFromCtx returns the rate-limit key, or "".
func LimitKeyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(limitKey{}).(string)
	return v
}

// Registry holds the tools one stage may call.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *ToolRateLimiter // nil = no rate limiting
	scrubber    *Scrubber        // nil = no scrubbing
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		scrubber: NewScrubber(),
	}
}

// SetRateLimiter enables per-key rate limiting of tool calls.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.rateLimiter = rl
}

// SetScrubber replaces the output scrubber. nil disables scrubbing.
func (r *Registry) SetScrubber(s *Scrubber) {
	r.scrubber = s
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name. Unknown tools and rate-limited calls come back
// as error results so the model can react to them.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	if r.rateLimiter != nil {
		if key := LimitKeyFromCtx(ctx); key != "" {
			if err := r.rateLimiter.Allow(key); err != nil {
				return ErrorResult(err.Error())
			}
		}
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	if result == nil {
		result = ErrorResult("tool returned no result: " + name)
	}

	if r.scrubber != nil && result.ForLLM != "" {
		result.ForLLM = r.scrubber.Scrub(result.ForLLM)
	}

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", result.IsError,
		"bytes", len(result.ForLLM),
	)
	return result
}

// ProviderDefs returns tool definitions sorted by name.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, ToProviderDef(t))
		}
	}
	return defs
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
