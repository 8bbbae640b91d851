package tools

import (
	"fmt"
	"sync"
	"time"
)

// ToolRateLimiter caps tool calls per key (a pipeline run ID) inside a
// sliding window. Web scraping through the MCP server is billed per request,
// so a runaway tool loop is stopped here.
type ToolRateLimiter struct {
	mu      sync.Mutex
	calls   map[string][]time.Time
	max     int
	window  time.Duration
	nowFunc func() time.Time
}

// NewToolRateLimiter allows max calls per window. max <= 0 returns nil,
// which the registry treats as unlimited.
func NewToolRateLimiter(max int, window time.Duration) *ToolRateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ToolRateLimiter{
		calls:   make(map[string][]time.Time),
		max:     max,
		window:  window,
		nowFunc: time.Now,
	}
}

// Allow records a call for key, or returns an error if the window is full.
func (rl *ToolRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	entries := prune(rl.calls[key], now.Add(-rl.window))
	if len(entries) >= rl.max {
		rl.calls[key] = entries
		return fmt.Errorf("tool call limit reached: %d calls per %s", rl.max, rl.window)
	}
	rl.calls[key] = append(entries, now)
	return nil
}

// Forget drops all state for key. Called when a run finishes.
func (rl *ToolRateLimiter) Forget(key string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.calls, key)
	rl.mu.Unlock()
}

// Cleanup removes keys whose calls have all aged out.
func (rl *ToolRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.nowFunc().Add(-rl.window)
	for key, entries := range rl.calls {
		if kept := prune(entries, cutoff); len(kept) == 0 {
			delete(rl.calls, key)
		} else {
			rl.calls[key] = kept
		}
	}
}

func prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && entries[i].Before(cutoff) {
		i++
	}
	return entries[i:]
}
