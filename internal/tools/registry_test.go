package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

type mockTool struct {
	name   string
	execFn func(ctx context.Context, args map[string]any) *Result
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Description() string { return "mock tool" }
func (m *mockTool) Parameters() map[string]any {
	return map[string]any{"$schema": "x", "type": "object"}
}
func (m *mockTool) Execute(ctx context.Context, args map[string]any) *Result {
	if m.execFn != nil {
		return m.execFn(ctx, args)
	}
	return NewResult("ok")
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockTool{name: "search_engine"})

	got, ok := reg.Get("search_engine")
	if !ok || got.Name() != "search_engine" {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected missing tool")
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	result := reg.Execute(context.Background(), "missing", nil)
	if !result.IsError {
		t.Error("expected error result for unknown tool")
	}
}

func TestRegistry_ExecuteNilResult(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockTool{name: "nil", execFn: func(context.Context, map[string]any) *Result { return nil }})
	if r := reg.Execute(context.Background(), "nil", nil); r == nil || !r.IsError {
		t.Errorf("expected error result, got %+v", r)
	}
}

func TestRegistry_ScrubsOutput(t *testing.T) {
	reg := NewRegistry()
	reg.SetScrubber(NewScrubber("bd-token-123456"))
	reg.Register(&mockTool{
		name: "leaky",
		execFn: func(ctx context.Context, args map[string]any) *Result {
			return NewResult("token bd-token-123456 and sk-abcdefghijklmnopqrstuvwxyz1234567890")
		},
	})

	out := reg.Execute(context.Background(), "leaky", nil).ForLLM
	if strings.Contains(out, "bd-token-123456") || strings.Contains(out, "sk-abc") {
		t.Errorf("credentials leaked: %q", out)
	}
}

func TestRegistry_ScrubbingDisabled(t *testing.T) {
	reg := NewRegistry()
	reg.SetScrubber(nil)
	secret := "sk-abcdefghijklmnopqrstuvwxyz1234567890"
	reg.Register(&mockTool{name: "raw", execFn: func(context.Context, map[string]any) *Result { return NewResult(secret) }})
	if got := reg.Execute(context.Background(), "raw", nil).ForLLM; got != secret {
		t.Errorf("got %q", got)
	}
}

func TestRegistry_RateLimitPerKey(t *testing.T) {
	reg := NewRegistry()
	reg.SetRateLimiter(NewToolRateLimiter(2, time.Hour))
	reg.Register(&mockTool{name: "scrape"})

	run1 := WithLimitKey(context.Background(), "run-1")
	for i := 0; i < 2; i++ {
		if r := reg.Execute(run1, "scrape", nil); r.IsError {
			t.Fatalf("call %d should succeed: %s", i, r.ForLLM)
		}
	}
	if r := reg.Execute(run1, "scrape", nil); !r.IsError {
		t.Error("3rd call should be rate-limited")
	}
	if r := reg.Execute(WithLimitKey(context.Background(), "run-2"), "scrape", nil); r.IsError {
		t.Error("different run should be allowed")
	}
	// No key: not limited.
	for i := 0; i < 5; i++ {
		if r := reg.Execute(context.Background(), "scrape", nil); r.IsError {
			t.Fatalf("unkeyed call %d limited", i)
		}
	}
}

func TestRegistry_ProviderDefsSortedAndCleaned(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockTool{name: "zeta"})
	reg.Register(&mockTool{name: "alpha"})

	defs := reg.ProviderDefs()
	if len(defs) != 2 || defs[0].Function.Name != "alpha" || defs[1].Function.Name != "zeta" {
		t.Fatalf("defs = %+v", defs)
	}
	if _, ok := defs[0].Function.Parameters["$schema"]; ok {
		t.Error("expected schema to be cleaned")
	}
	if defs[0].Type != "function" {
		t.Errorf("type = %q", defs[0].Type)
	}
	if reg.Count() != 2 {
		t.Errorf("count = %d", reg.Count())
	}
}
