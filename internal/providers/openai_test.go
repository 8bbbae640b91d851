package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	var got oaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "search_engine", "arguments": "{\"query\":\"yc jobs\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL+"/", "gpt-5", time.Second)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "x", Arguments: map[string]any{"a": 1}}}},
			{Role: RoleTool, ToolCallID: "c0", Content: "ok"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Model != "gpt-5" {
		t.Errorf("model = %q, want default", got.Model)
	}
	if len(got.Messages) != 3 || got.Messages[1].ToolCalls[0].Function.Arguments != `{"a":1}` {
		t.Errorf("messages = %+v", got.Messages)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search_engine" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["query"] != "yc jobs" {
		t.Errorf("arguments = %v", resp.ToolCalls[0].Arguments)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "gpt-5", time.Second)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.StatusCode != 429 || !he.Retryable() {
		t.Errorf("status = %d retryable = %v", he.StatusCode, he.Retryable())
	}
	if len(he.Body) > maxErrorBody {
		t.Errorf("body not truncated: %d bytes", len(he.Body))
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "gpt-5", time.Second)
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestHTTPError_Retryable(t *testing.T) {
	tests := map[int]bool{400: false, 401: false, 408: true, 429: true, 500: true, 503: true}
	for code, want := range tests {
		if got := (&HTTPError{StatusCode: code}).Retryable(); got != want {
			t.Errorf("%d: got %v, want %v", code, got, want)
		}
	}
}
