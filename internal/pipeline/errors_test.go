package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/config"
	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/internal/providers"
)

func TestClassify(t *testing.T) {
	stage := func(err error) error {
		return &StageError{Stage: StageJobListings, Name: "Job Finder", Attempts: 1, Err: err}
	}
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"validation", &config.ValidationError{Missing: []string{"OPENAI_API_KEY"}}, KindConfig},
		{"bad url", fmt.Errorf("%w: empty", ErrInvalidURL), KindConfig},
		{"startup", &mcp.StartupError{Command: "npx", Phase: "handshake", Timeout: true, Err: context.DeadlineExceeded}, KindStartup},
		{"startup inside stage", stage(fmt.Errorf("load tools: %w", &mcp.StartupError{Command: "npx", Phase: "launch", Err: errors.New("x")})), KindStartup},
		{"rate limited", stage(&providers.HTTPError{StatusCode: 429}), KindTransient},
		{"server error", stage(&providers.HTTPError{StatusCode: 502}), KindTransient},
		{"bad request", stage(&providers.HTTPError{StatusCode: 400}), KindFatal},
		{"deadline", stage(context.DeadlineExceeded), KindTransient},
		{"overloaded text", stage(errors.New("model is overloaded")), KindTransient},
		{"canceled", stage(context.Canceled), KindCanceled},
		{"max iterations", stage(&agent.MaxIterationsError{Agent: "x", Iterations: 12}), KindFatal},
		{"plain", errors.New("something odd"), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFailure(t *testing.T) {
	stage := func(err error) error {
		return &StageError{Stage: StageProfileAnalysis, Name: "LinkedIn Profile Analyzer", Attempts: 3, Err: err}
	}
	tests := []struct {
		err  error
		want string
	}{
		{&config.ValidationError{Missing: []string{"OPENAI_API_KEY", "WEB_UNLOCKER_ZONE"}}, "OPENAI_API_KEY, WEB_UNLOCKER_ZONE"},
		{&mcp.StartupError{Command: "npx", Phase: "handshake", Timeout: true}, "did not become ready"},
		{&mcp.StartupError{Command: "npx", Phase: "launch", Err: errors.New("not found")}, "failed to start"},
		{stage(&providers.HTTPError{Provider: "openai", StatusCode: 429, Body: `{"error":"rate"}`}), "rate limit"},
		{stage(&providers.HTTPError{Provider: "openai", StatusCode: 401, Body: `{"error":{"code":"invalid_api_key"}}`}), "OPENAI_API_KEY"},
		{stage(errors.New("maximum context length is 128000 tokens")), "context window"},
		{stage(&agent.MaxIterationsError{Iterations: 12}), "12 rounds"},
		{stage(errors.New("weird")), "--verbose"},
	}
	for _, tt := range tests {
		got := FormatFailure(tt.err)
		if !strings.Contains(got, tt.want) {
			t.Errorf("FormatFailure(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}

	got := FormatFailure(stage(&providers.HTTPError{Provider: "openai", StatusCode: 500, Body: `{"secret":"payload"}`}))
	if strings.Contains(got, "payload") {
		t.Errorf("raw body leaked: %q", got)
	}
	if !strings.HasPrefix(got, `Stage "LinkedIn Profile Analyzer" failed`) {
		t.Errorf("missing stage prefix: %q", got)
	}
	if FormatFailure(nil) != "" {
		t.Error("nil error should format as empty")
	}
}

func TestStageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageURLCleanup, Name: "URL Parser", Attempts: 2, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap broken")
	}
	if !strings.Contains(err.Error(), StageURLCleanup) || !strings.Contains(err.Error(), "2 attempt") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestFailureKindString(t *testing.T) {
	for k, want := range map[FailureKind]string{
		KindFatal: "fatal", KindConfig: "config", KindStartup: "startup",
		KindTransient: "transient", KindCanceled: "canceled",
	} {
		if k.String() != want {
			t.Errorf("%d.String() = %q", k, k.String())
		}
	}
}
