package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/jobscout/internal/providers"
	"github.com/nextlevelbuilder/jobscout/internal/tools"
)

const DefaultMaxIterations = 12

// MaxIterationsError is returned when the model keeps calling tools past the cap.
type MaxIterationsError struct {
	Agent      string
	Iterations int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("agent %q did not finish within %d iterations", e.Agent, e.Iterations)
}

// ToolCallRecord summarizes one tool execution.
type ToolCallRecord struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error"`
}

// Result is the outcome of one agent run.
type Result struct {
	FinalOutput string
	Iterations  int
	ToolCalls   []ToolCallRecord
	Usage       providers.Usage
}

// Runner drives Spec executions against a provider.
type Runner struct {
	provider      providers.Provider
	maxIterations int
	guard         *InputGuard
	contextWindow int
	pruning       PruningSettings
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxIterations caps model round trips per run.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithInputGuard scans every stage input before it is sent.
func WithInputGuard(g *InputGuard) RunnerOption {
	return func(r *Runner) { r.guard = g }
}

// WithContextWindow enables pruning of old tool results once the
// conversation nears tokens. 0 disables pruning.
func WithContextWindow(tokens int, s PruningSettings) RunnerOption {
	return func(r *Runner) {
		r.contextWindow = tokens
		r.pruning = s
	}
}

func NewRunner(p providers.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{provider: p, maxIterations: DefaultMaxIterations, pruning: DefaultPruningSettings()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run sends input to the model under spec's instructions. When reg is
// non-nil and spec.UsesTools is set, tool calls are executed and fed back
// until the model answers with plain text.
func (r *Runner) Run(ctx context.Context, spec Spec, input string, reg *tools.Registry) (*Result, error) {
	if r.guard != nil {
		if err := r.guard.Inspect(spec.Name, input); err != nil {
			return nil, err
		}
	}

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: spec.Instructions},
		{Role: providers.RoleUser, Content: input},
	}

	var defs []providers.ToolDefinition
	if spec.UsesTools && reg != nil {
		defs = reg.ProviderDefs()
	}

	result := &Result{}
	for result.Iterations < r.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations++
		messages = pruneToolResults(messages, r.contextWindow, r.pruning)

		resp, err := r.provider.Chat(ctx, providers.ChatRequest{
			Model:    spec.Model,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			return nil, err
		}
		result.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				slog.Warn("agent returned empty output", "agent", spec.Name, "finish_reason", resp.FinishReason)
			}
			result.FinalOutput = resp.Content
			return result, nil
		}

		if len(defs) == 0 {
			return nil, errors.New("model requested tools but none are available to " + spec.Name)
		}

		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			start := time.Now()
			tr := reg.Execute(ctx, tc.Name, tc.Arguments)
			rec := ToolCallRecord{Name: tc.Name, Duration: time.Since(start), IsError: tr.IsError}
			result.ToolCalls = append(result.ToolCalls, rec)

			content := tr.ForLLM
			if tr.IsError {
				content = "Error: " + content
			}
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, &MaxIterationsError{Agent: spec.Name, Iterations: r.maxIterations}
}
