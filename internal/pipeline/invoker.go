package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/tools"
)

// StageInvoker runs one stage spec against one input.
type StageInvoker interface {
	Invoke(ctx context.Context, spec agent.Spec, input string) (*agent.Result, error)
}

// InvokerFunc adapts a plain function to StageInvoker.
type InvokerFunc func(ctx context.Context, spec agent.Spec, input string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, spec agent.Spec, input string) (*agent.Result, error) {
	out, err := f(ctx, spec, input)
	if err != nil {
		return nil, err
	}
	return &agent.Result{FinalOutput: out, Iterations: 1}, nil
}

// ToolSource supplies the web tools for stages with tool access.
// *mcp.Supervisor implements it.
type ToolSource interface {
	Tools(ctx context.Context) ([]tools.Tool, error)
}

// AgentInvoker runs stages through an agent.Runner, granting MCP tools only
// to specs that ask for them.
type AgentInvoker struct {
	runner   *agent.Runner
	source   ToolSource
	limiter  *tools.ToolRateLimiter
	scrubber *tools.Scrubber
}

// NewAgentInvoker wires a runner to a tool source. limiter and scrubber may be nil.
func NewAgentInvoker(runner *agent.Runner, source ToolSource, limiter *tools.ToolRateLimiter, scrubber *tools.Scrubber) *AgentInvoker {
	return &AgentInvoker{runner: runner, source: source, limiter: limiter, scrubber: scrubber}
}

func (a *AgentInvoker) Invoke(ctx context.Context, spec agent.Spec, input string) (*agent.Result, error) {
	var reg *tools.Registry
	if spec.UsesTools {
		if a.source == nil {
			return nil, errors.New("no tool source configured for " + spec.Name)
		}
		list, err := a.source.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("load tools: %w", err)
		}
		reg = tools.NewRegistry()
		if a.scrubber != nil {
			reg.SetScrubber(a.scrubber)
		}
		reg.SetRateLimiter(a.limiter)
		for _, t := range list {
			reg.Register(t)
		}
	}
	return a.runner.Run(ctx, spec, input, reg)
}

// RunFinished releases per-run rate-limit state.
func (a *AgentInvoker) RunFinished(runID string) {
	a.limiter.Forget(runID)
}
