package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/config"
	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
	"github.com/nextlevelbuilder/jobscout/internal/providers"
	"github.com/nextlevelbuilder/jobscout/internal/tools"
	"github.com/nextlevelbuilder/jobscout/internal/tracing"
)

// app holds the long-lived components shared by analyze and serve.
type app struct {
	cfg        *config.Config
	supervisor *mcp.Supervisor
	orch       *pipeline.Orchestrator
	collector  *tracing.Collector
}

// newApp wires provider, MCP supervisor, stage runner and orchestrator.
// Nothing is launched yet; the subprocess starts on first Initialize.
func newApp(ctx context.Context, cfg *config.Config, obs pipeline.Observer) (*app, error) {
	command, args, err := cfg.MCPCommand()
	if err != nil {
		return nil, err
	}

	supervisor := mcp.NewSupervisor(mcp.Options{
		Command:         command,
		Args:            args,
		APIToken:        cfg.MCP.APIToken,
		WebUnlockerZone: cfg.MCP.WebUnlockerZone,
		StartTimeout:    cfg.StartTimeout(),
		ToolTimeout:     time.Duration(cfg.MCP.ToolTimeoutSec) * time.Second,
		ToolPrefix:      cfg.MCP.ToolPrefix,
		ClientName:      "jobscout",
		ClientVersion:   Version,
	})

	provider := providers.NewOpenAIProvider("openai", cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, time.Duration(cfg.Provider.TimeoutSec)*time.Second)
	runner := agent.NewRunner(provider,
		agent.WithMaxIterations(cfg.Pipeline.MaxToolIterations),
		agent.WithInputGuard(agent.NewInputGuard(agent.GuardAction(cfg.Pipeline.InputGuard))),
		agent.WithContextWindow(cfg.Pipeline.ContextWindow, agent.DefaultPruningSettings()),
	)
	invoker := pipeline.NewAgentInvoker(runner, supervisor,
		tools.NewToolRateLimiter(cfg.MCP.MaxCallsPerHour, time.Hour),
		tools.NewScrubber(cfg.Provider.APIKey, cfg.MCP.APIToken),
	)

	collector := tracing.NewCollector()
	initOTelExporter(ctx, cfg, collector)
	collector.Start()

	opts := []pipeline.Option{
		pipeline.WithRetry(retryConfig(cfg)),
		pipeline.WithBudget(pipeline.NewBudget(cfg.Pipeline.StageMaxTokens)),
		pipeline.WithCollector(collector),
	}
	if obs != nil {
		opts = append(opts, pipeline.WithObserver(obs))
	}
	orch, err := pipeline.New(invoker, pipeline.BuildStages(cfg.Provider.Model, cfg.Pipeline.Stages), opts...)
	if err != nil {
		collector.Stop()
		return nil, err
	}

	return &app{cfg: cfg, supervisor: supervisor, orch: orch, collector: collector}, nil
}

func retryConfig(cfg *config.Config) pipeline.RetryConfig {
	rc := pipeline.DefaultRetryConfig()
	rc.MaxRetries = cfg.Pipeline.MaxRetries
	if cfg.Pipeline.RetryBaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(cfg.Pipeline.RetryBaseDelayMs) * time.Millisecond
	}
	if cfg.Pipeline.RetryMaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(cfg.Pipeline.RetryMaxDelayMs) * time.Millisecond
	}
	return rc
}

// Close stops the MCP subprocess and flushes spans.
func (a *app) Close() {
	if err := a.supervisor.Close(); err != nil {
		slog.Warn("mcp server shutdown failed", "error", err)
	}
	a.collector.Stop()
}
