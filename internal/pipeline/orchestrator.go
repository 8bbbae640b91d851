// Package pipeline runs the six-stage profile-to-report chain.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/tools"
	"github.com/nextlevelbuilder/jobscout/internal/tracing"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

// StageResult is one stage's output in a Report.
type StageResult struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Model      string `json:"model" yaml:"model"`
	Output     string `json:"output" yaml:"output"`
	Attempts   int    `json:"attempts" yaml:"attempts"`
	ToolCalls  int    `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Tokens     int    `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Clipped    bool   `json:"clipped,omitempty" yaml:"clipped,omitempty"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Report is the result of a full run. Markdown is the final stage's output.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	ProfileURL string        `json:"profile_url" yaml:"profile_url"`
	Markdown   string        `json:"markdown" yaml:"markdown"`
	Stages     []StageResult `json:"stages" yaml:"stages"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	DurationMs int64         `json:"duration_ms" yaml:"duration_ms"`
}

// Output returns the output of stage id, or "".
func (r *Report) Output(id string) string {
	for _, s := range r.Stages {
		if s.ID == id {
			return s.Output
		}
	}
	return ""
}

// runFinisher is implemented by invokers that hold per-run state.
type runFinisher interface {
	RunFinished(runID string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithRetry(cfg RetryConfig) Option { return func(o *Orchestrator) { o.retry = cfg } }

func WithBudget(b *Budget) Option { return func(o *Orchestrator) { o.budget = b } }

func WithCollector(c *tracing.Collector) Option { return func(o *Orchestrator) { o.collector = c } }

func WithObserver(fn Observer) Option { return func(o *Orchestrator) { o.observer = fn } }

// Orchestrator runs the stages strictly in order. It is safe for concurrent
// runs; each run snapshots the stage list when it starts.
type Orchestrator struct {
	invoker   StageInvoker
	retry     RetryConfig
	budget    *Budget
	collector *tracing.Collector
	observer  Observer

	mu     sync.RWMutex
	stages []agent.Spec
}

// New validates stages (the six IDs of StageOrder, in order) and returns an
// orchestrator. Retries are off unless WithRetry is given.
func New(invoker StageInvoker, stages []agent.Spec, opts ...Option) (*Orchestrator, error) {
	if invoker == nil {
		return nil, fmt.Errorf("pipeline: nil stage invoker")
	}
	if err := checkStages(stages); err != nil {
		return nil, err
	}
	o := &Orchestrator{invoker: invoker, stages: stages}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func checkStages(stages []agent.Spec) error {
	if len(stages) != len(StageOrder) {
		return fmt.Errorf("pipeline: want %d stages, got %d", len(StageOrder), len(stages))
	}
	for i, id := range StageOrder {
		if stages[i].ID != id {
			return fmt.Errorf("pipeline: stage %d is %q, want %q", i+1, stages[i].ID, id)
		}
	}
	return nil
}

// SetStages swaps the stage list for subsequent runs.
func (o *Orchestrator) SetStages(stages []agent.Spec) error {
	if err := checkStages(stages); err != nil {
		return err
	}
	o.mu.Lock()
	o.stages = stages
	o.mu.Unlock()
	return nil
}

// Stages returns the current stage list.
func (o *Orchestrator) Stages() []agent.Spec {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]agent.Spec(nil), o.stages...)
}

// Run executes the pipeline for profileURL.
func (o *Orchestrator) Run(ctx context.Context, profileURL string) (*Report, error) {
	return o.RunObserved(ctx, profileURL, nil)
}

// RunObserved is Run with an extra per-run observer. The first failing
// stage aborts the run with a *StageError; later stages never run.
func (o *Orchestrator) RunObserved(ctx context.Context, profileURL string, obs Observer) (*Report, error) {
	profileURL, err := NormalizeProfileURL(profileURL)
	if err != nil {
		return nil, err
	}

	stages := o.Stages()
	runUUID := tracing.GenNewID()
	runID := runUUID.String()
	ctx = tools.WithLimitKey(ctx, runID)
	if f, ok := o.invoker.(runFinisher); ok {
		defer f.RunFinished(runID)
	}

	emit := func(e Event) {
		e.RunID = runID
		e.Total = len(stages)
		if o.observer != nil {
			o.observer(e)
		}
		if obs != nil {
			obs(e)
		}
	}

	report := &Report{RunID: runID, ProfileURL: profileURL, StartedAt: time.Now().UTC()}
	slog.Info("pipeline started", "run_id", runID, "url", profileURL)
	emit(Event{Type: protocol.RunEventStarted})

	input := profileURL
	for i, spec := range stages {
		if spec.ID == StageFinalSummary {
			input = SummaryInput(
				report.Output(StageProfileAnalysis),
				report.Output(StageDomainSuggestion),
				report.Output(StageJobListings),
				report.Output(StageURLCleanup),
			)
		}

		res, err := o.runStage(ctx, runUUID, i+1, spec, input, emit)
		if err != nil {
			o.finishRun(runUUID, report, err)
			emit(Event{Type: protocol.RunEventFailed, Stage: spec.ID, Name: spec.Name, Err: err})
			return nil, err
		}
		report.Stages = append(report.Stages, *res)
		input = res.Output
	}

	report.Markdown = input
	o.finishRun(runUUID, report, nil)
	emit(Event{Type: protocol.RunEventCompleted, Duration: time.Duration(report.DurationMs) * time.Millisecond})
	slog.Info("pipeline completed", "run_id", runID, "duration_ms", report.DurationMs)
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, runUUID uuid.UUID, index int, spec agent.Spec, input string, emit func(Event)) (*StageResult, error) {
	runID := runUUID.String()
	clipped := false
	if o.budget != nil {
		input, clipped = o.budget.Clip(input)
		if clipped {
			slog.Warn("stage input clipped to token budget", "stage", spec.ID, "run_id", runID)
		}
	}

	slog.Info("stage started", "stage", spec.ID, "name", spec.Name, "run_id", runID)
	emit(Event{Type: protocol.StageEventStarted, Stage: spec.ID, Name: spec.Name, Index: index})

	start := time.Now()
	var last *agent.Result
	notify := func(attempt int, err error, delay time.Duration) {
		slog.Warn("stage failed, retrying", "stage", spec.ID, "run_id", runID,
			"attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		emit(Event{Type: protocol.StageEventRetrying, Stage: spec.ID, Name: spec.Name, Index: index, Attempt: attempt + 1, Err: err})
	}
	out, attempts, err := executeWithRetry(ctx, o.retry, notify, func(ctx context.Context) (string, error) {
		res, err := o.invoker.Invoke(ctx, spec, input)
		if err != nil {
			return "", err
		}
		last = res
		return res.FinalOutput, nil
	})
	duration := time.Since(start)

	span := tracing.Span{
		TraceID:      runUUID,
		ParentID:     &runUUID,
		Kind:         tracing.KindStage,
		Name:         spec.ID,
		Model:        spec.Model,
		Status:       tracing.StatusOK,
		StartTime:    start,
		EndTime:      start.Add(duration),
		Attempts:     attempts,
		InputPreview: input,
	}

	if err != nil {
		span.Status = tracing.StatusError
		span.Error = err.Error()
		o.collector.EmitSpan(span)

		slog.Error("stage failed", "stage", spec.ID, "run_id", runID, "attempts", attempts,
			"duration_ms", duration.Milliseconds(), "error", err)
		stageErr := &StageError{Stage: spec.ID, Name: spec.Name, Attempts: attempts, Err: err}
		emit(Event{Type: protocol.StageEventFailed, Stage: spec.ID, Name: spec.Name, Index: index, Attempt: attempts, Duration: duration, Err: stageErr})
		return nil, stageErr
	}

	result := &StageResult{
		ID:         spec.ID,
		Name:       spec.Name,
		Model:      spec.Model,
		Output:     out,
		Attempts:   attempts,
		Clipped:    clipped,
		DurationMs: duration.Milliseconds(),
	}
	if last != nil {
		result.ToolCalls = len(last.ToolCalls)
		result.Tokens = last.Usage.TotalTokens
		span.ToolCalls = len(last.ToolCalls)
		span.InputTokens = last.Usage.PromptTokens
		span.OutputTokens = last.Usage.CompletionTokens
	}
	span.OutputPreview = out
	o.collector.EmitSpan(span)

	slog.Info("stage completed", "stage", spec.ID, "run_id", runID,
		"duration_ms", duration.Milliseconds(), "attempts", attempts, "tool_calls", result.ToolCalls)
	emit(Event{Type: protocol.StageEventCompleted, Stage: spec.ID, Name: spec.Name, Index: index, Attempt: attempts, Duration: duration})
	return result, nil
}

func (o *Orchestrator) finishRun(runUUID uuid.UUID, report *Report, err error) {
	end := time.Now().UTC()
	report.DurationMs = end.Sub(report.StartedAt).Milliseconds()

	span := tracing.Span{
		ID:            runUUID,
		TraceID:       runUUID,
		Kind:          tracing.KindRun,
		Name:          "pipeline",
		Status:        tracing.StatusOK,
		StartTime:     report.StartedAt,
		EndTime:       end,
		InputPreview:  report.ProfileURL,
		OutputPreview: report.Markdown,
	}
	if err != nil {
		span.Status = tracing.StatusError
		span.Error = err.Error()
	}
	o.collector.EmitSpan(span)
}

// NormalizeProfileURL trims raw and checks it is an absolute http(s) URL.
func NormalizeProfileURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	if !strings.HasSuffix(strings.ToLower(u.Hostname()), "linkedin.com") {
		slog.Warn("profile URL is not a linkedin.com address", "url", raw)
	}
	return raw, nil
}
