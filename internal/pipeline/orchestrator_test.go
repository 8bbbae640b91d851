package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/providers"
	"github.com/nextlevelbuilder/jobscout/internal/tracing"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

// recordingInvoker returns canned outputs per stage and records every call.
type recordingInvoker struct {
	mu      sync.Mutex
	outputs map[string]string
	fail    map[string]error
	calls   []call
	active  int
	overlap bool
}

type call struct {
	stage string
	input string
	start time.Time
	end   time.Time
}

func (r *recordingInvoker) Invoke(ctx context.Context, spec agent.Spec, input string) (*agent.Result, error) {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	c := call{stage: spec.ID, input: input, start: time.Now()}
	r.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	c.end = time.Now()
	r.calls = append(r.calls, c)
	if err := r.fail[spec.ID]; err != nil {
		return nil, err
	}
	return &agent.Result{FinalOutput: r.outputs[spec.ID]}, nil
}

func (r *recordingInvoker) stagesCalled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, c := range r.calls {
		ids = append(ids, c.stage)
	}
	return ids
}

func (r *recordingInvoker) inputOf(stage string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.stage == stage {
			return c.input
		}
	}
	return ""
}

func scenarioOutputs() map[string]string {
	return map[string]string{
		StageProfileAnalysis:  "Profile: Engineer",
		StageDomainSuggestion: "Domain: Software",
		StageURLTemplate:      "https://workatastartup.com/jobs?domain=software",
		StageJobListings:      "Job A, Job B",
		StageURLCleanup:       "Job A (clean), Job B (clean)",
		StageFinalSummary:     "# Report",
	}
}

func newTestOrchestrator(t *testing.T, inv StageInvoker, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(inv, BuildStages("gpt-5", nil), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestRun_EndToEndScenario(t *testing.T) {
	inv := &recordingInvoker{outputs: scenarioOutputs()}
	o := newTestOrchestrator(t, inv)

	report, err := o.Run(context.Background(), "https://example.com/in/test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Markdown != "# Report" {
		t.Errorf("markdown = %q, want %q", report.Markdown, "# Report")
	}

	summaryIn := inv.inputOf(StageFinalSummary)
	for _, want := range []string{"Engineer", "Software", "Job A, Job B"} {
		if !strings.Contains(summaryIn, want) {
			t.Errorf("summary input missing %q:\n%s", want, summaryIn)
		}
	}
	if len(report.Stages) != 6 || report.RunID == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_SummaryTemplatePositions(t *testing.T) {
	inv := &recordingInvoker{outputs: map[string]string{
		StageProfileAnalysis:  "S1",
		StageDomainSuggestion: "S2",
		StageURLTemplate:      "S3",
		StageJobListings:      "S4",
		StageURLCleanup:       "S5",
		StageFinalSummary:     "done",
	}}
	o := newTestOrchestrator(t, inv)
	if _, err := o.Run(context.Background(), "https://www.linkedin.com/in/someone"); err != nil {
		t.Fatal(err)
	}

	got := inv.inputOf(StageFinalSummary)
	if got != SummaryInput("S1", "S2", "S4", "S5") {
		t.Fatalf("summary input = %q", got)
	}
	p := strings.Index(got, "LinkedIn Profile Analysis:\nS1")
	d := strings.Index(got, "Job Suggestions:\nS2")
	l := strings.Index(got, "Job Matches:\nS4")
	if p < 0 || d < 0 || l < 0 || !(p < d && d < l) {
		t.Errorf("sections out of place: %d %d %d", p, d, l)
	}
	if strings.Contains(got, "S3") {
		t.Error("URL template output must not appear in the summary input")
	}
}

func TestRun_StageInputIsPreviousOutput(t *testing.T) {
	outs := scenarioOutputs()
	inv := &recordingInvoker{outputs: outs}
	o := newTestOrchestrator(t, inv)
	url := "https://www.linkedin.com/in/someone"
	if _, err := o.Run(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		StageProfileAnalysis:  url,
		StageDomainSuggestion: outs[StageProfileAnalysis],
		StageURLTemplate:      outs[StageDomainSuggestion],
		StageJobListings:      outs[StageURLTemplate],
		StageURLCleanup:       outs[StageJobListings],
	}
	for stage, in := range want {
		if got := inv.inputOf(stage); got != in {
			t.Errorf("%s input = %q, want %q", stage, got, in)
		}
	}
}

func TestRun_Sequential(t *testing.T) {
	inv := &recordingInvoker{outputs: scenarioOutputs()}
	o := newTestOrchestrator(t, inv)
	if _, err := o.Run(context.Background(), "https://www.linkedin.com/in/x"); err != nil {
		t.Fatal(err)
	}

	if inv.overlap {
		t.Fatal("two stages ran at the same time")
	}
	got := inv.stagesCalled()
	if strings.Join(got, ",") != strings.Join(StageOrder, ",") {
		t.Fatalf("order = %v", got)
	}
	for i := 1; i < len(inv.calls); i++ {
		if inv.calls[i].start.Before(inv.calls[i-1].end) {
			t.Errorf("stage %s started before %s finished", inv.calls[i].stage, inv.calls[i-1].stage)
		}
	}
}

func TestRun_FailureShortCircuits(t *testing.T) {
	boom := errors.New("invalid request")
	inv := &recordingInvoker{
		outputs: scenarioOutputs(),
		fail:    map[string]error{StageURLTemplate: boom},
	}
	o := newTestOrchestrator(t, inv, WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}))

	report, err := o.Run(context.Background(), "https://www.linkedin.com/in/x")
	if report != nil {
		t.Error("expected no report on failure")
	}
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Stage != StageURLTemplate || se.Name != "URL Generator" || !errors.Is(err, boom) {
		t.Errorf("stage error = %+v", se)
	}
	if se.Attempts != 1 {
		t.Errorf("non-transient error retried: %d attempts", se.Attempts)
	}
	called := inv.stagesCalled()
	if len(called) != 3 {
		t.Fatalf("stages called = %v, want the first three only", called)
	}
	for _, s := range called {
		if s == StageJobListings || s == StageURLCleanup || s == StageFinalSummary {
			t.Errorf("stage %s ran after a failure", s)
		}
	}
}

// flakyInvoker fails the first n calls of one stage with err.
type flakyInvoker struct {
	stage string
	n     int
	err   error
	calls map[string]int
}

func (f *flakyInvoker) Invoke(ctx context.Context, spec agent.Spec, input string) (*agent.Result, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[spec.ID]++
	if spec.ID == f.stage && f.calls[spec.ID] <= f.n {
		return nil, f.err
	}
	return &agent.Result{FinalOutput: spec.ID + " out"}, nil
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	inv := &flakyInvoker{stage: StageJobListings, n: 2, err: &providers.HTTPError{Provider: "openai", StatusCode: 503}}
	var events []Event
	o := newTestOrchestrator(t, inv,
		WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
		WithObserver(func(e Event) { events = append(events, e) }),
	)

	report, err := o.Run(context.Background(), "https://www.linkedin.com/in/x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inv.calls[StageJobListings] != 3 {
		t.Errorf("listing calls = %d, want 3", inv.calls[StageJobListings])
	}
	var listing StageResult
	for _, s := range report.Stages {
		if s.ID == StageJobListings {
			listing = s
		}
	}
	if listing.Attempts != 3 {
		t.Errorf("attempts = %d", listing.Attempts)
	}

	retries := 0
	for _, e := range events {
		if e.Type == protocol.StageEventRetrying {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("retry events = %d, want 2", retries)
	}
}

func TestRun_NoRetryWhenDisabled(t *testing.T) {
	inv := &flakyInvoker{stage: StageProfileAnalysis, n: 1, err: &providers.HTTPError{StatusCode: 429}}
	o := newTestOrchestrator(t, inv, WithRetry(RetryConfig{MaxRetries: 0}))
	_, err := o.Run(context.Background(), "https://www.linkedin.com/in/x")
	if Classify(err) != KindTransient {
		t.Errorf("kind = %v, err = %v", Classify(err), err)
	}
	if inv.calls[StageProfileAnalysis] != 1 {
		t.Errorf("calls = %d", inv.calls[StageProfileAnalysis])
	}
}

func TestRun_InvalidURL(t *testing.T) {
	inv := &recordingInvoker{outputs: scenarioOutputs()}
	o := newTestOrchestrator(t, inv)
	for _, u := range []string{"", "   ", "linkedin.com/in/x", "ftp://linkedin.com/in/x", "https://"} {
		_, err := o.Run(context.Background(), u)
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%q: err = %v", u, err)
		}
	}
	if len(inv.stagesCalled()) != 0 {
		t.Error("no stage should run for an invalid URL")
	}
}

func TestRun_Events(t *testing.T) {
	inv := &recordingInvoker{outputs: scenarioOutputs()}
	var global, local []string
	o := newTestOrchestrator(t, inv, WithObserver(func(e Event) { global = append(global, e.Type) }))

	_, err := o.RunObserved(context.Background(), "https://www.linkedin.com/in/x", func(e Event) {
		if e.RunID == "" || e.Total != 6 {
			t.Errorf("event missing run info: %+v", e)
		}
		local = append(local, e.Type)
	})
	if err != nil {
		t.Fatal(err)
	}
	// run.started + 6*(started, completed) + run.completed
	if len(local) != 14 || len(global) != 14 {
		t.Fatalf("events: local %d global %d", len(local), len(global))
	}
	if local[0] != protocol.RunEventStarted || local[13] != protocol.RunEventCompleted {
		t.Errorf("events = %v", local)
	}
}

type spanSink struct {
	mu    sync.Mutex
	spans []tracing.Span
}

func (s *spanSink) ExportSpans(ctx context.Context, spans []tracing.Span) {
	s.mu.Lock()
	s.spans = append(s.spans, spans...)
	s.mu.Unlock()
}
func (s *spanSink) Shutdown(ctx context.Context) error { return nil }

func TestRun_EmitsSpans(t *testing.T) {
	sink := &spanSink{}
	c := tracing.NewCollector()
	c.SetExporter(sink)
	c.Start()

	inv := &recordingInvoker{outputs: scenarioOutputs(), fail: map[string]error{StageURLCleanup: errors.New("bad")}}
	o := newTestOrchestrator(t, inv, WithCollector(c))
	o.Run(context.Background(), "https://www.linkedin.com/in/x")
	c.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// 5 stage spans + 1 run span
	if len(sink.spans) != 6 {
		t.Fatalf("spans = %d", len(sink.spans))
	}
	run := sink.spans[len(sink.spans)-1]
	if run.Kind != tracing.KindRun || run.Status != tracing.StatusError {
		t.Errorf("run span = %+v", run)
	}
	for _, s := range sink.spans[:5] {
		if s.ParentID == nil || *s.ParentID != run.ID {
			t.Errorf("stage span %s not parented to run", s.Name)
		}
	}
}

func TestRun_BudgetClipsInput(t *testing.T) {
	inv := &recordingInvoker{outputs: map[string]string{
		StageProfileAnalysis: strings.Repeat("word ", 1000),
	}}
	b := NewBudget(10)
	b.load = func() (tokenCodec, error) { return nil, errors.New("offline") }
	o := newTestOrchestrator(t, inv, WithBudget(b))

	report, err := o.Run(context.Background(), "https://www.linkedin.com/in/x")
	if err != nil {
		t.Fatal(err)
	}
	in := inv.inputOf(StageDomainSuggestion)
	if !strings.HasSuffix(in, clipMarker) || len(in) > 40+len(clipMarker) {
		t.Errorf("input not clipped: %d bytes", len(in))
	}
	if !report.Stages[1].Clipped {
		t.Error("clipped flag not set")
	}
}

func TestNew_ValidatesStages(t *testing.T) {
	inv := &recordingInvoker{}
	if _, err := New(nil, BuildStages("m", nil)); err == nil {
		t.Error("nil invoker accepted")
	}
	stages := BuildStages("m", nil)
	if _, err := New(inv, stages[:5]); err == nil {
		t.Error("five stages accepted")
	}
	stages[0], stages[1] = stages[1], stages[0]
	if _, err := New(inv, stages); err == nil {
		t.Error("reordered stages accepted")
	}
}

func TestSetStages_AffectsNextRun(t *testing.T) {
	var models []string
	inv := InvokerFunc(func(ctx context.Context, spec agent.Spec, input string) (string, error) {
		models = append(models, spec.Model)
		return "x", nil
	})
	o := newTestOrchestrator(t, inv)
	if err := o.SetStages(BuildStages("gpt-5-mini", nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(context.Background(), "https://www.linkedin.com/in/x"); err != nil {
		t.Fatal(err)
	}
	for _, m := range models {
		if m != "gpt-5-mini" {
			t.Fatalf("models = %v", models)
		}
	}
	if err := o.SetStages(nil); err == nil {
		t.Error("empty stage list accepted")
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := InvokerFunc(func(ctx context.Context, spec agent.Spec, input string) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	o := newTestOrchestrator(t, inv, WithRetry(DefaultRetryConfig()))
	_, err := o.Run(ctx, "https://www.linkedin.com/in/x")
	if Classify(err) != KindCanceled {
		t.Errorf("kind = %v (%v)", Classify(err), err)
	}
}
