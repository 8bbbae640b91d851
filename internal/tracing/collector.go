// Package tracing records one trace per pipeline run and one span per stage,
// and forwards them to an optional exporter.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	previewMaxLen        = 500
)

// Span kinds.
const (
	KindRun   = "run"
	KindStage = "stage"
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Span is one timed unit of work.
type Span struct {
	ID            uuid.UUID
	TraceID       uuid.UUID
	ParentID      *uuid.UUID
	Kind          string
	Name          string
	Model         string
	Status        string
	Error         string
	StartTime     time.Time
	EndTime       time.Time
	Attempts      int
	ToolCalls     int
	InputTokens   int
	OutputTokens  int
	InputPreview  string
	OutputPreview string
}

// Duration returns EndTime - StartTime.
func (s Span) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// SpanExporter receives flushed spans (e.g. OpenTelemetry OTLP).
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []Span)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans and flushes them to the exporter in batches.
// Without an exporter, spans are discarded at flush time.
type Collector struct {
	spanCh   chan Span
	stopCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
	exporter SpanExporter
	stopOnce sync.Once
}

func NewCollector() *Collector {
	return &Collector{
		spanCh:   make(chan Span, defaultBufferSize),
		stopCh:   make(chan struct{}),
		interval: defaultFlushInterval,
	}
}

// SetExporter attaches an external span exporter. Call before Start.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Debug("tracing collector started")
}

// Stop flushes remaining spans and shuts the exporter down.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		if c.exporter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.exporter.Shutdown(ctx); err != nil {
				slog.Warn("tracing: span exporter shutdown failed", "error", err)
			}
		}
		slog.Debug("tracing collector stopped")
	})
}

// EmitSpan enqueues a span. It never blocks: the span is dropped when the
// buffer is full. A nil Collector ignores the call.
func (c *Collector) EmitSpan(span Span) {
	if c == nil {
		return
	}
	if span.ID == uuid.Nil {
		span.ID = GenNewID()
	}
	span.InputPreview = truncatePreview(span.InputPreview)
	span.OutputPreview = truncatePreview(span.OutputPreview)

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span", "kind", span.Kind, "name", span.Name)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []Span
drain:
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			break drain
		}
	}
	if len(spans) == 0 || c.exporter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.exporter.ExportSpans(ctx, spans)
	slog.Debug("tracing: flushed spans", "count", len(spans))
}

// truncatePreview sanitizes and truncates a string to previewMaxLen bytes.
func truncatePreview(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= previewMaxLen {
		return s
	}
	maxLen := previewMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
