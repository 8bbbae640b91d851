// Package http serves the analyze pipeline over HTTP and WebSocket.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

// Analyzer runs one pipeline. *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	RunObserved(ctx context.Context, profileURL string, obs pipeline.Observer) (*pipeline.Report, error)
}

// ErrBusy is returned when MaxRuns pipelines are already in flight.
var ErrBusy = errors.New("too many analyses in progress")

// Options configures a Server.
type Options struct {
	Token        string        // bearer token; empty disables auth
	RateLimitRPM int           // per client; 0 disables
	CacheSize    int           // finished reports kept; 0 disables caching
	CacheTTL     time.Duration // 0 means no expiry
	MaxRuns      int           // concurrent pipeline runs; 0 means unbounded
	Version      string
	Status       func() mcp.Status
}

// Server exposes /v1/analyze, /v1/analyze/ws and /healthz.
type Server struct {
	analyzer Analyzer
	opts     Options
	limiter  *RateLimiter
	cache    *expirable.LRU[string, *pipeline.Report]
	group    singleflight.Group
	runs     *semaphore.Weighted
	upgrader websocket.Upgrader

	// Runs are shared between callers, so they live on the server's context
	// rather than any one request's.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(analyzer Analyzer, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		analyzer: analyzer,
		opts:     opts,
		limiter:  NewRateLimiter(opts.RateLimitRPM, 1),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.MaxRuns > 0 {
		s.runs = semaphore.NewWeighted(int64(opts.MaxRuns))
	}
	if opts.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, *pipeline.Report](opts.CacheSize, nil, opts.CacheTTL)
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /v1/analyze", s.guard(http.HandlerFunc(s.handleAnalyze)))
	mux.Handle("GET /v1/analyze/ws", s.guard(http.HandlerFunc(s.handleStream)))
	return mux
}

// Close cancels in-flight runs and stops background work.
func (s *Server) Close() {
	s.cancel()
	s.limiter.Stop()
}

// guard applies auth then the per-client rate limit.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.opts.Token) {
			writeError(w, http.StatusUnauthorized, &protocol.ErrorShape{Code: protocol.ErrUnauthorized, Message: "invalid or missing bearer token"})
			return
		}
		if !s.limiter.Allow(clientKey(r)) {
			after := s.limiter.RetryAfter()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(after.Seconds()+0.999)))
			writeError(w, http.StatusTooManyRequests, &protocol.ErrorShape{
				Code:         protocol.ErrResourceExhausted,
				Message:      "rate limit exceeded",
				Retryable:    true,
				RetryAfterMs: int(after.Milliseconds()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// analyze returns a cached report or runs the pipeline. Concurrent calls for
// the same URL share one run; obs only sees events when this caller started it.
func (s *Server) analyze(profileURL string, obs pipeline.Observer) (*pipeline.Report, bool, error) {
	if s.cache != nil {
		if report, ok := s.cache.Get(profileURL); ok {
			slog.Debug("analyze cache hit", "url", profileURL)
			return report, true, nil
		}
	}

	v, err, shared := s.group.Do(profileURL, func() (any, error) {
		// A run for this URL may have finished since the lookup above.
		if s.cache != nil {
			if report, ok := s.cache.Peek(profileURL); ok {
				return report, nil
			}
		}
		if s.runs != nil {
			if !s.runs.TryAcquire(1) {
				return nil, ErrBusy
			}
			defer s.runs.Release(1)
		}
		report, err := s.analyzer.RunObserved(s.ctx, profileURL, obs)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(profileURL, report)
		}
		return report, nil
	})
	if shared {
		slog.Debug("analyze run shared", "url", profileURL)
	}
	if err != nil {
		return nil, false, err
	}
	return v.(*pipeline.Report), false, nil
}

// errorShape maps a pipeline error onto an HTTP status and wire error.
func errorShape(err error) (int, *protocol.ErrorShape) {
	if errors.Is(err, ErrBusy) {
		return http.StatusServiceUnavailable, &protocol.ErrorShape{
			Code:         protocol.ErrResourceExhausted,
			Message:      err.Error(),
			Retryable:    true,
			RetryAfterMs: 30000,
		}
	}
	shape := &protocol.ErrorShape{Message: pipeline.FormatFailure(err)}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		shape.Stage = stageErr.Stage
	}

	switch pipeline.Classify(err) {
	case pipeline.KindConfig:
		if errors.Is(err, pipeline.ErrInvalidURL) {
			shape.Code = protocol.ErrInvalidRequest
			return http.StatusBadRequest, shape
		}
		shape.Code = protocol.ErrFailedPrecondition
		return http.StatusPreconditionFailed, shape
	case pipeline.KindStartup:
		shape.Code = protocol.ErrUnavailable
		shape.Retryable = true
		return http.StatusServiceUnavailable, shape
	case pipeline.KindTransient:
		shape.Code = protocol.ErrStageFailed
		shape.Retryable = true
		return http.StatusBadGateway, shape
	case pipeline.KindCanceled:
		shape.Code = protocol.ErrCanceled
		return http.StatusServiceUnavailable, shape
	default:
		shape.Code = protocol.ErrStageFailed
		return http.StatusBadGateway, shape
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, shape *protocol.ErrorShape) {
	writeJSON(w, status, &protocol.ResponseFrame{Type: protocol.FrameTypeResponse, Error: shape})
}
