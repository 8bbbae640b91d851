// Package mcp supervises the web-access MCP subprocess and exposes its tools
// to the agent runner.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/jobscout/internal/tools"
)

const (
	DefaultStartTimeout = 10 * time.Second
	DefaultToolTimeout  = 120 * time.Second
)

// ErrClosed is returned by Initialize after Close.
var ErrClosed = errors.New("mcp supervisor is closed")

// StartupError reports a failed launch or handshake.
type StartupError struct {
	Command string
	Phase   string // "launch" or "handshake"
	Timeout bool
	Err     error
}

func (e *StartupError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("mcp server %s: %s timed out: %v", e.Command, e.Phase, e.Err)
	}
	return fmt.Sprintf("mcp server %s: %s failed: %v", e.Command, e.Phase, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Options configures a Supervisor.
type Options struct {
	Command         string
	Args            []string
	APIToken        string
	WebUnlockerZone string
	StartTimeout    time.Duration
	ToolTimeout     time.Duration
	ToolPrefix      string
	ClientName      string
	ClientVersion   string

	// Launch defaults to StdioLauncher.
	Launch LaunchFunc
}

// Supervisor owns at most one MCP subprocess. The first successful
// Initialize caches a Handle that later calls reuse without re-checking
// liveness. Failures are returned and never cached.
type Supervisor struct {
	opts  Options
	group singleflight.Group

	mu     sync.Mutex
	handle *Handle
	closed bool
}

// NewSupervisor creates a supervisor. Nothing is launched until Initialize.
func NewSupervisor(opts Options) *Supervisor {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.Launch == nil {
		opts.Launch = StdioLauncher
	}
	if opts.ClientName == "" {
		opts.ClientName = "jobscout"
	}
	return &Supervisor{opts: opts}
}

func (s *Supervisor) cached() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.handle, nil
}

// Initialize returns the running handle, launching the subprocess if needed.
// Concurrent callers share a single launch. The launch is detached from any
// one caller's cancellation and bounded only by StartTimeout; a caller whose
// ctx ends first gets ctx.Err() while the launch carries on for the others.
func (s *Supervisor) Initialize(ctx context.Context) (*Handle, error) {
	if h, err := s.cached(); h != nil || err != nil {
		return h, err
	}

	ch := s.group.DoChan("init", func() (any, error) {
		if h, err := s.cached(); h != nil || err != nil {
			return h, err
		}

		h, err := s.start(context.WithoutCancel(ctx))
		if err != nil {
			slog.Error("mcp server failed to start", "command", s.opts.Command, "error", err)
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			h.close()
			return nil, ErrClosed
		}
		s.handle = h
		return h, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			slog.Debug("mcp init shared with concurrent caller")
		}
		return r.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Supervisor) start(parent context.Context) (*Handle, error) {
	ctx, cancel := context.WithTimeout(parent, s.opts.StartTimeout)
	defer cancel()

	cmd := Command{
		Path: s.opts.Command,
		Args: s.opts.Args,
		Env:  BuildEnv(s.opts.APIToken, s.opts.WebUnlockerZone),
	}
	started := time.Now()

	client, err := s.opts.Launch(ctx, cmd)
	if err != nil {
		return nil, &StartupError{Command: s.opts.Command, Phase: "launch", Timeout: isTimeout(ctx), Err: err}
	}

	req := mcpgo.InitializeRequest{}
	req.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpgo.Implementation{Name: s.opts.ClientName, Version: s.opts.ClientVersion}

	type initResult struct {
		res *mcpgo.InitializeResult
		err error
	}
	done := make(chan initResult, 1)
	go func() {
		res, err := client.Initialize(ctx, req)
		done <- initResult{res, err}
	}()

	var res *mcpgo.InitializeResult
	select {
	case r := <-done:
		if r.err != nil {
			abort(client)
			return nil, &StartupError{Command: s.opts.Command, Phase: "handshake", Timeout: isTimeout(ctx), Err: r.err}
		}
		res = r.res
	case <-ctx.Done():
		abort(client)
		return nil, &StartupError{Command: s.opts.Command, Phase: "handshake", Timeout: isTimeout(ctx), Err: ctx.Err()}
	}

	h := &Handle{
		client:      client,
		startedAt:   started,
		toolTimeout: s.opts.ToolTimeout,
		prefix:      s.opts.ToolPrefix,
	}
	if res != nil {
		h.server = res.ServerInfo
	}
	h.connected.Store(true)

	slog.Info("mcp server ready",
		"command", s.opts.Command,
		"server", h.server.Name,
		"version", h.server.Version,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return h, nil
}

func isTimeout(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Close shuts down the subprocess, if any. Initialize fails afterwards.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.closed = true
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	slog.Info("stopping mcp server", "command", s.opts.Command)
	return h.close()
}

// Status is a point-in-time view for health checks.
type Status struct {
	Running   bool      `json:"running"`
	Server    string    `json:"server,omitempty"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return Status{}
	}
	return Status{
		Running:   s.handle.connected.Load(),
		Server:    s.handle.server.Name,
		Version:   s.handle.server.Version,
		StartedAt: s.handle.startedAt,
	}
}

// Handle is a live, initialized MCP session.
type Handle struct {
	client      Client
	server      mcpgo.Implementation
	startedAt   time.Time
	toolTimeout time.Duration
	prefix      string
	connected   atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// ServerName returns the name the server reported during the handshake.
func (h *Handle) ServerName() string { return h.server.Name }

// Tools lists the server's tools and wraps each as a tools.Tool. The list is
// fetched on every call.
func (h *Handle) Tools(ctx context.Context) ([]*BridgeTool, error) {
	if !h.connected.Load() {
		return nil, fmt.Errorf("mcp server is disconnected")
	}
	res, err := h.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}
	out := make([]*BridgeTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, NewBridgeTool(h.server.Name, t, h.client, h.prefix, h.toolTimeout, &h.connected))
	}
	slog.Debug("mcp tools listed", "count", len(out))
	return out, nil
}

func (h *Handle) close() error {
	h.closeOnce.Do(func() {
		h.connected.Store(false)
		h.closeErr = h.client.Close()
	})
	return h.closeErr
}

// Tools initializes the subprocess if needed and returns its tools. It lets
// the supervisor serve directly as a stage's tool source.
func (s *Supervisor) Tools(ctx context.Context) ([]tools.Tool, error) {
	h, err := s.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	bridged, err := h.Tools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Tool, len(bridged))
	for i, t := range bridged {
		out[i] = t
	}
	return out, nil
}
