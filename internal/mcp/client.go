package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Client is the part of the MCP client protocol the supervisor and bridge
// tools use. *mcpclient.Client satisfies it.
type Client interface {
	Initialize(ctx context.Context, req mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error)
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Command describes the subprocess to launch.
type Command struct {
	Path string
	Args []string
	Env  []string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

// LaunchFunc starts the subprocess and returns a client ready for the
// initialize handshake.
type LaunchFunc func(ctx context.Context, cmd Command) (Client, error)

// Environment variables the MCP server reads its credentials from.
const (
	EnvAPIToken        = "API_TOKEN"
	EnvWebUnlockerZone = "WEB_UNLOCKER_ZONE"
)

// BuildEnv returns the subprocess environment: PATH and HOME (so npx can
// resolve and cache packages) plus the two credentials. Nothing else from
// the parent environment is passed through.
func BuildEnv(apiToken, zone string) []string {
	env := make([]string, 0, 4)
	for _, key := range []string{"PATH", "HOME"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return append(env,
		EnvAPIToken+"="+apiToken,
		EnvWebUnlockerZone+"="+zone,
	)
}

// StdioLauncher spawns cmd and speaks MCP over its stdin/stdout. The process
// is not bound to ctx: it lives until Close.
func StdioLauncher(ctx context.Context, cmd Command) (Client, error) {
	sc := &stdioClient{}
	stdio := transport.NewStdioWithOptions(cmd.Path, nil, cmd.Args,
		transport.WithCommandFunc(func(_ context.Context, command string, _ []string, args []string) (*exec.Cmd, error) {
			c := exec.Command(command, args...)
			// The transport offers os.Environ() merged with ours; use only ours.
			c.Env = cmd.Env
			sc.setCmd(c)
			return c, nil
		}),
	)

	sc.Client = mcpclient.NewClient(stdio)
	if err := sc.Client.Start(ctx); err != nil {
		sc.Kill()
		sc.Client.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	if stderr := stdio.Stderr(); stderr != nil {
		go drainStderr(stderr, cmd.Path)
	}
	return sc, nil
}

// closeGrace is how long Close waits for the server to exit on stdin EOF
// before killing it.
const closeGrace = 2 * time.Second

// stdioClient keeps the spawned process so it can be killed. The stdio
// transport's Close waits for the child, which a server ignoring EOF never
// satisfies.
type stdioClient struct {
	*mcpclient.Client

	mu  sync.Mutex
	cmd *exec.Cmd
}

func (c *stdioClient) setCmd(cmd *exec.Cmd) {
	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()
}

// Kill terminates the subprocess immediately.
func (c *stdioClient) Kill() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Close closes stdin and waits up to closeGrace for the server to exit, then
// kills it.
func (c *stdioClient) Close() error {
	done := make(chan error, 1)
	go func() { done <- c.Client.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(closeGrace):
		slog.Warn("mcp server ignored shutdown, killing it")
		c.Kill()
		return <-done
	}
}

// killer is implemented by clients backed by a process that can be
// terminated without waiting for a graceful exit.
type killer interface {
	Kill() error
}

// abort tears a client down without waiting on the server.
func abort(c Client) {
	if k, ok := c.(killer); ok {
		if err := k.Kill(); err != nil {
			slog.Debug("kill mcp server", "error", err)
		}
	}
	c.Close()
}

// drainStderr forwards server diagnostics to the debug log and keeps the
// pipe from filling up.
func drainStderr(r io.Reader, name string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		slog.Debug("mcp server stderr", "command", name, "line", sc.Text())
	}
}
