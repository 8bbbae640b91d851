package mcp

import (
	"context"
	"sync"
	"sync/atomic"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	initFn func(ctx context.Context) (*mcpgo.InitializeResult, error)
	tools  []mcpgo.Tool
	callFn func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)

	mu       sync.Mutex
	calls    []mcpgo.CallToolRequest
	closed   atomic.Int32
	listings atomic.Int32
}

func (f *fakeClient) Initialize(ctx context.Context, req mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error) {
	if f.initFn != nil {
		return f.initFn(ctx)
	}
	res := &mcpgo.InitializeResult{}
	res.ServerInfo = mcpgo.Implementation{Name: "fake", Version: "1.0.0"}
	return res, nil
}

func (f *fakeClient) ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	f.listings.Add(1)
	return &mcpgo.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.callFn != nil {
		return f.callFn(ctx, req)
	}
	return &mcpgo.CallToolResult{Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "ok"}}}, nil
}

func (f *fakeClient) Close() error {
	f.closed.Add(1)
	return nil
}

// countingLauncher returns a LaunchFunc that hands out client and records
// every launch.
func countingLauncher(client Client, err error) (LaunchFunc, *atomic.Int32, *[]Command) {
	var n atomic.Int32
	var mu sync.Mutex
	var cmds []Command
	return func(ctx context.Context, cmd Command) (Client, error) {
		n.Add(1)
		mu.Lock()
		cmds = append(cmds, cmd)
		mu.Unlock()
		if err != nil {
			return nil, err
		}
		return client, nil
	}, &n, &cmds
}
