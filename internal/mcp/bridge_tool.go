package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/jobscout/internal/tools"
)

// BridgeTool exposes one MCP tool through the tools.Tool interface.
type BridgeTool struct {
	serverName     string
	toolName       string // name on the MCP server
	registeredName string // "{prefix}__{toolName}" when a prefix is set
	description    string
	inputSchema    map[string]any
	client         Client
	timeout        time.Duration
	connected      *atomic.Bool
}

func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client Client, prefix string, timeout time.Duration, connected *atomic.Bool) *BridgeTool {
	registered := mcpTool.Name
	if prefix != "" {
		registered = prefix + "__" + mcpTool.Name
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	if connected == nil {
		connected = new(atomic.Bool)
		connected.Store(true)
	}
	return &BridgeTool{
		serverName:     serverName,
		toolName:       mcpTool.Name,
		registeredName: registered,
		description:    mcpTool.Description,
		inputSchema:    toolSchema(mcpTool),
		client:         client,
		timeout:        timeout,
		connected:      connected,
	}
}

func (t *BridgeTool) Name() string               { return t.registeredName }
func (t *BridgeTool) Description() string        { return t.description }
func (t *BridgeTool) Parameters() map[string]any { return t.inputSchema }
func (t *BridgeTool) OriginalName() string       { return t.toolName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("MCP server %q is disconnected", t.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	slog.Debug("mcp tool call", "tool", t.toolName, "args", len(args))
	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return tools.ErrorResult(fmt.Sprintf("MCP tool %q timed out after %s", t.registeredName, t.timeout)).WithError(err)
		}
		return tools.ErrorResult(fmt.Sprintf("MCP tool %q error: %v", t.registeredName, err)).WithError(err)
	}

	text := extractTextContent(result)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// toolSchema prefers the raw schema when the server sent one.
func toolSchema(t mcpgo.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var m map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &m); err == nil {
			return m
		}
	}
	return inputSchemaToMap(t.InputSchema)
}

func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}

// extractTextContent joins all text parts of a tool result.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
