package permbroker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer wraps broker in an MCP server exposing the single
// permission_prompt tool the agent CLI is configured to call via
// --permission-prompt-tool.
func NewMCPServer(broker *Broker) *server.MCPServer {
	s := server.NewMCPServer(
		"chatbridge-permbroker",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	tool := mcp.NewTool("permission_prompt",
		mcp.WithDescription("Ask the chat thread for permission to run a tool call"),
		mcp.WithString("tool_name", mcp.Required(), mcp.Description("Name of the tool awaiting permission")),
		mcp.WithObject("input", mcp.Required(), mcp.Description("The tool's input payload")),
	)
	s.AddTool(tool, broker.handlePermissionPrompt)

	return s
}

// Serve runs the MCP server over stdio until the process's stdin closes.
func Serve(broker *Broker) error {
	return server.ServeStdio(NewMCPServer(broker))
}

func (b *Broker) handlePermissionPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toolName := request.GetString("tool_name", "")
	if toolName == "" {
		return mcp.NewToolResultError("tool_name is required"), nil
	}

	args := request.GetArguments()
	inputVal, ok := args["input"]
	if !ok {
		return mcp.NewToolResultError("input is required"), nil
	}
	inputJSON, err := json.Marshal(inputVal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", err)), nil
	}

	result := b.PermissionPrompt(ctx, toolName, inputJSON)

	out, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
