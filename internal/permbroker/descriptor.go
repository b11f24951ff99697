package permbroker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/chatutil"
)

const (
	descriptorPathMaxLen = 60
	descriptorCmdMaxLen  = 120
)

// formatDescriptor renders a human-readable one-or-two-line summary of a
// tool call for the interactive permission post: file paths shortened
// relative to the session's working directory, Bash commands summarized and
// truncated, and MCP-style "server__tool" names split into "server / tool".
func formatDescriptor(toolName string, input json.RawMessage, workingDir string) string {
	displayName := splitMCPToolName(toolName)

	var fields map[string]any
	_ = json.Unmarshal(input, &fields)

	switch toolName {
	case "Bash":
		if cmd, ok := fields["command"].(string); ok {
			summary := summarizeBash(cmd)
			return fmt.Sprintf("**%s**\n```\n%s\n```", displayName, chatutil.TruncateCommand(summary, descriptorCmdMaxLen))
		}
	case "Write", "Edit", "Read", "NotebookEdit":
		if path, ok := fields["file_path"].(string); ok {
			return fmt.Sprintf("**%s** `%s`", displayName, chatutil.ShortenPath(path, workingDir, descriptorPathMaxLen))
		}
	case "WebFetch":
		if url, ok := fields["url"].(string); ok {
			return fmt.Sprintf("**%s** %s", displayName, url)
		}
	}

	return fmt.Sprintf("**%s**\n```json\n%s\n```", displayName, compactJSON(input))
}

// splitMCPToolName turns "server__tool" into "server / tool", matching the
// teacher's MCP tool-name convention (internal/mcp/types.go); tool names
// with no "__" separator are returned unchanged.
func splitMCPToolName(toolName string) string {
	if idx := strings.Index(toolName, "__"); idx > 0 {
		return toolName[:idx] + " / " + toolName[idx+2:]
	}
	return toolName
}

func compactJSON(raw json.RawMessage) string {
	var buf strings.Builder
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	out := buf.String()
	if len(out) > 800 {
		out = out[:800] + "\n…"
	}
	return out
}
