package eventinterp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/chatutil"
)

const (
	renderPathMaxLen = 60
	renderCmdMaxLen  = 100
)

// renderToolUse formats a compact one-liner for a tool_use block, appended
// to the streaming buffer in place of a full execution trace. Grounded on
// internal/permbroker's formatDescriptor (same field-by-tool-name table,
// retargeted from a two-line permission descriptor to a single status
// line) and internal/chatutil's ShortenPath/TruncateCommand helpers built
// for exactly this purpose.
func renderToolUse(name string, input json.RawMessage, workingDir string) string {
	displayName := splitMCPToolName(name)

	var fields map[string]any
	_ = json.Unmarshal(input, &fields)

	switch name {
	case "Read":
		if path, ok := fields["file_path"].(string); ok {
			return fmt.Sprintf("📖 %s\n", chatutil.ShortenPath(path, workingDir, renderPathMaxLen))
		}
	case "Edit", "NotebookEdit":
		if path, ok := fields["file_path"].(string); ok {
			return fmt.Sprintf("✎ %s\n", chatutil.ShortenPath(path, workingDir, renderPathMaxLen))
		}
	case "Write":
		if path, ok := fields["file_path"].(string); ok {
			return fmt.Sprintf("📝 %s\n", chatutil.ShortenPath(path, workingDir, renderPathMaxLen))
		}
	case "Bash":
		if cmd, ok := fields["command"].(string); ok {
			return fmt.Sprintf("$ %s\n", chatutil.TruncateCommand(cmd, renderCmdMaxLen))
		}
	case "Glob":
		if pattern, ok := fields["pattern"].(string); ok {
			return fmt.Sprintf("🔍 glob `%s`\n", pattern)
		}
	case "Grep":
		if pattern, ok := fields["pattern"].(string); ok {
			return fmt.Sprintf("🔍 grep `%s`\n", pattern)
		}
	case "WebFetch":
		if url, ok := fields["url"].(string); ok {
			return fmt.Sprintf("🌐 fetch %s\n", url)
		}
	case "WebSearch":
		if q, ok := fields["query"].(string); ok {
			return fmt.Sprintf("🌐 search \"%s\"\n", q)
		}
	case "chrome_navigate", "chrome_screenshot", "chrome_click", "chrome_type":
		return fmt.Sprintf("🖥️ %s\n", displayName)
	}

	return fmt.Sprintf("🔧 %s\n", displayName)
}

// splitMCPToolName turns "server__tool" into "server / tool", matching the
// teacher's MCP tool-name convention (internal/mcp/types.go).
func splitMCPToolName(toolName string) string {
	if idx := strings.Index(toolName, "__"); idx > 0 {
		return toolName[:idx] + " / " + toolName[idx+2:]
	}
	return toolName
}
