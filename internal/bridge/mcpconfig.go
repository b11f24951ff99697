package bridge

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/model"
)

// mcpServerEntry is the subset of the MCP client config schema the agent
// CLI expects for one stdio server entry.
type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type mcpConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

// permissionMCPConfig builds the `--mcp-config` payload for one session:
// an entry that re-invokes this same binary's `permbroker` subcommand,
// configured entirely through environment variables per
// internal/permbroker.LoadConfigFromEnv's contract.
func (m *Manager) permissionMCPConfig(pr *platformRuntime, session *model.Session) string {
	session.Lock()
	threadID := session.ThreadID
	allowed := make([]string, 0, len(session.SessionAllowedUsers))
	for u := range session.SessionAllowedUsers {
		allowed = append(allowed, u)
	}
	session.Unlock()

	platformCfg := m.platformConfig(pr.platformID)
	env := map[string]string{
		"PLATFORM_TYPE":       platformCfg.Kind,
		"PLATFORM_URL":        platformCfg.URL,
		"PLATFORM_TOKEN":      platformCfg.Token,
		"PLATFORM_CHANNEL_ID": threadID,
		"PLATFORM_THREAD_ID":  threadID,
		"ALLOWED_USERS":       strings.Join(allowed, ","),
	}

	self, err := os.Executable()
	if err != nil {
		self = "chatbridge"
	}
	cfg := mcpConfig{MCPServers: map[string]mcpServerEntry{
		"permbroker": {Command: self, Args: []string{"permbroker"}, Env: env},
	}}
	out, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(out)
}
