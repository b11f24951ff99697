package bridgesession

import (
	"context"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
)

// AgentAdapter is the subset of *agentcli.Adapter the state machine drives,
// narrowed to an interface so Controller is testable without a real
// subprocess.
type AgentAdapter interface {
	Start(ctx context.Context, spawn agentcli.Spawn) error
	Events() <-chan agentcli.Event
	Exit() <-chan agentcli.ExitInfo
	SendMessage(text string) error
	SendMessageBlocks(blocks []agentcli.ContentBlock) error
	SendToolResult(toolUseID string, payload any) error
	Interrupt() error
	Kill() error
	IsRunning() bool
}

// AdapterFactory constructs a fresh, unstarted adapter for sessionID.
type AdapterFactory func(sessionID string) AgentAdapter

// NewRealAdapterFactory returns an AdapterFactory backed by real
// internal/agentcli subprocesses.
func NewRealAdapterFactory() AdapterFactory {
	return func(sessionID string) AgentAdapter {
		return agentcli.New(sessionID)
	}
}
