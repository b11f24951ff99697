package permbroker

import (
	"context"
	"fmt"
	"os"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/mattermost"
)

// Bootstrap loads Config from the environment the agent CLI set when it
// spawned this process, connects the matching chatplatform.Client, and
// returns a ready-to-Serve Broker. Both cmd/bridge's "permbroker" subcommand
// and the standalone cmd/permbroker binary call this so the wiring lives in
// one place.
func Bootstrap(ctx context.Context) (*Broker, chatplatform.Client, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("permbroker: connect platform: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		workingDir = ""
	}
	return New(client, cfg, workingDir), client, nil
}

func newClient(cfg Config) (chatplatform.Client, error) {
	switch cfg.PlatformType {
	case "mattermost":
		return mattermost.New(cfg.PlatformURL, cfg.PlatformToken), nil
	default:
		return nil, fmt.Errorf("permbroker: unsupported PLATFORM_TYPE %q", cfg.PlatformType)
	}
}
