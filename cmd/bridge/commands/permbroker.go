package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatbridge/internal/permbroker"
)

var permbrokerCmd = &cobra.Command{
	Use:    "permbroker",
	Short:  "Run the permission broker MCP server (spawned by the agent CLI, not meant to be run directly)",
	Hidden: true,
	RunE:   runPermbroker,
}

func runPermbroker(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	broker, client, err := permbroker.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	return permbroker.Serve(broker)
}
