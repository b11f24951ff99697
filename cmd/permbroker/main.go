// Command permbroker runs the permission broker as a standalone MCP server
// over stdio, configured entirely from the environment. It is equivalent to
// `bridge permbroker`; this separate binary exists for operators who want to
// invoke the broker from --permission-prompt-tool without shipping the whole
// bridge daemon's dependency surface into the agent's MCP config.
package main

import (
	"context"
	"log"

	"github.com/opencode-ai/chatbridge/internal/permbroker"
)

func main() {
	ctx := context.Background()
	broker, client, err := permbroker.Bootstrap(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect()

	if err := permbroker.Serve(broker); err != nil {
		log.Fatal(err)
	}
}
