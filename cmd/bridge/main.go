// Package main provides the entry point for the chatbridge daemon.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/chatbridge/cmd/bridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
