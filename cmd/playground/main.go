// Package main is the entry point of the playground server and CLI.
//
// Usage:
//
//	playground [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the HTTP backend
//	chat     - Send one prompt through the agent and print the reply
//	config   - Print the effective configuration
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/playground/cmd/playground/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
