// Package main provides the entry point for the chathost server.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/chathost/cmd/chathost/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
