// Package main is the entry point for the Sentry MCP gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sentry-mcp",
		Short:         "Sentry MCP gateway",
		Long:          `sentry-mcp exposes Sentry's API as a Model Context Protocol server, fronted by its own OAuth 2.1 authorization server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStdioCmd())
	root.AddCommand(newRegisterClientCmd())
	root.AddCommand(newMigrateCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
