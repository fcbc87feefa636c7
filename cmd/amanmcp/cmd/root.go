// Package cmd provides the CLI commands for amanmcp: serve, index, status,
// search, and version.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/memexmcp/memex/internal/logging"
	"github.com/memexmcp/memex/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the amanmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanmcp",
		Short: "Hybrid search MCP server over a local Markdown corpus",
		Long: `amanmcp indexes a directory of Markdown files and serves hybrid
BM25 + vector search over it, either as an MCP stdio server for AI coding
assistants or as a one-shot CLI command.`,
		Version:           version.Version,
		PersistentPreRunE: setupLogging,
	}
	cmd.SetVersionTemplate("amanmcp version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to stderr")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	logging.SetupDefault(debugMode)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
