package cmd

import (
	"github.com/protonlab/scantime/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the scantime MCP server",
	Long: `Launch an MCP server over stdio that lets AI agents compute plan timelines
and look up dose rate ceilings via standard tools.

The global flags (limits, doserate table, machine profiles, backends) become the
defaults of every tool call.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Plan headers are suppressed per request since stdio carries the protocol.
		return sharedSetup(rootCtx, cmd, args)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, cacheManager)
	},
}
