package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/mcp"
)

// mcpCmd starts the MCP tool surface over stdio. Unlike serve, it takes
// no upstream flags: each rcon_connect tool call supplies its own target
// server, since one MCP session can manage several independent RCON
// sessions at once.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the RCON MCP tool surface",
	Long: `Start the Model Context Protocol (MCP) server, giving an AI
assistant or other MCP client tools to connect to, execute commands on,
and manage multiple RCON sessions.

Available tools:
- rcon_connect: Connect to an RCON server
- rcon_disconnect: Disconnect from an RCON server
- rcon_execute: Execute commands on an RCON server
- rcon_list_sessions: List all active RCON sessions`,
	Run: func(cmd *cobra.Command, args []string) {
		mcp.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
