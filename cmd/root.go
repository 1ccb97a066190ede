// Package cmd contains all CLI commands for the RCON bridge.
// It uses the Cobra library for command-line interface management.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rcon-ws-bridge",
	Short: "Bridge a browser WebSocket to a game server's RCON console",
	Long: `rcon-ws-bridge sits between a browser WebSocket client and a game
server's RCON console, speaking whichever upstream protocol the server
expects: binary Source RCON or JSON Rust RCON.

Features:
- WebSocket bridge with HTML fragment output, for driving a console UI
  directly via server-sent markup
- Stateless HTTP/SSE variants for one-shot commands and push streaming
- An MCP tool surface for AI assistants and other MCP clients

To start the bridge server, use:
  rcon-ws-bridge serve

To start the MCP tool surface, use:
  rcon-ws-bridge mcp`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd. It returns an error code to the OS on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
