// Package mcp implements the Model Context Protocol server for RCON
// connections. It provides tools for connecting to, managing, and
// executing commands on RCON servers, backed by the same session bridge
// a browser WebSocket client would use.
package mcp

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/bridge"
)

// sessionManager is a singleton instance that manages all active RCON
// sessions. It provides thread-safe operations for creating, retrieving,
// and removing sessions.
var sessionManager = bridge.NewSessionManager()

// ConnectParams represents parameters for the connect tool
type ConnectParams struct {
	SessionID string `json:"session_id" jsonschema:"Unique identifier for this RCON session"`
	Name      string `json:"name,omitempty" jsonschema:"Friendly name for this connection (optional)"`
	Address   string `json:"address" jsonschema:"RCON server address (host:port)"`
	Password  string `json:"password" jsonschema:"RCON server password"`
	Protocol  string `json:"protocol,omitempty" jsonschema:"Wire protocol: \"binary\" for Source RCON (default) or \"json\" for Rust RCON"`
}

// DisconnectParams represents parameters for the disconnect tool
type DisconnectParams struct {
	SessionID string `json:"session_id" jsonschema:"Session ID to disconnect"`
}

// ExecuteParams represents parameters for the execute tool
type ExecuteParams struct {
	SessionID string `json:"session_id" jsonschema:"Session ID to use for execution"`
	Command   string `json:"command" jsonschema:"Command to execute on the RCON server"`
}

// ListSessionsParams represents parameters for the list_sessions tool
type ListSessionsParams struct{}

func protocolFor(name string) bridge.Protocol {
	if strings.EqualFold(name, "json") {
		return bridge.ProtocolJSON
	}
	return bridge.ProtocolBinary
}

// Connect establishes a new RCON connection to a server.
// It creates a session, dials the server, and authenticates using the
// provided password. Returns an error if the session already exists, the
// address is malformed, or the handshake fails.
func Connect(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[ConnectParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments

	host, portStr, err := net.SplitHostPort(args.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", args.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in address %q: %w", args.Address, err)
	}

	session := bridge.NewDirectSession(args.SessionID, bridge.Config{
		Protocol: protocolFor(args.Protocol),
		AuthMode: bridge.AuthModeServer,
		Host:     host,
		Port:     port,
		Password: args.Password,
	})
	session.Name = args.Name

	if err := sessionManager.Add(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := session.Connect(ctx); err != nil {
		_ = sessionManager.Remove(args.SessionID)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Connected to RCON server at %s (session: %s)", args.Address, args.SessionID),
		}},
	}, nil
}

// Disconnect terminates an existing RCON connection and removes the session.
// Returns an error if the session doesn't exist.
func Disconnect(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[DisconnectParams]) (*mcp.CallToolResultFor[any], error) {
	if err := sessionManager.Remove(params.Arguments.SessionID); err != nil {
		return nil, fmt.Errorf("failed to disconnect: %w", err)
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Disconnected session: %s", params.Arguments.SessionID),
		}},
	}, nil
}

// Execute sends a command to the RCON server and returns the response.
// The session must exist and have completed authentication. Returns an
// error if the session is not found or if command execution fails.
func Execute(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[ExecuteParams]) (*mcp.CallToolResultFor[any], error) {
	session, err := sessionManager.Get(params.Arguments.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	response, err := session.ExecCommand(ctx, params.Arguments.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: response,
		}},
	}, nil
}

// ListSessions retrieves information about all active RCON sessions.
// It returns session IDs, names, addresses, and authentication status.
func ListSessions(ctx context.Context, cc *mcp.ServerSession, params *mcp.CallToolParamsFor[ListSessionsParams]) (*mcp.CallToolResultFor[any], error) {
	sessions := sessionManager.List()

	if len(sessions) == 0 {
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{
				Text: "No active RCON sessions",
			}},
		}, nil
	}

	sessionInfo := "Active RCON sessions:\n"
	for _, session := range sessions {
		status := "connecting"
		switch {
		case session.Authenticated():
			status = "connected & authenticated"
		case session.Terminated():
			status = "disconnected"
		}

		name := session.Name
		if name == "" {
			name = "unnamed"
		}

		sessionInfo += fmt.Sprintf("- %s (%s): %s - %s\n", session.ID, name, session.Address(), status)
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: sessionInfo,
		}},
	}, nil
}

// Serve initializes and runs the MCP server.
// It registers all RCON tools and starts listening for MCP connections via stdio.
// The function blocks until the server is terminated or encounters a fatal error.
func Serve() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rcon-bridge-mcp",
		Version: "v1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rcon_connect",
		Description: "Connect to an RCON server and authenticate (binary Source RCON or JSON Rust RCON)",
	}, Connect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rcon_disconnect",
		Description: "Disconnect from an RCON server",
	}, Disconnect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rcon_execute",
		Description: "Execute a command on an RCON server",
	}, Execute)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rcon_list_sessions",
		Description: "List all active RCON sessions",
	}, ListSessions)

	fmt.Println("RCON bridge MCP server is ready!")
	if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
		log.Fatal(err)
	}

	sessionManager.DisconnectAll()
}
