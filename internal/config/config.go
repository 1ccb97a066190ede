// Package config defines the bridge's process-level configuration
// surface: CLI flags (via Cobra) and the RCON_BRIDGE_PASSWORD environment
// variable, resolved into the Config structs internal/bridge,
// internal/bridgeserver, and internal/sse each expect.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/bridge"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/sse"
)

// passwordEnvVar holds the upstream RCON password so it never has to
// appear as a CLI flag, where it would be visible in shell history and
// process listings.
const passwordEnvVar = "RCON_BRIDGE_PASSWORD"

const defaultJSONPort = 28016

// Flags holds the raw flag values shared by every subcommand that talks
// to an upstream RCON server.
type Flags struct {
	Protocol   string
	Host       string
	Port       int
	Password   string
	Path       string
	AuthMode   string
	Timeout    time.Duration
	ListenAddr string
	LogLevel   string
	LogFormat  string
}

// Register binds every shared flag to cmd, writing parsed values into f.
func Register(cmd *cobra.Command, f *Flags) {
	flags := cmd.Flags()
	flags.StringVar(&f.Protocol, "protocol", "binary", `upstream RCON protocol: "binary" (Source RCON) or "json" (Rust RCON)`)
	flags.StringVar(&f.Host, "host", "127.0.0.1", "upstream RCON server host")
	flags.IntVar(&f.Port, "port", 0, "upstream RCON server port (defaults by --protocol: 27015 binary, 28016 json)")
	flags.StringVar(&f.Password, "password", "", "upstream RCON password (prefer the "+passwordEnvVar+" environment variable)")
	flags.StringVar(&f.Path, "path", "/ws/rcon", "browser WebSocket endpoint path")
	flags.StringVar(&f.AuthMode, "auth-mode", "server", `who supplies upstream credentials: "server" (these flags) or "client" (the browser, after connecting)`)
	flags.DurationVar(&f.Timeout, "timeout", 5*time.Second, "upstream connect and per-command timeout")
	flags.StringVar(&f.ListenAddr, "listen-addr", ":8080", "address the bridge HTTP server listens on")
	flags.StringVar(&f.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&f.LogFormat, "log-format", "console", `log output format: "console" or "json"`)
}

// ResolvePassword prefers RCON_BRIDGE_PASSWORD over --password.
func (f *Flags) ResolvePassword() string {
	if env := os.Getenv(passwordEnvVar); env != "" {
		return env
	}
	return f.Password
}

func (f *Flags) protocol() bridge.Protocol {
	if strings.EqualFold(f.Protocol, "json") {
		return bridge.ProtocolJSON
	}
	return bridge.ProtocolBinary
}

func (f *Flags) authMode() bridge.AuthMode {
	if strings.EqualFold(f.AuthMode, "client") {
		return bridge.AuthModeClient
	}
	return bridge.AuthModeServer
}

func (f *Flags) resolvedPort(defaultPort int) int {
	if f.Port != 0 {
		return f.Port
	}
	return defaultPort
}

// BridgeConfig builds the bridge.Config shared by every session on the
// WebSocket endpoint.
func (f *Flags) BridgeConfig(logger zerolog.Logger) bridge.Config {
	return bridge.Config{
		Protocol: f.protocol(),
		AuthMode: f.authMode(),
		Host:     f.Host,
		Port:     f.Port,
		Password: f.ResolvePassword(),
		Path:     f.Path,
		Timeout:  f.Timeout,
		Logger:   logger,
	}
}

// SSEConfig builds the internal/sse handler config. The SSE variants
// always speak the JSON protocol (internal/sse wraps rconjson only), so
// the port default follows that regardless of --protocol.
func (f *Flags) SSEConfig(logger zerolog.Logger) sse.Config {
	return sse.Config{
		Host:         fmt.Sprintf("%s:%d", f.Host, f.resolvedPort(defaultJSONPort)),
		Password:     f.ResolvePassword(),
		CommandBound: f.Timeout,
		Logger:       logger,
	}
}
