// Package bridge implements the per-browser-connection session state
// machine that sits between a browser WebSocket and an upstream RCON
// capability (internal/rconbinary or internal/rconjson).
package bridge

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/fragment"
)

// Protocol selects which upstream client implementation a session dials.
type Protocol string

const (
	ProtocolBinary Protocol = "binary"
	ProtocolJSON   Protocol = "json"
)

// AuthMode selects who supplies upstream credentials.
type AuthMode string

const (
	// AuthModeServer dials Host/Port/Password from Config as soon as the
	// browser socket opens.
	AuthModeServer AuthMode = "server"
	// AuthModeClient waits for the browser to send an auth message before
	// dialing anything upstream.
	AuthModeClient AuthMode = "client"
)

const (
	defaultBinaryPort = 27015
	defaultJSONPort   = 28016
	defaultPath       = "/ws/rcon"
	defaultTimeout    = 5 * time.Second
)

// Config configures one bridge session. It is defaulted once when the
// session is constructed; it is never mutated afterward.
type Config struct {
	Protocol Protocol

	// Host, Port, Password are the upstream target when AuthMode ==
	// AuthModeServer. Ignored (and supplied by the browser instead) under
	// AuthModeClient.
	Host     string
	Port     int
	Password string

	// Path is the browser-facing WebSocket endpoint path.
	Path string

	AuthMode AuthMode

	// Timeout bounds both upstream connect and each exec round trip.
	Timeout time.Duration

	// TargetID, SwapStyle are passed to the Formatter as default Meta.
	TargetID  string
	SwapStyle string

	// Formatter renders bridge events into fragments. Defaults to
	// fragment.HTMLFormatter{} when nil.
	Formatter fragment.Formatter

	// FormatLine, when set, overrides Formatter.Response/ServerMessage for
	// plain line-oriented output; Formatter still handles Error/Auth/Info.
	FormatLine func(text string, meta fragment.Meta) fragment.Fragment

	// OnConnect is notified once per successful upstream authentication.
	OnConnect func(session *Session)

	// OnCommand is a veto hook: returning false blocks the command with a
	// CommandBlocked error fragment and writes no upstream bytes.
	OnCommand func(command string, session *Session) bool

	Logger zerolog.Logger
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// protocol-appropriate defaults.
func (cfg Config) withDefaults() Config {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeServer
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Port == 0 {
		switch cfg.Protocol {
		case ProtocolJSON:
			cfg.Port = defaultJSONPort
		default:
			cfg.Port = defaultBinaryPort
		}
	}
	if cfg.Formatter == nil {
		cfg.Formatter = fragment.HTMLFormatter{}
	}
	if cfg.TargetID == "" {
		cfg.TargetID = "rcon-console"
	}
	if cfg.SwapStyle == "" {
		cfg.SwapStyle = "beforeend"
	}
	return cfg
}

func (cfg Config) meta() fragment.Meta {
	return fragment.Meta{TargetID: cfg.TargetID, SwapStyle: cfg.SwapStyle}
}
