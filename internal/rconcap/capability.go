// Package rconcap defines the protocol-agnostic contract that both the
// binary Source RCON client (internal/rconbinary) and the JSON Rust RCON
// client (internal/rconjson) implement. The session bridge consumes only
// this interface, never a concrete client type.
package rconcap

import (
	"context"
	"errors"
)

// Sentinel errors shared by every Capability implementation. Callers use
// errors.Is against these, never string matching.
var (
	// ErrTimeout is returned by Connect when no authentication outcome
	// arrived within the configured deadline. Exec never returns this: an
	// exec timeout resolves gracefully instead (see Capability.Exec).
	ErrTimeout = errors.New("rconcap: timeout")

	// ErrAuthRejected is returned by Connect when the upstream server
	// refused the supplied credentials.
	ErrAuthRejected = errors.New("rconcap: authentication rejected")

	// ErrTransport wraps socket-level failures: DNS errors, refused
	// connections, and handshake rejections.
	ErrTransport = errors.New("rconcap: transport error")

	// ErrConnectionClosed is surfaced to any pending Exec call when the
	// upstream connection closes mid-life.
	ErrConnectionClosed = errors.New("rconcap: connection closed")

	// ErrNotConnected is returned by Exec/Connect once Destroy has already
	// run, and by Exec before Connect has ever succeeded.
	ErrNotConnected = errors.New("rconcap: not connected")

	// ErrMalformedFrame marks a frame that failed to decode. The
	// connection remains open; the frame is dropped and this error is
	// surfaced through Hooks.OnError, never returned from Exec/Connect.
	ErrMalformedFrame = errors.New("rconcap: malformed frame")

	// ErrInvalidMessageFormat marks a browser message that was not valid
	// JSON or did not match any recognized shape (internal/bridge).
	ErrInvalidMessageFormat = errors.New("rconcap: invalid message format")

	// ErrNotAuthenticated marks a command sent before client-mode auth
	// completed (internal/bridge).
	ErrNotAuthenticated = errors.New("rconcap: not authenticated")

	// ErrEmptyCommand marks a command that was blank after trimming
	// (internal/bridge).
	ErrEmptyCommand = errors.New("rconcap: empty command")

	// ErrCommandBlocked marks a command an onCommand hook vetoed
	// (internal/bridge).
	ErrCommandBlocked = errors.New("rconcap: command blocked")
)

// MessageType classifies a JSON RCON push or response, per the Rust RCON
// wire protocol. The binary client never produces a MessageType other than
// MessageGeneric, since it has no concept of push severity.
type MessageType string

const (
	MessageGeneric MessageType = "Generic"
	MessageWarning MessageType = "Warning"
	MessageError   MessageType = "Error"
)

// Hooks are the event callbacks a Capability invokes. None of them may be
// retained by the Capability beyond its own lifetime; they are function
// values, not objects the capability owns.
type Hooks struct {
	// OnServerMessage fires for unsolicited upstream pushes. Only the JSON
	// client ever calls this; the binary client never does.
	OnServerMessage func(body string, kind MessageType)

	// OnError fires for transport or protocol errors that do not
	// terminate the connection by themselves (e.g. a malformed frame).
	OnError func(err error)

	// OnClose fires exactly once, when the connection has entered its
	// terminal state, however that came about.
	OnClose func()
}

// Capability is the common contract the session bridge relies on. An
// implementation owns exactly one upstream connection (TCP or WebSocket)
// and exactly one pending-command table.
type Capability interface {
	// Connect opens the upstream connection and authenticates. It is
	// idempotent once already connected: calling it again on a connected
	// capability returns nil without doing anything.
	Connect(ctx context.Context) error

	// Exec sends command upstream and returns its response text. At most
	// one request per assigned id is ever in flight; response ordering
	// follows request issuance order. Exec never rejects on timeout: it
	// resolves with whatever partial/placeholder text the implementation
	// defines for that case.
	Exec(ctx context.Context, command string) (string, error)

	// Destroy synchronously closes the underlying transport and fails
	// every still-pending Exec call with ErrConnectionClosed. Subsequent
	// calls to Exec or Connect return ErrNotConnected. Destroy is safe to
	// call more than once.
	Destroy() error

	// Connected reports whether Connect has completed successfully and
	// Destroy has not yet been called.
	Connected() bool
}
