package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/fragment"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconbinary"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconcap"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconjson"
)

// sessionState is the bridge's per-connection state machine position.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAwaitingAuth
	stateAuthenticated
	stateTerminated
)

// browserConn is the subset of *websocket.Conn a Session needs; satisfied
// by a real connection in production and a fake in tests.
type browserConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Envelope wraps an outbound fragment with a monotonic per-session
// sequence number, so a browser UI can detect and reorder fragments that
// arrive out of order (rare, but possible with buffered websocket writes).
type Envelope struct {
	Fragment fragment.Fragment `json:"fragment"`
	Seq      uint64            `json:"seq"`
}

// inboundAuth is the nested auth payload shape.
type inboundAuth struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// inboundMessage is the browser-to-bridge JSON message shape, including
// the flat-key aliases that get normalized into the nested Auth form.
type inboundMessage struct {
	Auth    *inboundAuth `json:"auth,omitempty"`
	Command *string      `json:"command,omitempty"`

	AuthHost string `json:"auth.host,omitempty"`
	AuthPort int    `json:"auth.port,omitempty"`
	AuthPass string `json:"auth.password,omitempty"`
}

func (m inboundMessage) normalizedAuth() *inboundAuth {
	if m.Auth != nil {
		return m.Auth
	}
	if m.AuthHost != "" || m.AuthPort != 0 || m.AuthPass != "" {
		return &inboundAuth{Host: m.AuthHost, Port: m.AuthPort, Password: m.AuthPass}
	}
	return nil
}

// Session runs the state machine for one browser WebSocket connection:
// Connecting/Awaiting-auth -> Authenticated -> Terminated.
type Session struct {
	ID  string
	cfg Config

	// Name is an optional display label. The bridge itself never reads
	// it; callers that present a session list (e.g. the MCP tool surface)
	// may set it.
	Name string

	conn browserConn

	writeMu sync.Mutex

	mu         sync.Mutex
	state      sessionState
	capability rconcap.Capability
	seq        uint64
}

// NewSession constructs a Session bound to conn, with cfg defaulted.
func NewSession(id string, conn browserConn, cfg Config) *Session {
	return &Session{ID: id, conn: conn, cfg: cfg.withDefaults(), state: stateConnecting}
}

// discardConn is a browserConn that has no browser on the other end: it
// never yields a message to read and swallows every write. It backs
// sessions driven directly (see NewDirectSession) rather than through a
// real WebSocket's Run loop.
type discardConn struct{}

func (discardConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }
func (discardConn) WriteMessage(int, []byte) error    { return nil }
func (discardConn) Close() error                      { return nil }

// NewDirectSession constructs a Session with no browser socket attached,
// for callers that drive Connect/ExecCommand/Destroy directly instead of
// through Run's read loop: the MCP tool surface, notably, which gets a
// request/response call per tool invocation rather than a persistent
// message stream.
func NewDirectSession(id string, cfg Config) *Session {
	return NewSession(id, discardConn{}, cfg)
}

// Address reports the upstream host:port this session was configured to
// reach.
func (s *Session) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Terminated reports whether the session has torn down.
func (s *Session) Terminated() bool {
	return s.terminated()
}

// Connect drives the session's upstream handshake directly, without a
// browser message loop. Intended for NewDirectSession sessions.
func (s *Session) Connect(ctx context.Context) error {
	return s.connectUpstream(ctx, s.cfg.Host, s.cfg.Port, s.cfg.Password)
}

// Run drives the session to completion: it blocks until the browser
// socket closes, the upstream closes, or ctx is canceled.
func (s *Session) Run(ctx context.Context) {
	if s.cfg.AuthMode == AuthModeClient {
		s.mu.Lock()
		s.state = stateAwaitingAuth
		s.mu.Unlock()
	} else {
		s.connectUpstream(ctx, s.cfg.Host, s.cfg.Port, s.cfg.Password)
		if s.terminated() {
			return
		}
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.teardown("browser connection closed")
			return
		}
		s.handleMessage(ctx, raw)
		if s.terminated() {
			return
		}
	}
}

func (s *Session) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateTerminated
}

// Authenticated reports whether the session has completed upstream auth.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthenticated
}

func (s *Session) handleMessage(ctx context.Context, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendFragment(s.cfg.Formatter.Error("InvalidMessageFormat", "message is not valid JSON", s.cfg.meta()))
		return
	}

	if auth := msg.normalizedAuth(); auth != nil {
		s.handleAuth(ctx, auth)
		return
	}
	if msg.Command != nil {
		s.handleCommand(ctx, *msg.Command)
		return
	}
	s.sendFragment(s.cfg.Formatter.Error("InvalidMessageFormat", "message matched no recognized shape", s.cfg.meta()))
}

func (s *Session) handleAuth(ctx context.Context, auth *inboundAuth) {
	s.mu.Lock()
	authMode := s.cfg.AuthMode
	state := s.state
	s.mu.Unlock()

	if authMode != AuthModeClient || state != stateAwaitingAuth {
		s.sendFragment(s.cfg.Formatter.Error("InvalidMessageFormat", "auth message not accepted in current state", s.cfg.meta()))
		return
	}

	s.connectUpstream(ctx, auth.Host, auth.Port, auth.Password)
}

func (s *Session) connectUpstream(ctx context.Context, host string, port int, password string) error {
	capability := s.newCapability(host, port, password)

	if err := capability.Connect(ctx); err != nil {
		s.sendFragment(s.cfg.Formatter.Auth(false, err.Error(), s.cfg.meta()))
		s.teardown("upstream authentication failed")
		return err
	}

	s.mu.Lock()
	s.capability = capability
	s.state = stateAuthenticated
	s.mu.Unlock()

	s.sendFragment(s.cfg.Formatter.Auth(true, "", s.cfg.meta()))
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(s)
	}
	return nil
}

// Capability returns the session's upstream capability, or nil before
// authentication completes.
func (s *Session) Capability() rconcap.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capability
}

func (s *Session) newCapability(host string, port int, password string) rconcap.Capability {
	hooks := rconcap.Hooks{
		OnServerMessage: s.handleUpstreamPush,
		OnError:         s.handleUpstreamError,
		OnClose: func() {
			s.teardown("upstream connection closed")
		},
	}

	address := fmt.Sprintf("%s:%d", host, port)
	switch s.cfg.Protocol {
	case ProtocolJSON:
		return rconjson.New(rconjson.Config{
			Host:     address,
			Password: password,
			Timeout:  s.cfg.Timeout,
			Logger:   s.cfg.Logger,
			Hooks:    hooks,
		})
	default:
		return rconbinary.New(rconbinary.Config{
			Address:  address,
			Password: password,
			Timeout:  s.cfg.Timeout,
			Logger:   s.cfg.Logger,
			Hooks:    hooks,
		})
	}
}

// handleUpstreamPush forwards a server push as a serverMessage fragment,
// per the rule that only non-empty-after-trim bodies are forwarded.
func (s *Session) handleUpstreamPush(body string, kind rconcap.MessageType) {
	if strings.TrimSpace(body) == "" {
		return
	}
	s.sendFragment(s.formatServerMessage(body, string(kind)))
}

func (s *Session) handleUpstreamError(err error) {
	s.cfg.Logger.Warn().Err(err).Str("session", s.ID).Msg("bridge: upstream protocol error")
}

func (s *Session) formatServerMessage(body, severity string) fragment.Fragment {
	if s.cfg.FormatLine != nil {
		return s.cfg.FormatLine(body, s.cfg.meta())
	}
	return s.cfg.Formatter.ServerMessage(body, severity, s.cfg.meta())
}

func (s *Session) formatResponse(body, command string) fragment.Fragment {
	if s.cfg.FormatLine != nil {
		return s.cfg.FormatLine(body, s.cfg.meta())
	}
	return s.cfg.Formatter.Response(body, command, s.cfg.meta())
}

// handleCommand runs the command pipeline and turns its outcome into the
// matching fragment, for the browser-facing message-routing path.
func (s *Session) handleCommand(ctx context.Context, raw string) {
	command := strings.TrimSpace(raw)

	body, err := s.ExecCommand(ctx, raw)
	switch {
	case err == nil:
		s.sendFragment(s.formatResponse(body, command))
	case errors.Is(err, rconcap.ErrNotAuthenticated):
		s.sendFragment(s.cfg.Formatter.Error("NotAuthenticated", "session has not completed authentication", s.cfg.meta()))
	case errors.Is(err, rconcap.ErrEmptyCommand):
		s.sendFragment(s.cfg.Formatter.Error("EmptyCommand", "command is empty", s.cfg.meta()))
	case errors.Is(err, rconcap.ErrCommandBlocked):
		s.sendFragment(s.cfg.Formatter.Error("CommandBlocked", "command was blocked", s.cfg.meta()))
	case errors.Is(err, rconcap.ErrNotConnected):
		s.sendFragment(s.cfg.Formatter.Error("NotConnected", "upstream is not connected", s.cfg.meta()))
	default:
		s.sendFragment(s.cfg.Formatter.Error("CommandFailed", "Command failed: "+err.Error(), s.cfg.meta()))
	}
}

// ExecCommand runs the four-step command pipeline (trim, veto, connected
// check, exec) and returns the plain response body, independent of any
// fragment presentation. Errors from the pipeline's own checks are
// rconcap sentinel errors, so callers can branch with errors.Is; an error
// from the capability's Exec is returned unchanged.
func (s *Session) ExecCommand(ctx context.Context, raw string) (string, error) {
	s.mu.Lock()
	authenticated := s.state == stateAuthenticated
	capability := s.capability
	s.mu.Unlock()

	if !authenticated {
		return "", rconcap.ErrNotAuthenticated
	}

	command := strings.TrimSpace(raw)
	if command == "" {
		return "", rconcap.ErrEmptyCommand
	}

	if s.cfg.OnCommand != nil && !s.cfg.OnCommand(command, s) {
		return "", rconcap.ErrCommandBlocked
	}

	if capability == nil || !capability.Connected() {
		return "", rconcap.ErrNotConnected
	}

	return capability.Exec(ctx, command)
}

// sendFragment wraps f in an Envelope with the next sequence number and
// writes it to the browser socket. Write errors are swallowed: a broken
// browser socket is discovered by the next ReadMessage in Run's loop.
func (s *Session) sendFragment(f fragment.Fragment) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	payload, err := json.Marshal(Envelope{Fragment: f, Seq: seq})
	if err != nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteMessage(websocket.TextMessage, payload)
}

// teardown moves the session to Terminated exactly once: it destroys the
// upstream capability (if any), sends a final info fragment, and closes
// the browser socket. Safe to call more than once and from any goroutine.
func (s *Session) teardown(reason string) {
	s.mu.Lock()
	if s.state == stateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = stateTerminated
	capability := s.capability
	s.mu.Unlock()

	if capability != nil {
		capability.Destroy()
	}

	s.sendFragment(s.cfg.Formatter.Info(reason, s.cfg.meta()))
	s.conn.Close()
}

// Destroy tears the session down from outside its own read loop, e.g. from
// a SessionManager enumerating and disconnecting sessions.
func (s *Session) Destroy() {
	s.teardown("session closed")
}
