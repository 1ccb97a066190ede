// Package bridgeserver binds bridge sessions to incoming HTTP connections:
// it accepts WebSocket upgrades at a configured path and spawns one
// session per connection.
package bridgeserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/bridge"
)

// Server accepts browser WebSocket upgrades and spawns one bridge.Session
// per connection. It implements http.Handler so it composes into any host
// mux, and also offers ListenAndServe for standalone use.
type Server struct {
	cfg      bridge.Config
	manager  *bridge.SessionManager
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// Options configures a Server beyond the bridge.Config every session gets.
type Options struct {
	// CheckOrigin validates the Origin header on upgrade. Defaults to
	// same-origin only: the bridge itself does no browser authentication,
	// so this is the one default standing between it and cross-origin
	// websocket hijacking.
	CheckOrigin func(r *http.Request) bool

	ReadBufferSize  int
	WriteBufferSize int

	Logger zerolog.Logger
}

// New constructs a Server that spawns sessions configured by cfg.
func New(cfg bridge.Config, opts Options) *Server {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = sameOriginOnly
	}
	readBuf := opts.ReadBufferSize
	if readBuf == 0 {
		readBuf = 4096
	}
	writeBuf := opts.WriteBufferSize
	if writeBuf == 0 {
		writeBuf = 4096
	}

	return &Server{
		cfg:     cfg,
		manager: bridge.NewSessionManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     checkOrigin,
		},
		logger: opts.Logger,
	}
}

func sameOriginOnly(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "https://"+r.Host || origin == "http://"+r.Host
}

// Sessions returns the server's session registry, for enumeration/teardown
// by other components (e.g. the MCP tool surface or an admin endpoint).
func (s *Server) Sessions() *bridge.SessionManager {
	return s.manager
}

// ServeHTTP upgrades the request to a WebSocket and runs one bridge
// session on it for the connection's lifetime. Requests to any path other
// than the server's configured Path are rejected with 404: this server
// binds exactly one endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.Path {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("bridgeserver: websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	session := bridge.NewSession(id, conn, s.cfg)
	if err := s.manager.Add(session); err != nil {
		s.logger.Warn().Err(err).Str("session", id).Msg("bridgeserver: duplicate session id")
		conn.Close()
		return
	}

	s.logger.Info().Str("session", id).Str("remote", r.RemoteAddr).Msg("bridgeserver: session started")
	session.Run(r.Context())

	s.manager.Remove(id)
	s.logger.Info().Str("session", id).Msg("bridgeserver: session ended")
}

// Handler wires the session endpoint onto mux at cfg.Path. Callers that
// want additional routes (e.g. internal/sse) alongside the bridge should
// use this instead of ServeHTTP directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	return mux
}

// ListenAndServe starts a standalone HTTP server bound to addr, serving
// only the bridge endpoint.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

// Shutdown destroys every live session's upstream client. Callers are
// expected to have already stopped accepting new connections (e.g. via
// http.Server.Shutdown) before calling this.
func (s *Server) Shutdown(_ context.Context) error {
	s.manager.DisconnectAll()
	return nil
}
