// Package sse implements the stateless HTTP/SSE variants of the bridge:
// thin adapters that reuse only the JSON RCON client (internal/rconjson)
// for one-shot commands, connectivity tests, and a push event stream.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/fragment"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconcap"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconjson"
)

const (
	defaultCommandBound   = 8 * time.Second
	defaultHeartbeat      = 10 * time.Second
	minHeartbeat          = 5 * time.Second
	maxHeartbeat          = 15 * time.Second
)

// Config configures the SSE endpoint set. All three endpoints dial the
// same upstream target.
type Config struct {
	Host     string
	Password string

	// CommandBound bounds POST /rcon end to end (connect + exec). Default
	// 8s.
	CommandBound time.Duration

	// HeartbeatInterval keeps GET /stream warm through proxies. Clamped
	// into the 5-15s band; default 10s.
	HeartbeatInterval time.Duration

	Formatter fragment.Formatter
	TargetID  string
	SwapStyle string

	Logger zerolog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.CommandBound == 0 {
		cfg.CommandBound = defaultCommandBound
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.HeartbeatInterval < minHeartbeat {
		cfg.HeartbeatInterval = minHeartbeat
	}
	if cfg.HeartbeatInterval > maxHeartbeat {
		cfg.HeartbeatInterval = maxHeartbeat
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

// Handler serves the three stateless HTTP/SSE endpoints.
type Handler struct {
	cfg Config
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	return &Handler{cfg: cfg.withDefaults()}
}

// Mux registers /rcon, /connect, and /stream on a fresh ServeMux.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rcon", h.handleRCON)
	mux.HandleFunc("/connect", h.handleConnect)
	mux.HandleFunc("/stream", h.handleStream)
	return mux
}

func (h *Handler) newClient() *rconjson.Client {
	return rconjson.New(rconjson.Config{
		Host:     h.cfg.Host,
		Password: h.cfg.Password,
		Timeout:  h.cfg.CommandBound,
		Logger:   h.cfg.Logger,
	})
}

type rconRequest struct {
	Command string `json:"command"`
}

func (h *Handler) writeFragment(w http.ResponseWriter, f fragment.Fragment, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(f)
}

// handleRCON implements POST /rcon: open, await open, send one command,
// await the matching response (bounded by CommandBound), close, return the
// formatted fragment.
func (h *Handler) handleRCON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFragment(w, h.cfg.Formatter.Error("InvalidMessageFormat", "request body is not valid JSON", h.cfg.meta()), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CommandBound)
	defer cancel()

	client := h.newClient()
	defer client.Destroy()

	if err := client.Connect(ctx); err != nil {
		h.writeFragment(w, h.cfg.Formatter.Auth(false, err.Error(), h.cfg.meta()), http.StatusBadGateway)
		return
	}

	body, err := client.Exec(ctx, req.Command)
	if err != nil {
		h.writeFragment(w, h.cfg.Formatter.Error("CommandFailed", "Command failed: "+err.Error(), h.cfg.meta()), http.StatusBadGateway)
		return
	}

	h.writeFragment(w, h.cfg.Formatter.Response(body, req.Command, h.cfg.meta()), http.StatusOK)
}

// handleConnect implements POST /connect: open, await open, close, report
// success or failure.
func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CommandBound)
	defer cancel()

	client := h.newClient()
	err := client.Connect(ctx)
	client.Destroy()

	if err != nil {
		h.writeFragment(w, h.cfg.Formatter.Auth(false, err.Error(), h.cfg.meta()), http.StatusOK)
		return
	}
	h.writeFragment(w, h.cfg.Formatter.Auth(true, "", h.cfg.meta()), http.StatusOK)
}

// handleStream implements GET /stream: open, hold open, write one SSE
// "event: console" frame per server push, with heartbeat lines keeping the
// connection warm. The stream ends on upstream close or client disconnect;
// the browser is expected to reconnect.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := make(chan fragment.Fragment, 32)
	done := make(chan struct{})
	var closeOnce sync.Once
	client := rconjson.New(rconjson.Config{
		Host:     h.cfg.Host,
		Password: h.cfg.Password,
		Logger:   h.cfg.Logger,
		Hooks: rconcap.Hooks{
			OnServerMessage: func(body string, kind rconcap.MessageType) {
				select {
				case events <- h.cfg.Formatter.ServerMessage(body, string(kind), h.cfg.meta()):
				default:
					// Slow reader: drop rather than block the upstream read loop.
				}
			},
			OnClose: func() {
				closeOnce.Do(func() { close(done) })
			},
		},
	})
	defer client.Destroy()

	ctx := r.Context()
	if err := client.Connect(ctx); err != nil {
		http.Error(w, "upstream connect failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case f := <-events:
			data, err := json.Marshal(f)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: console\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
