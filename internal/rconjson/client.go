// Package rconjson implements the JSON Rust RCON client: one upstream
// WebSocket carrying JSON messages, with credentials embedded in the URL
// path and unsolicited server pushes interleaved with command responses.
package rconjson

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconcap"
)

// timeoutPlaceholder is returned by Exec when the per-command timeout
// fires before a matching response arrives.
const timeoutPlaceholder = "(no response — timed out)"

// pushRequestName is sent as the Name field on outgoing command messages.
const pushRequestName = "rcon-bridge"

// Message is a JSON Rust RCON wire frame.
type Message struct {
	Identifier int32               `json:"Identifier"`
	Message    string              `json:"Message"`
	Type       rconcap.MessageType `json:"Type"`
	Name       string              `json:"Name,omitempty"`
}

// Config configures a Client.
type Config struct {
	Scheme   string // "ws" or "wss"; default "ws"
	Host     string // host:port of the upstream server
	Password string
	Timeout  time.Duration // connect and per-exec deadline; 0 means 5s
	Logger   zerolog.Logger
	Hooks    rconcap.Hooks
}

// result is what a pending command is ultimately resolved with: either a
// response body (err == nil) or a rejection (body == "", err != nil). A
// timeout is not represented here: Exec handles its own timer and returns
// the placeholder string itself, since a timeout resolves rather than
// rejects.
type result struct {
	body string
	err  error
}

// Client is a JSON Rust RCON client over one WebSocket connection.
type Client struct {
	cfg Config

	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.Mutex
	connected bool
	destroyed bool
	nextID    int32
	pending   map[int32]chan result
}

// New creates a disconnected Client.
func New(cfg Config) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "ws"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:     cfg,
		nextID:  1,
		pending: make(map[int32]chan result),
	}
}

func (c *Client) url() string {
	u := url.URL{
		Scheme: c.cfg.Scheme,
		Host:   c.cfg.Host,
		Path:   "/" + c.cfg.Password,
	}
	return u.String()
}

// Connect opens the WebSocket. Authentication is implicit in the URL: if
// the server accepts the open, the client is authenticated; if it closes
// before open, authentication failed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.destroyed {
		c.mu.Unlock()
		return rconcap.ErrNotConnected
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	// The Host header must be set explicitly to host:port so an outbound
	// HTTP proxy can route the upgrade correctly.
	header := http.Header{}
	header.Set("Host", c.cfg.Host)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.url(), header)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return fmt.Errorf("%w: %v", rconcap.ErrAuthRejected, err)
		}
		if dialCtx.Err() != nil {
			return rconcap.ErrTimeout
		}
		return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.cfg.Logger.Info().Str("host", c.cfg.Host).Msg("rconjson: connected")
	return nil
}

// readLoop dispatches inbound frames: responses are delivered to the
// pending channel keyed by Identifier; everything else is a server push.
func (c *Client) readLoop() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	defer c.teardown(rconcap.ErrConnectionClosed)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if c.cfg.Hooks.OnError != nil {
				c.cfg.Hooks.OnError(fmt.Errorf("%w: %v", rconcap.ErrMalformedFrame, err))
			}
			continue
		}

		if msg.Identifier > 0 {
			c.mu.Lock()
			ch, ok := c.pending[msg.Identifier]
			if ok {
				delete(c.pending, msg.Identifier)
			}
			c.mu.Unlock()
			if ok {
				ch <- result{body: msg.Message}
				continue
			}
			// Unknown-id safety valve: deliver as a server-message push.
		}

		if c.cfg.Hooks.OnServerMessage != nil {
			c.cfg.Hooks.OnServerMessage(msg.Message, msg.Type)
		}
	}
}

// Exec sends command and returns the Message field of the first inbound
// frame whose Identifier matches. On timeout it resolves with a
// placeholder string rather than an error.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return "", rconcap.ErrNotConnected
	}
	if !c.connected {
		c.mu.Unlock()
		return "", rconcap.ErrNotConnected
	}
	id := c.nextID
	c.nextID++
	if c.nextID >= 9000 {
		c.nextID = 1
	}
	respCh := make(chan result, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	msg := Message{Identifier: id, Message: command, Name: pushRequestName}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.removePending(id)
		return "", fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}

	c.connMu.Lock()
	conn := c.conn
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
		err = conn.WriteMessage(websocket.TextMessage, payload)
	}
	c.connMu.Unlock()
	if conn == nil {
		c.removePending(id)
		return "", rconcap.ErrNotConnected
	}
	if err != nil {
		c.removePending(id)
		return "", fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-respCh:
		if res.err != nil {
			return "", res.err
		}
		return res.body, nil
	case <-timer.C:
		c.removePending(id)
		return timeoutPlaceholder, nil
	case <-ctx.Done():
		c.removePending(id)
		return "", ctx.Err()
	}
}

func (c *Client) removePending(id int32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// PendingCount returns the number of commands issued but not yet resolved.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// teardown rejects every still-pending command with err and notifies
// OnClose exactly once.
func (c *Client) teardown(err error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.connected = false
	pending := c.pending
	c.pending = make(map[int32]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- result{err: err}:
		default:
		}
	}

	if c.cfg.Hooks.OnClose != nil {
		c.cfg.Hooks.OnClose()
	}
}

// Destroy synchronously closes the WebSocket and rejects every still
// pending command with ErrConnectionClosed.
func (c *Client) Destroy() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.teardown(rconcap.ErrConnectionClosed)

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Connected reports whether the client currently has a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.destroyed
}
