// Package rconbinary implements the binary Source RCON client: one TCP
// connection, an authentication handshake, and multi-packet response
// stitching via the sentinel trick described in rconpacket.
package rconbinary

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconcap"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconpacket"
)

// maxReceiveBuffer bounds the growing receive buffer to resist malformed
// or hostile servers that never terminate a response.
const maxReceiveBuffer = 1 << 20 // 1 MiB

// authID is the request id used for the auth packet. Any positive value
// works; the server mirrors it back on success.
const authID int32 = 1

// Config configures a Client.
type Config struct {
	Address string // host:port of the upstream Source RCON server
	Password string
	Timeout  time.Duration // connect and per-exec deadline; 0 means 5s
	Logger   zerolog.Logger
	Hooks    rconcap.Hooks
}

// Client is a binary Source RCON client. It owns one net.Conn and one
// pending-command table. All exported methods are safe for concurrent use,
// though Exec serializes internally (see execMu).
type Client struct {
	cfg Config

	connMu sync.Mutex
	conn   net.Conn

	// execMu serializes Exec calls on this client. The sentinel-based
	// multi-packet detection resolves the oldest pending command on
	// sentinel regardless of which command just completed, so serializing
	// Exec keeps "oldest pending" and "the command just issued" the same
	// entry.
	execMu sync.Mutex

	nextID int32 // next request id to assign; cycles 2..8999 (1 is authID)

	mu          sync.Mutex
	connected   bool
	destroyed   bool
	recvBuf     []byte
	pending     map[int32]*pendingExec
}

// pendingExec marks a command as in flight. It carries no payload: the
// accumulated body lives on the stack of the Exec call that owns it.
type pendingExec struct {
	id int32
}

// New creates a disconnected Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:     cfg,
		nextID:  2, // 1 is reserved for the auth packet
		pending: make(map[int32]*pendingExec),
	}
}

// Connect dials the upstream server and authenticates.
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

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if err := c.authenticate(); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.cfg.Logger.Info().Str("address", c.cfg.Address).Msg("rconbinary: connected")
	return nil
}

func (c *Client) authenticate() error {
	c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(rconpacket.Encode(authID, rconpacket.Auth, c.cfg.Password)); err != nil {
		return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)

	for {
		if time.Now().After(deadline) {
			return rconcap.ErrTimeout
		}

		n, err := c.conn.Read(read)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return rconcap.ErrTimeout
			}
			return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
		}
		buf = append(buf, read[:n]...)

		for {
			pkt, consumed, ok, err := rconpacket.Decode(buf)
			if err != nil {
				return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
			}
			if !ok {
				break
			}
			buf = buf[consumed:]

			// Pre-auth garbage: ignore stray RESPONSE_VALUE frames with
			// id -1 or 0 while waiting for the real auth response.
			if pkt.Kind == rconpacket.ResponseValue && (pkt.ID == -1 || pkt.ID == 0) {
				continue
			}

			if pkt.ID == -1 {
				return rconcap.ErrAuthRejected
			}
			if pkt.ID == authID {
				return nil
			}
			// Anything else pre-auth is ignored; keep waiting.
		}
	}
}

// Exec sends command and returns its accumulated response text, or a
// partial/empty string if the per-command timeout fires first. Exec never
// returns an error for a timeout; it resolves with whatever body has
// accumulated so far.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return "", rconcap.ErrNotConnected
	}
	if !c.connected {
		c.mu.Unlock()
		return "", rconcap.ErrNotConnected
	}
	id := c.assignID()
	c.pending[id] = &pendingExec{id: id}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(rconpacket.ExecCommand, id, command); err != nil {
		return "", err
	}
	if err := c.send(rconpacket.ResponseValue, rconpacket.SentinelID, ""); err != nil {
		return "", err
	}

	return c.collect(id)
}

// PendingCount returns the number of commands issued but not yet resolved
// or timed out. Since Exec serializes internally, this is always 0 or 1,
// but it is kept as a table (not a bare flag) so a growing pending count
// under concurrent callers is directly observable.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) assignID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID >= 9000 {
		c.nextID = 2
	}
	return id
}

func (c *Client) send(kind rconpacket.Kind, id int32, body string) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return rconcap.ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	if _, err := conn.Write(rconpacket.Encode(id, kind, body)); err != nil {
		return fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
	}
	return nil
}

// collect accumulates RESPONSE_VALUE bodies for id until the sentinel
// arrives or the exec timeout fires.
func (c *Client) collect(id int32) (string, error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return "", rconcap.ErrNotConnected
	}

	var body []byte
	deadline := time.Now().Add(c.cfg.Timeout)
	read := make([]byte, 4096)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Graceful degradation: return whatever was accumulated.
			return string(body), nil
		}
		conn.SetReadDeadline(deadline)

		n, err := conn.Read(read)
		if err != nil {
			c.mu.Lock()
			destroyed := c.destroyed
			c.mu.Unlock()
			if destroyed {
				return "", rconcap.ErrConnectionClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Graceful degradation: the exec deadline passed mid-read.
				return string(body), nil
			}
			if string(body) != "" {
				return string(body), nil
			}
			return "", fmt.Errorf("%w: %v", rconcap.ErrTransport, err)
		}

		c.mu.Lock()
		c.recvBuf = append(c.recvBuf, read[:n]...)
		if len(c.recvBuf) > maxReceiveBuffer {
			c.mu.Unlock()
			c.Destroy()
			return "", fmt.Errorf("%w: receive buffer exceeded %d bytes", rconcap.ErrTransport, maxReceiveBuffer)
		}
		buf := c.recvBuf
		c.mu.Unlock()

		for {
			pkt, consumed, ok, decErr := rconpacket.Decode(buf)
			if decErr != nil {
				if c.cfg.Hooks.OnError != nil {
					c.cfg.Hooks.OnError(fmt.Errorf("%w: %v", rconcap.ErrMalformedFrame, decErr))
				}
				buf = nil
				break
			}
			if !ok {
				break
			}
			buf = buf[consumed:]

			if pkt.ID == rconpacket.SentinelID {
				c.mu.Lock()
				c.recvBuf = append([]byte(nil), buf...)
				c.mu.Unlock()
				return string(body), nil
			}
			if pkt.Kind == rconpacket.ResponseValue && pkt.ID == id {
				body = append(body, []byte(pkt.Body)...)
			}
		}

		c.mu.Lock()
		c.recvBuf = append([]byte(nil), buf...)
		c.mu.Unlock()
	}
}

// Destroy closes the socket and clears the pending-command table. Safe to
// call more than once.
func (c *Client) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.connected = false
	c.pending = make(map[int32]*pendingExec)
	c.mu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	if c.cfg.Hooks.OnClose != nil {
		c.cfg.Hooks.OnClose()
	}
	return err
}

// Connected reports whether the client is currently authenticated and
// usable.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.destroyed
}
