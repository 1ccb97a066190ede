package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/fragment"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/rconcap"
)

// fakeConn is an in-memory browserConn: reads drain a queue of canned
// frames, writes are recorded for assertion.
type fakeConn struct {
	mu      sync.Mutex
	inbox   [][]byte
	pos     int
	written [][]byte
	closed  bool
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{}
	for _, f := range frames {
		c.inbox = append(c.inbox, []byte(f))
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos >= len(c.inbox) {
		return 0, nil, errors.New("fakeConn: no more frames")
	}
	f := c.inbox[c.pos]
	c.pos++
	return 1, f, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), data...)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.written))
	for _, w := range c.written {
		var e Envelope
		if err := json.Unmarshal(w, &e); err != nil {
			t.Fatalf("unmarshal written frame: %v", err)
		}
		out = append(out, e)
	}
	return out
}

// fakeCapability is a scriptable rconcap.Capability for testing the bridge
// in isolation from real transports.
type fakeCapability struct {
	connected   bool
	connectErr  error
	execBody    string
	execErr     error
	destroyed   bool
	execCalls   []string
}

func (f *fakeCapability) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeCapability) Exec(ctx context.Context, command string) (string, error) {
	f.execCalls = append(f.execCalls, command)
	return f.execBody, f.execErr
}

func (f *fakeCapability) Destroy() error {
	f.destroyed = true
	f.connected = false
	return nil
}

func (f *fakeCapability) Connected() bool { return f.connected }

func testSession(conn *fakeConn, cfg Config) *Session {
	return NewSession("s1", conn, cfg)
}

func TestSession_EmptyCommandRejected(t *testing.T) {
	conn := newFakeConn(`{"command":"   "}`)
	s := testSession(conn, Config{})
	s.state = stateAuthenticated
	s.capability = &fakeCapability{connected: true}

	s.handleMessage(context.Background(), conn.inbox[0])

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "EmptyCommand") {
		t.Fatalf("envelopes = %+v, want one EmptyCommand error", envs)
	}
}

func TestSession_CommandVetoBlocksBeforeExec(t *testing.T) {
	conn := newFakeConn()
	fc := &fakeCapability{connected: true}
	vetoed := false
	cfg := Config{
		OnCommand: func(command string, _ *Session) bool {
			vetoed = true
			return !strings.HasPrefix(command, "quit")
		},
	}
	s := testSession(conn, cfg)
	s.state = stateAuthenticated
	s.capability = fc

	s.handleCommand(context.Background(), "quit now")

	if !vetoed {
		t.Fatal("OnCommand was never called")
	}
	if len(fc.execCalls) != 0 {
		t.Fatalf("Exec was called %d times, want 0 (blocked)", len(fc.execCalls))
	}
	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "CommandBlocked") {
		t.Fatalf("envelopes = %+v, want one CommandBlocked error", envs)
	}
}

func TestSession_CommandNotConnectedWhenUpstreamDown(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})
	s.state = stateAuthenticated
	s.capability = &fakeCapability{connected: false}

	s.handleCommand(context.Background(), "status")

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "NotConnected") {
		t.Fatalf("envelopes = %+v, want one NotConnected error", envs)
	}
}

func TestSession_CommandExecSuccessEmitsResponse(t *testing.T) {
	conn := newFakeConn()
	fc := &fakeCapability{connected: true, execBody: "hostname: X\n"}
	s := testSession(conn, Config{})
	s.state = stateAuthenticated
	s.capability = fc

	s.handleCommand(context.Background(), "status")

	if len(fc.execCalls) != 1 || fc.execCalls[0] != "status" {
		t.Fatalf("execCalls = %v, want [status]", fc.execCalls)
	}
	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "hostname: X") {
		t.Fatalf("envelopes = %+v, want response with hostname", envs)
	}
}

func TestSession_CommandExecFailureEmitsError(t *testing.T) {
	conn := newFakeConn()
	fc := &fakeCapability{connected: true, execErr: errors.New("boom")}
	s := testSession(conn, Config{})
	s.state = stateAuthenticated
	s.capability = fc

	s.handleCommand(context.Background(), "status")

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "Command failed") {
		t.Fatalf("envelopes = %+v, want Command failed error", envs)
	}
}

func TestSession_CommandBeforeAuthenticationRejected(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})
	s.state = stateAwaitingAuth

	s.handleCommand(context.Background(), "status")

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "NotAuthenticated") {
		t.Fatalf("envelopes = %+v, want NotAuthenticated error", envs)
	}
}

func TestSession_InvalidMessageFormat(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})
	s.state = stateAuthenticated

	s.handleMessage(context.Background(), []byte(`{"foo":"bar"}`))

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "InvalidMessageFormat") {
		t.Fatalf("envelopes = %+v, want InvalidMessageFormat error", envs)
	}
}

func TestSession_MalformedJSONIsInvalidFormat(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})

	s.handleMessage(context.Background(), []byte(`not json`))

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "InvalidMessageFormat") {
		t.Fatalf("envelopes = %+v, want InvalidMessageFormat error", envs)
	}
}

func TestSession_FlatKeyAuthAliasesNormalize(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{AuthMode: AuthModeClient})
	s.state = stateAwaitingAuth

	var msg inboundMessage
	raw := []byte(`{"auth.host":"10.0.0.1","auth.port":27015,"auth.password":"hunter2"}`)
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	auth := msg.normalizedAuth()
	if auth == nil || auth.Host != "10.0.0.1" || auth.Port != 27015 || auth.Password != "hunter2" {
		t.Fatalf("normalizedAuth() = %+v, want flat keys merged", auth)
	}
}

func TestSession_AuthMessageRejectedWhenNotAwaiting(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{AuthMode: AuthModeServer})
	s.state = stateAuthenticated

	s.handleAuth(context.Background(), &inboundAuth{Host: "h", Port: 1, Password: "p"})

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "InvalidMessageFormat") {
		t.Fatalf("envelopes = %+v, want InvalidMessageFormat error", envs)
	}
}

func TestSession_PushForwardingSkipsEmptyBody(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})

	s.handleUpstreamPush("   \n  ", rconcap.MessageGeneric)

	if len(conn.envelopes(t)) != 0 {
		t.Fatalf("expected no fragment for whitespace-only push")
	}
}

func TestSession_PushForwardingEmitsServerMessage(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})

	s.handleUpstreamPush("player joined", rconcap.MessageGeneric)

	envs := conn.envelopes(t)
	if len(envs) != 1 || !strings.Contains(envs[0].Fragment.HTML, "player joined") {
		t.Fatalf("envelopes = %+v, want player joined push", envs)
	}
}

func TestSession_TeardownIsIdempotentAndDestroysCapability(t *testing.T) {
	conn := newFakeConn()
	fc := &fakeCapability{connected: true}
	s := testSession(conn, Config{})
	s.state = stateAuthenticated
	s.capability = fc

	s.teardown("reason one")
	s.teardown("reason two")

	if !fc.destroyed {
		t.Error("capability was not destroyed on teardown")
	}
	if !conn.closed {
		t.Error("browser connection was not closed on teardown")
	}
	envs := conn.envelopes(t)
	if len(envs) != 1 {
		t.Fatalf("envelopes = %+v, want exactly one teardown fragment (idempotent)", envs)
	}
}

func TestSession_SequenceNumbersAreMonotonic(t *testing.T) {
	conn := newFakeConn()
	s := testSession(conn, Config{})

	s.sendFragment(fragment.Fragment{HTML: "a"})
	s.sendFragment(fragment.Fragment{HTML: "b"})
	s.sendFragment(fragment.Fragment{HTML: "c"})

	envs := conn.envelopes(t)
	if len(envs) != 3 {
		t.Fatalf("envelopes = %d, want 3", len(envs))
	}
	for i, e := range envs {
		if e.Seq != uint64(i+1) {
			t.Errorf("envelopes[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}
