// Package transport wires the wire envelope codec onto a real network
// connection. The session engine owns the connection's read loop directly
// — gorilla/websocket supplies the framing, nothing sits between the two
// the way a web framework's request handler normally would (see
// DESIGN.md's note on dropping gin for this module).
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabmesh/collabd/internal/wire"
)

// Config tunes the WebSocket upgrade and connection. Buffer sizes mirror
// a typical websocket handler, scaled down from a 10MB chat
// payload ceiling to this protocol's much smaller envelopes.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
}

// DefaultConfig returns a Config sized for envelope-sized traffic rather
// than large JSON chat payloads.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
	}
}

// Upgrader upgrades incoming HTTP requests to WebSocket connections framed
// as wire envelopes.
type Upgrader struct {
	cfg      Config
	upgrader websocket.Upgrader
}

// NewUpgrader builds an Upgrader from cfg. CheckOrigin always accepts —
// accepts any origin — since this transport has no notion of
// trusted browser origins; an operator fronting this with a reverse proxy
// is expected to enforce that policy there.
func NewUpgrader(cfg Config) *Upgrader {
	return &Upgrader{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Upgrade promotes an HTTP request to a Conn.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return &Conn{ws: ws, cfg: u.cfg}, nil
}

// Conn is one WebSocket connection framed as wire envelopes. It implements
// session.Sender.
type Conn struct {
	ws  *websocket.Conn
	cfg Config
}

// Send encodes env and writes it as a single binary WebSocket frame.
func (c *Conn) Send(ctx context.Context, env wire.Envelope) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, wire.Encode(env))
}

// Recv reads the next binary frame and decodes it as a wire envelope. A
// text frame is rejected — this protocol is binary-only.
func (c *Conn) Recv() (wire.Envelope, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("transport: read: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return wire.Envelope{}, fmt.Errorf("transport: unexpected frame type %d", msgType)
	}
	return wire.Decode(data)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// SetPongHandler installs fn as the handler invoked whenever a WebSocket
// protocol-level pong arrives, and arms the read deadline a bare
// handler never set — without one, a half-open TCP connection never times
// out on the read side.
func (c *Conn) SetPongHandler(fn func(appData string) error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(appData string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		if fn != nil {
			return fn(appData)
		}
		return nil
	})
}
