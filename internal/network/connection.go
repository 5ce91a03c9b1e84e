// Package network implements the websocket transport to a game server:
// dialing, the open handshake, the inbound frame pump and reconnects.
package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Connection wraps a websocket connection to a game server. Writes are
// serialised; reads must come from a single goroutine.
type Connection struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger zerolog.Logger

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time

	// State
	closed bool
}

// Dial opens a websocket connection to addr presenting origin.
func Dial(ctx context.Context, dialer *websocket.Dialer, addr, origin string) (*Connection, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewConnection(conn), nil
}

// NewConnection wraps an established websocket connection.
func NewConnection(conn *websocket.Conn) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
		logger:       log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// ReadFrame blocks until the next binary frame arrives. Text frames are
// skipped.
func (c *Connection) ReadFrame(timeout time.Duration) ([]byte, error) {
	for {
		if timeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		if kind != websocket.BinaryMessage {
			c.logger.Debug().Int("type", kind).Msg("ignoring non-binary message")
			continue
		}
		return data, nil
	}
}

// WriteFrame sends a binary frame.
func (c *Connection) WriteFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// SendHello announces the client viewport.
func (c *Connection) SendHello() error {
	return c.WriteFrame(protocol.BuildHello())
}

// SendPing sends a keep-alive ping.
func (c *Connection) SendPing() error {
	return c.WriteFrame(protocol.BuildPing())
}

// EnterGame asks the server to spawn a ship with the given nickname.
func (c *Connection) EnterGame(nick string) error {
	return c.WriteFrame(protocol.BuildEnterGame(nick))
}

// Leave leaves the arena.
func (c *Connection) Leave() error {
	return c.WriteFrame(protocol.BuildLeave())
}

// Input sends a steering update.
func (c *Connection) Input(angle float64, throttle bool) error {
	return c.WriteFrame(protocol.BuildInput(angle, throttle))
}

// Click toggles the flail.
func (c *Connection) Click(shooting bool) error {
	return c.WriteFrame(protocol.BuildClick(shooting))
}

// Close sends a close frame and closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.logger.Info().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
