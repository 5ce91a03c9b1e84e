package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/protocol"
)

const (
	// DefaultOrigin is the Origin header the game server expects.
	DefaultOrigin = "https://brutal.io"

	tracerName = "flailbot/network"
)

// ErrNotConnected is returned by commands issued while no connection is up.
var ErrNotConnected = errors.New("not connected")

// Resolver looks up a game server address for a region.
type Resolver interface {
	Resolve(ctx context.Context, region string, secure bool) (string, error)
}

// Options configures the transport.
type Options struct {
	// Address is a ws:// or wss:// URL. Empty resolves one through the
	// Resolver on first connect.
	Address string
	Region  string
	Secure  bool
	Origin  string

	Nick     string
	AutoPlay bool

	Reconnect         bool
	ReconnectInterval time.Duration
	MaxAttempts       int

	// RespawnDelay is the pause between a death and re-entering when
	// AutoPlay is set.
	RespawnDelay time.Duration
	// PingInterval sends periodic keep-alive pings. Zero pings only on open.
	PingInterval time.Duration
	ReadTimeout  time.Duration

	// TracerProvider receives one span per inbound frame. Nil uses the
	// global provider.
	TracerProvider trace.TracerProvider
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		Region:            "CH",
		Origin:            DefaultOrigin,
		Reconnect:         true,
		ReconnectInterval: time.Second,
		MaxAttempts:       100,
		RespawnDelay:      100 * time.Millisecond,
	}
}

// Client keeps one game connection alive and feeds every inbound frame to
// the parser on the read goroutine.
type Client struct {
	opts     Options
	logger   zerolog.Logger
	sink     events.Sink
	parser   *protocol.Parser
	resolver Resolver
	dialer   *websocket.Dialer
	tracer   trace.Tracer

	mu       sync.Mutex
	conn     *Connection
	address  string
	attempts int
}

// NewClient creates a client reporting to sink. Auto-play needs death
// events, so it turns event decoding on.
func NewClient(opts Options, sink events.Sink, parserOpts protocol.Options, resolver Resolver) *Client {
	if opts.AutoPlay {
		parserOpts.Events = true
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c := &Client{
		opts:     opts,
		logger:   log.With().Str("component", "client").Logger(),
		sink:     sink,
		resolver: resolver,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		tracer:  tp.Tracer(tracerName),
		address: opts.Address,
	}
	c.parser = protocol.NewParser(&clientSink{Sink: sink, client: c}, parserOpts)
	return c
}

// Parser returns the frame parser.
func (c *Client) Parser() *protocol.Parser {
	return c.parser
}

// Attempts returns the number of reconnects made so far.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Run connects and pumps frames until ctx is cancelled, reconnecting after
// each close while the attempt budget lasts.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.sink.OnClose("shutdown")
			return nil
		}

		reason := "closed"
		if err != nil {
			reason = err.Error()
		}
		c.logger.Warn().Str("reason", reason).Msg("connection lost")
		c.sink.OnClose(reason)

		if !c.opts.Reconnect {
			return err
		}
		if err == nil {
			err = errors.New("connection closed")
		}
		c.mu.Lock()
		if c.attempts >= c.opts.MaxAttempts {
			c.mu.Unlock()
			return fmt.Errorf("giving up after %d reconnect attempts: %w", c.opts.MaxAttempts, err)
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		c.logger.Info().
			Int("attempt", attempt).
			Dur("in", c.opts.ReconnectInterval).
			Msg("reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectInterval):
		}
	}
}

// session runs one connection from dial to close.
func (c *Client) session(ctx context.Context) error {
	addr, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	conn, err := Dial(ctx, c.dialer, addr, c.opts.Origin)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.parser.Reset()
	c.setConn(conn)
	defer c.setConn(nil)

	if err := c.open(conn); err != nil {
		return err
	}
	c.logger.Info().Str("address", addr).Msg("connected")
	c.sink.OnOpen()

	if c.opts.PingInterval > 0 {
		go c.keepAlive(ctx, conn)
	}

	for {
		frame, err := conn.ReadFrame(c.opts.ReadTimeout)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		c.handleFrame(ctx, frame)
	}
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	c.mu.Lock()
	addr := c.address
	c.mu.Unlock()
	if addr != "" {
		return addr, nil
	}
	if c.resolver == nil {
		return "", fmt.Errorf("no address configured and no resolver")
	}

	addr, err := c.resolver.Resolve(ctx, c.opts.Region, c.opts.Secure)
	if err != nil {
		return "", fmt.Errorf("failed to resolve game server: %w", err)
	}
	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
	return addr, nil
}

// open performs the handshake: hello, ping and, with auto-play, a spawn.
func (c *Client) open(conn *Connection) error {
	if err := conn.SendHello(); err != nil {
		return err
	}
	if err := conn.SendPing(); err != nil {
		return err
	}
	if c.opts.AutoPlay {
		return conn.EnterGame(c.opts.Nick)
	}
	return nil
}

func (c *Client) keepAlive(ctx context.Context, conn *Connection) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn.IsClosed() {
				return
			}
			if err := conn.SendPing(); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// handleFrame reports and decodes one inbound frame inside a span.
func (c *Client) handleFrame(ctx context.Context, frame []byte) {
	attrs := []attribute.KeyValue{attribute.Int("frame.size", len(frame))}
	if len(frame) > 0 {
		attrs = append(attrs, attribute.String("frame.opcode", protocol.OpcodeName(frame[0])))
	}
	_, span := c.tracer.Start(ctx, "flailbot.frame",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	c.sink.OnMessage(frame)
	if err := c.parser.Parse(frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (c *Client) setConn(conn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) current() (*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// EnterGame spawns with the configured nickname.
func (c *Client) EnterGame() error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return conn.EnterGame(c.opts.Nick)
}

// Leave leaves the arena.
func (c *Client) Leave() error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return conn.Leave()
}

// Input sends a steering update.
func (c *Client) Input(angle float64, throttle bool) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return conn.Input(angle, throttle)
}

// Click toggles the flail.
func (c *Client) Click(shooting bool) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return conn.Click(shooting)
}

// clientSink forwards to the application sink and schedules a respawn
// after each death when auto-play is on.
type clientSink struct {
	events.Sink
	client *Client
}

func (s *clientSink) OnDeath(id uint16, nick string) {
	s.Sink.OnDeath(id, nick)
	if !s.client.opts.AutoPlay {
		return
	}
	time.AfterFunc(s.client.opts.RespawnDelay, func() {
		if err := s.client.EnterGame(); err != nil {
			s.client.logger.Warn().Err(err).Msg("respawn failed")
		}
	})
}
