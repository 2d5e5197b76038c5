package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/socketio"
	"github.com/aquaice/livesync/internal/version"
)

// Client represents a single Socket.IO session over one WebSocket.
type Client interface {
	// Connect dials, completes the Engine.IO handshake and the namespace connect.
	Connect(ctx context.Context, creds *auth.Credentials) error

	// Close shuts the session down. sendDisconnect notifies the server first.
	Close(sendDisconnect bool) error

	// Send writes a raw Engine.IO frame.
	Send(frame []byte) error

	// Emit sends an event on the default namespace.
	Emit(name string, args ...any) error

	// Packets returns inbound event packets. It is closed when the session ends.
	Packets() <-chan TimestampedPacket

	// Errors delivers at most one *DropError when the session is lost.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool

	// SID returns the Engine.IO session id.
	SID() string
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn
	open socketio.Open

	// Output channels
	packets chan TimestampedPacket
	errors  chan error
	done    chan struct{}

	failOnce sync.Once

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewClient creates a new transport client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}

	return &client{
		cfg:     cfg,
		logger:  logger,
		packets: make(chan TimestampedPacket, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect establishes the session. ctx bounds the whole handshake.
func (c *client) Connect(ctx context.Context, creds *auth.Credentials) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := creds.Header()
	header.Set("Accept", "application/json")
	header.Set("User-Agent", version.UserAgent())

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return c.handshakeErr(ctx, fmt.Errorf("dial: %w", err))
	}

	// Unblock handshake reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	open, err := c.handshake(conn, creds)
	if err != nil {
		conn.Close()
		return c.handshakeErr(ctx, err)
	}
	if !stop() {
		conn.Close()
		return c.handshakeErr(ctx, ctx.Err())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.open = open
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("socket connected",
		"url", c.cfg.URL,
		"sid", open.SID,
		"ping_interval", open.Interval(),
		"ping_timeout", open.Timeout(),
	)

	return nil
}

// handshake reads the open packet, sends the namespace connect and waits for
// the server's answer. Pings that arrive meanwhile are answered.
func (c *client) handshake(conn *websocket.Conn, creds *auth.Credentials) (socketio.Open, error) {
	var open socketio.Open
	opened := false

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return socketio.Open{}, fmt.Errorf("handshake read: %w", err)
		}

		typ, payload, err := socketio.DecodeEngine(frame)
		if err != nil {
			return socketio.Open{}, err
		}

		switch typ {
		case socketio.EngineOpen:
			open, err = socketio.ParseOpen(payload)
			if err != nil {
				return socketio.Open{}, err
			}
			opened = true

			var body any
			if p := creds.AuthPayload(); p != nil {
				body = p
			}
			connect, err := socketio.EncodeConnect(body)
			if err != nil {
				return socketio.Open{}, err
			}
			if err := c.writeFrame(conn, connect); err != nil {
				return socketio.Open{}, fmt.Errorf("send connect: %w", err)
			}

		case socketio.EnginePing:
			if err := c.writeFrame(conn, socketio.EncodeEngine(socketio.EnginePong, payload)); err != nil {
				return socketio.Open{}, fmt.Errorf("send pong: %w", err)
			}

		case socketio.EngineClose:
			return socketio.Open{}, errors.New("server closed during handshake")

		case socketio.EngineMessage:
			if !opened {
				continue
			}
			p, err := socketio.DecodePacket(payload)
			if err != nil {
				return socketio.Open{}, err
			}
			switch p.Type {
			case socketio.PacketConnect:
				return open, nil
			case socketio.PacketConnectError:
				return socketio.Open{}, socketio.ParseConnectError(p.Data)
			}
		}
	}
}

func (c *client) handshakeErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close gracefully closes the connection.
func (c *client) Close(sendDisconnect bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.connected
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn == nil {
		return nil
	}

	if sendDisconnect && wasConnected {
		if err := c.writeFrame(conn, socketio.EncodeDisconnect()); err != nil {
			c.logger.Debug("failed to send disconnect", "error", err)
		}
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return conn.Close()
}

// Send writes a raw frame to the connection.
func (c *client) Send(frame []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	return c.writeFrame(conn, frame)
}

// Emit encodes and sends an event.
func (c *client) Emit(name string, args ...any) error {
	frame, err := socketio.EncodeEvent(name, args...)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Packets returns the packets channel.
func (c *client) Packets() <-chan TimestampedPacket {
	return c.packets
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SID returns the Engine.IO session id.
func (c *client) SID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open.SID
}

func (c *client) writeFrame(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// fail reports the first session loss and tears the socket down.
// Later calls are no-ops. Nothing is reported after Close.
func (c *client) fail(reason Reason, err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		closed := c.closed
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		if !closed {
			c.errors <- &DropError{Reason: reason, Err: err}
		}
		conn.Close()
	})
}

// readLoop reads frames, answers pings and forwards event packets.
// It closes the packets channel on exit, after any drop error was reported.
func (c *client) readLoop() {
	defer close(c.packets)

	for {
		_, frame, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}
			c.fail(readErrorReason(err), err)
			return
		}

		typ, payload, err := socketio.DecodeEngine(frame)
		if err != nil {
			c.logger.Debug("dropping invalid frame", "error", err)
			continue
		}

		switch typ {
		case socketio.EnginePing:
			c.mu.Lock()
			c.lastPingAt = receivedAt
			c.mu.Unlock()

			if err := c.writeFrame(c.conn, socketio.EncodeEngine(socketio.EnginePong, payload)); err != nil {
				c.logger.Debug("failed to send pong", "error", err)
			}

		case socketio.EngineClose:
			c.fail(ReasonTransportClose, nil)
			return

		case socketio.EngineMessage:
			p, err := socketio.DecodePacket(payload)
			if err != nil {
				c.logger.Debug("dropping invalid packet", "error", err)
				continue
			}

			switch p.Type {
			case socketio.PacketEvent:
				select {
				case c.packets <- TimestampedPacket{Packet: p, ReceivedAt: receivedAt}:
				case <-c.done:
					return
				}
			case socketio.PacketDisconnect:
				c.fail(ReasonServerDisconnect, nil)
				return
			case socketio.PacketConnectError:
				c.logger.Warn("connect error after handshake", "error", socketio.ParseConnectError(p.Data))
			default:
				c.logger.Debug("ignoring packet", "type", string(p.Type))
			}
		}
	}
}

// readErrorReason classifies a transport read failure.
func readErrorReason(err error) Reason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ReasonTransportClose
	}
	return ReasonTransportError
}

// heartbeatLoop detects a server that stopped pinging.
func (c *client) heartbeatLoop() {
	c.mu.RLock()
	limit := c.open.Interval() + c.open.Timeout()
	c.mu.RUnlock()

	if limit <= 0 {
		return
	}
	check := limit / 4
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}

	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			connected := c.connected
			c.mu.RUnlock()

			if !connected {
				return
			}

			if time.Since(lastPing) > limit {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", limit,
				)
				c.fail(ReasonPingTimeout, ErrPingTimeout)
				return
			}
		}
	}
}
