// Package sockettest provides an in-process Socket.IO server for tests.
package sockettest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aquaice/livesync/internal/socketio"
)

// Options configures a Server.
type Options struct {
	// Authorize validates the token from the connect packet. nil accepts all.
	Authorize func(token string) error

	PingInterval time.Duration // advertised and used for server pings (default 25s)
	PingTimeout  time.Duration // advertised (default 20s)

	// NoPing advertises the intervals but never pings, so clients time out.
	NoPing bool

	// SkipConnectAck leaves the namespace connect unanswered.
	SkipConnectAck bool
}

// Received is an event sent by a client.
type Received struct {
	SID  string
	Name string
	Args []json.RawMessage
}

// Server is a minimal Socket.IO server over httptest.
type Server struct {
	*httptest.Server

	t    testing.TB
	opts Options

	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      map[string]*Conn
	handshakes int

	connected chan *Conn
	received  chan Received
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 20 * time.Second
	}

	s := &Server{
		t:    t,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:     make(map[string]*Conn),
		connected: make(chan *Conn, 16),
		received:  make(chan Received, 256),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.DropAll()
		s.Close()
	})

	return s
}

// WSURL returns the server URL with a ws scheme.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// Handshakes returns how many transport handshakes were attempted.
func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes
}

// SetAuthorize replaces the token check for subsequent connects.
func (s *Server) SetAuthorize(fn func(token string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Authorize = fn
}

// WaitConnected returns the next client that completed the namespace connect.
func (s *Server) WaitConnected(timeout time.Duration) *Conn {
	s.t.Helper()
	select {
	case c := <-s.connected:
		return c
	case <-time.After(timeout):
		s.t.Fatalf("timeout waiting for client connect")
		return nil
	}
}

// WaitReceived returns the next event sent by any client.
func (s *Server) WaitReceived(timeout time.Duration) Received {
	s.t.Helper()
	select {
	case r := <-s.received:
		return r
	case <-time.After(timeout):
		s.t.Fatalf("timeout waiting for client event")
		return Received{}
	}
}

// Emit broadcasts an event to all connected clients.
func (s *Server) Emit(name string, args ...any) {
	s.t.Helper()
	for _, c := range s.snapshot() {
		if err := c.Emit(name, args...); err != nil {
			s.t.Logf("emit to %s: %v", c.SID, err)
		}
	}
}

// DropAll closes every transport without a close handshake.
func (s *Server) DropAll() {
	for _, c := range s.snapshot() {
		c.Drop()
	}
}

func (s *Server) snapshot() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != socketio.EngineVersion || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("upgrade error: %v", err)
		return
	}

	s.mu.Lock()
	s.handshakes++
	opts := s.opts
	s.mu.Unlock()

	c := &Conn{
		SID:    uuid.NewString(),
		Header: r.Header.Clone(),
		ws:     ws,
		done:   make(chan struct{}),
	}
	defer c.Drop()

	open, _ := json.Marshal(socketio.Open{
		SID:          c.SID,
		Upgrades:     []string{},
		PingInterval: int(opts.PingInterval / time.Millisecond),
		PingTimeout:  int(opts.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if err := c.write(socketio.EncodeEngine(socketio.EngineOpen, open)); err != nil {
		return
	}

	if !s.acceptConnect(c, opts) {
		return
	}

	s.mu.Lock()
	s.conns[c.SID] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.SID)
		s.mu.Unlock()
	}()

	if !opts.SkipConnectAck {
		select {
		case s.connected <- c:
		default:
		}
	}

	if !opts.NoPing {
		go c.pingLoop(opts.PingInterval)
	}

	s.readLoop(c)
}

// acceptConnect waits for the namespace connect packet and answers it.
func (s *Server) acceptConnect(c *Conn, opts Options) bool {
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return false
		}
		typ, payload, err := socketio.DecodeEngine(frame)
		if err != nil || typ != socketio.EngineMessage {
			continue
		}
		p, err := socketio.DecodePacket(payload)
		if err != nil || p.Type != socketio.PacketConnect {
			continue
		}

		var auth struct {
			Token string `json:"token"`
		}
		if len(p.Data) > 0 {
			_ = json.Unmarshal(p.Data, &auth)
		}
		c.Token = auth.Token

		if opts.Authorize != nil {
			if err := opts.Authorize(auth.Token); err != nil {
				body, _ := json.Marshal(map[string]string{"message": err.Error()})
				_ = c.write(socketio.Packet{Type: socketio.PacketConnectError, Data: body}.Encode())
				return false
			}
		}

		if opts.SkipConnectAck {
			return true
		}

		body, _ := json.Marshal(map[string]string{"sid": c.SID})
		return c.write(socketio.Packet{Type: socketio.PacketConnect, Data: body}.Encode()) == nil
	}
}

func (s *Server) readLoop(c *Conn) {
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		typ, payload, err := socketio.DecodeEngine(frame)
		if err != nil {
			continue
		}

		switch typ {
		case socketio.EnginePong:
			c.mu.Lock()
			c.pongs++
			c.mu.Unlock()
		case socketio.EngineClose:
			return
		case socketio.EngineMessage:
			p, err := socketio.DecodePacket(payload)
			if err != nil {
				continue
			}
			switch p.Type {
			case socketio.PacketDisconnect:
				c.mu.Lock()
				c.clientDisconnected = true
				c.mu.Unlock()
				return
			case socketio.PacketEvent:
				name, args, err := p.Event()
				if err != nil {
					continue
				}
				select {
				case s.received <- Received{SID: c.SID, Name: name, Args: args}:
				default:
					s.t.Logf("received buffer full, dropping %s", name)
				}
			}
		}
	}
}

// Conn is one connected client.
type Conn struct {
	SID    string
	Token  string
	Header http.Header

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu                 sync.Mutex
	pongs              int
	clientDisconnected bool

	closeOnce sync.Once
	done      chan struct{}
}

// Emit sends an event to this client.
func (c *Conn) Emit(name string, args ...any) error {
	frame, err := socketio.EncodeEvent(name, args...)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// EmitRaw sends a pre-encoded Socket.IO packet body (without the engine prefix).
func (c *Conn) EmitRaw(packet string) error {
	return c.write(socketio.EncodeEngine(socketio.EngineMessage, []byte(packet)))
}

// Disconnect sends a server-side namespace disconnect and closes the transport.
func (c *Conn) Disconnect() {
	_ = c.write(socketio.EncodeDisconnect())
	c.Drop()
}

// Drop closes the transport abruptly.
func (c *Conn) Drop() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Pongs returns the number of pong packets received.
func (c *Conn) Pongs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pongs
}

// ClientDisconnected reports whether the client sent a namespace disconnect.
func (c *Conn) ClientDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientDisconnected
}

// Done is closed when the connection is dropped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(socketio.EncodeEngine(socketio.EnginePing, nil)); err != nil {
				return
			}
		}
	}
}

var errClosed = errors.New("connection closed")

func (c *Conn) write(frame []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
