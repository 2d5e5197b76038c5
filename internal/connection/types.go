package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aquaice/livesync/internal/reconnect"
	"github.com/aquaice/livesync/internal/socketio"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrPingTimeout    = errors.New("no ping from server")
	ErrConnectTimeout = errors.New("connect timeout")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrNoCredentials  = errors.New("credentials are required")
)

// Reason explains why a session ended. Values match the Socket.IO client reasons.
type Reason string

const (
	ReasonClientDisconnect Reason = "io client disconnect"
	ReasonServerDisconnect Reason = "io server disconnect"
	ReasonTransportClose   Reason = "transport close"
	ReasonTransportError   Reason = "transport error"
	ReasonPingTimeout      Reason = "ping timeout"
)

// DropError reports the loss of an established session.
type DropError struct {
	Reason Reason
	Err    error
}

func (e *DropError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DropError) Unwrap() error { return e.Err }

// TimestampedPacket wraps an event packet with its receive timestamp.
type TimestampedPacket struct {
	Packet     socketio.Packet
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// EventType identifies a Manager event.
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	EventConnectError
	EventReconnectAttempt
	EventReconnectError
	EventReconnectFailed
	EventMessage
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventConnectError:
		return "connect_error"
	case EventReconnectAttempt:
		return "reconnect_attempt"
	case EventReconnectError:
		return "reconnect_error"
	case EventReconnectFailed:
		return "reconnect_failed"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a lifecycle change or an inbound server event, in transport order.
type Event struct {
	Type EventType

	// State and Attempt are the machine values right after the event.
	State   reconnect.State
	Attempt int

	Reason      Reason // disconnect
	Err         error  // connect_error, reconnect_error
	Reconnected bool   // connect that followed a drop or a failed connect

	Name       string            // message
	Args       []json.RawMessage // message
	ReceivedAt time.Time
}

// ClientConfig configures a transport client.
type ClientConfig struct {
	URL              string        // Handshake URL, see socketio.HandshakeURL
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Packet channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	ServerURL      string        // Socket.IO server base URL
	Path           string        // Socket.IO path
	Reconnect      bool          // Automatic reconnection
	MaxAttempts    int           // Automatic attempts before giving up
	Delay          time.Duration // Fixed wait before each automatic attempt
	ConnectTimeout time.Duration // Bound on each dial, including the namespace connect
	WriteTimeout   time.Duration
	BufferSize     int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Path:           "socket.io",
		Reconnect:      true,
		MaxAttempts:    reconnect.DefaultMaxAttempts,
		Delay:          1 * time.Second,
		ConnectTimeout: 20 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     256,
	}
}
