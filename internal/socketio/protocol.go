package socketio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EngineVersion is the Engine.IO protocol revision sent in the handshake.
const EngineVersion = "4"

// EngineType is an Engine.IO packet type.
type EngineType byte

// Engine.IO packet types.
const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is a Socket.IO packet type.
type PacketType byte

// Socket.IO packet types.
const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

// Open is the Engine.IO handshake object sent by the server.
type Open struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// Interval returns the server ping interval as a duration.
func (o Open) Interval() time.Duration {
	return time.Duration(o.PingInterval) * time.Millisecond
}

// Timeout returns the server ping timeout as a duration.
func (o Open) Timeout() time.Duration {
	return time.Duration(o.PingTimeout) * time.Millisecond
}

// ParseOpen decodes the payload of an Engine.IO open packet.
func ParseOpen(payload []byte) (Open, error) {
	var o Open
	if err := json.Unmarshal(payload, &o); err != nil {
		return Open{}, fmt.Errorf("%w: open: %v", ErrInvalidPacket, err)
	}
	if o.SID == "" {
		return Open{}, fmt.Errorf("%w: open packet without sid", ErrInvalidPacket)
	}
	return o, nil
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string // "/" when absent
	ID        *int64 // ack id, nil when absent
	Data      json.RawMessage
}

// HandshakeURL builds the WebSocket URL for a Socket.IO server.
// http(s) schemes are mapped to ws(s).
func HandshakeURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}

	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}

	p := strings.Trim(path, "/")
	if p == "" {
		p = "socket.io"
	}

	q := url.Values{}
	q.Set("EIO", EngineVersion)
	q.Set("transport", "websocket")

	return fmt.Sprintf("%s://%s/%s/?%s", scheme, u.Host, p, q.Encode()), nil
}

// DecodeEngine splits an Engine.IO frame into type and payload.
func DecodeEngine(frame []byte) (EngineType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return 0, nil, fmt.Errorf("%w: engine type %q", ErrInvalidPacket, frame[0])
	}
	return t, frame[1:], nil
}

// EncodeEngine builds an Engine.IO frame.
func EncodeEngine(t EngineType, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(t))
	return append(frame, payload...)
}

// DecodePacket parses the payload of an Engine.IO message packet.
func DecodePacket(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return Packet{}, ErrEmptyFrame
	}

	p := Packet{Type: PacketType(payload[0]), Namespace: "/"}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: socket type %q", ErrInvalidPacket, payload[0])
	}
	rest := payload[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, fmt.Errorf("%w: binary packets are not supported", ErrInvalidPacket)
	}

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(string(rest[:digits]), 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", ErrInvalidPacket, err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return Packet{}, fmt.Errorf("%w: body is not JSON", ErrInvalidPacket)
		}
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// Encode builds the Engine.IO message frame carrying the packet.
func (p Packet) Encode() []byte {
	var b bytes.Buffer
	b.WriteByte(byte(EngineMessage))
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.FormatInt(*p.ID, 10))
	}
	b.Write(p.Data)
	return b.Bytes()
}

// Event returns the event name and its arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, ErrNotEvent
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(p.Data, &arr); err != nil {
		return "", nil, fmt.Errorf("%w: event body: %v", ErrInvalidPacket, err)
	}
	if len(arr) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrInvalidPacket)
	}

	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil || name == "" {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrInvalidPacket)
	}

	return name, arr[1:], nil
}

// EncodeEvent builds the frame for an event emitted on the default namespace.
func EncodeEvent(name string, args ...any) ([]byte, error) {
	body := make([]any, 0, len(args)+1)
	body = append(body, name)
	body = append(body, args...)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", name, err)
	}

	return Packet{Type: PacketEvent, Data: data}.Encode(), nil
}

// EncodeConnect builds the namespace connect frame. auth may be nil.
func EncodeConnect(auth any) ([]byte, error) {
	p := Packet{Type: PacketConnect}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return nil, fmt.Errorf("encode auth: %w", err)
		}
		if string(data) != "null" {
			p.Data = data
		}
	}
	return p.Encode(), nil
}

// EncodeDisconnect builds the namespace disconnect frame.
func EncodeDisconnect() []byte {
	return Packet{Type: PacketDisconnect}.Encode()
}
