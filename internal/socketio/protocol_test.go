package socketio

import (
	"errors"
	"testing"
	"time"
)

func TestHandshakeURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"http", "http://localhost:3000", "socket.io", "ws://localhost:3000/socket.io/?EIO=4&transport=websocket"},
		{"https", "https://api.example.com", "/realtime/", "wss://api.example.com/realtime/?EIO=4&transport=websocket"},
		{"default path", "ws://127.0.0.1:8080", "", "ws://127.0.0.1:8080/socket.io/?EIO=4&transport=websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HandshakeURL(tt.base, tt.path)
			if err != nil {
				t.Fatalf("HandshakeURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("HandshakeURL() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := HandshakeURL("not a url", ""); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestDecodeEngine(t *testing.T) {
	typ, payload, err := DecodeEngine([]byte(`0{"sid":"abc"}`))
	if err != nil {
		t.Fatalf("DecodeEngine failed: %v", err)
	}
	if typ != EngineOpen {
		t.Errorf("type = %q, want %q", typ, EngineOpen)
	}
	if string(payload) != `{"sid":"abc"}` {
		t.Errorf("payload = %q", payload)
	}

	if _, _, err := DecodeEngine(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if _, _, err := DecodeEngine([]byte("9")); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket, got %v", err)
	}
}

func TestParseOpen(t *testing.T) {
	o, err := ParseOpen([]byte(`{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))
	if err != nil {
		t.Fatalf("ParseOpen failed: %v", err)
	}
	if o.SID != "abc" {
		t.Errorf("SID = %q, want abc", o.SID)
	}
	if o.Interval() != 25*time.Second {
		t.Errorf("Interval() = %v, want 25s", o.Interval())
	}
	if o.Timeout() != 20*time.Second {
		t.Errorf("Timeout() = %v, want 20s", o.Timeout())
	}

	if _, err := ParseOpen([]byte(`{"pingInterval":1}`)); err == nil {
		t.Error("expected error for open packet without sid")
	}
}

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantType  PacketType
		wantNsp   string
		wantID    int64
		hasID     bool
		wantData  string
		wantError bool
	}{
		{name: "connect ack", payload: `0{"sid":"x"}`, wantType: PacketConnect, wantNsp: "/", wantData: `{"sid":"x"}`},
		{name: "event", payload: `2["order:created",{"order":{}}]`, wantType: PacketEvent, wantNsp: "/", wantData: `["order:created",{"order":{}}]`},
		{name: "event with ack id", payload: `212["ping"]`, wantType: PacketEvent, wantNsp: "/", wantID: 12, hasID: true, wantData: `["ping"]`},
		{name: "namespace", payload: `2/admin,["x"]`, wantType: PacketEvent, wantNsp: "/admin", wantData: `["x"]`},
		{name: "namespace with ack", payload: `3/admin,7["ok"]`, wantType: PacketAck, wantNsp: "/admin", wantID: 7, hasID: true, wantData: `["ok"]`},
		{name: "disconnect", payload: `1`, wantType: PacketDisconnect, wantNsp: "/"},
		{name: "connect error", payload: `4{"message":"unauthorized"}`, wantType: PacketConnectError, wantNsp: "/", wantData: `{"message":"unauthorized"}`},
		{name: "binary unsupported", payload: `51-["x",{"_placeholder":true,"num":0}]`, wantError: true},
		{name: "bad type", payload: `9`, wantError: true},
		{name: "bad json", payload: `2["x"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePacket([]byte(tt.payload))
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got packet %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePacket failed: %v", err)
			}
			if p.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", p.Type, tt.wantType)
			}
			if p.Namespace != tt.wantNsp {
				t.Errorf("Namespace = %q, want %q", p.Namespace, tt.wantNsp)
			}
			if tt.hasID {
				if p.ID == nil || *p.ID != tt.wantID {
					t.Errorf("ID = %v, want %d", p.ID, tt.wantID)
				}
			} else if p.ID != nil {
				t.Errorf("ID = %d, want nil", *p.ID)
			}
			if string(p.Data) != tt.wantData {
				t.Errorf("Data = %q, want %q", p.Data, tt.wantData)
			}
		})
	}
}

func TestPacketEvent(t *testing.T) {
	p, err := DecodePacket([]byte(`2["user_count",3]`))
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}

	name, args, err := p.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if name != "user_count" {
		t.Errorf("name = %q, want user_count", name)
	}
	if len(args) != 1 || string(args[0]) != "3" {
		t.Errorf("args = %q, want [3]", args)
	}

	connect := Packet{Type: PacketConnect}
	if _, _, err := connect.Event(); !errors.Is(err, ErrNotEvent) {
		t.Errorf("expected ErrNotEvent, got %v", err)
	}

	nameless := Packet{Type: PacketEvent, Data: []byte(`[1,2]`)}
	if _, _, err := nameless.Event(); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	frame, err := EncodeEvent("join_room", "orders")
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if string(frame) != `42["join_room","orders"]` {
		t.Errorf("EncodeEvent = %q", frame)
	}

	frame, err = EncodeEvent("ping")
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if string(frame) != `42["ping"]` {
		t.Errorf("EncodeEvent = %q", frame)
	}

	frame, err = EncodeConnect(map[string]string{"token": "abc"})
	if err != nil {
		t.Fatalf("EncodeConnect failed: %v", err)
	}
	if string(frame) != `40{"token":"abc"}` {
		t.Errorf("EncodeConnect = %q", frame)
	}

	var noAuth map[string]string
	frame, err = EncodeConnect(noAuth)
	if err != nil {
		t.Fatalf("EncodeConnect failed: %v", err)
	}
	if string(frame) != `40` {
		t.Errorf("EncodeConnect(nil map) = %q, want 40", frame)
	}

	if string(EncodeDisconnect()) != "41" {
		t.Errorf("EncodeDisconnect = %q, want 41", EncodeDisconnect())
	}

	id := int64(5)
	ack := Packet{Type: PacketAck, Namespace: "/admin", ID: &id, Data: []byte(`[]`)}
	if string(ack.Encode()) != `43/admin,5[]` {
		t.Errorf("Encode = %q", ack.Encode())
	}
}

func TestParseConnectError(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"TOKEN_INVALID"}`, "TOKEN_INVALID"},
		{`"not authorized"`, "not authorized"},
		{`garbage`, "garbage"},
	}

	for _, tt := range tests {
		ce := ParseConnectError([]byte(tt.body))
		if ce.Message != tt.want {
			t.Errorf("ParseConnectError(%s).Message = %q, want %q", tt.body, ce.Message, tt.want)
		}
	}

	if (&ConnectError{Message: "x"}).Error() != "connect error: x" {
		t.Error("unexpected ConnectError message")
	}
}
