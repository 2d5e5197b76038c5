package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/socketio"
	"github.com/aquaice/livesync/internal/socketio/sockettest"
)

// mockWSServer creates a raw WebSocket server for protocol violations.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testCreds() *auth.Credentials {
	return &auth.Credentials{Token: "secret-token"}
}

func newTestClient(t *testing.T, url string) Client {
	t.Helper()
	handshake, err := socketio.HandshakeURL(url, "")
	if err != nil {
		t.Fatalf("HandshakeURL: %v", err)
	}
	cfg := DefaultClientConfig()
	cfg.URL = handshake
	client := NewClient(cfg, nil)
	t.Cleanup(func() { client.Close(false) })
	return client
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func waitDrop(t *testing.T, client Client) *DropError {
	t.Helper()
	select {
	case err := <-client.Errors():
		var drop *DropError
		if !errors.As(err, &drop) {
			t.Fatalf("expected *DropError, got %T: %v", err, err)
		}
		return drop
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for drop")
		return nil
	}
}

func TestClient_Connect(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := server.WaitConnected(time.Second)

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}
	if client.SID() != conn.SID {
		t.Errorf("SID() = %q, want %q", client.SID(), conn.SID)
	}
	if got := conn.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("Authorization header = %q", got)
	}
	if conn.Token != "secret-token" {
		t.Errorf("auth token = %q, want secret-token", conn.Token)
	}

	if err := client.Close(false); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_ConnectRejected(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{
		Authorize: func(token string) error { return errors.New("invalid token") },
	})
	client := newTestClient(t, server.URL)

	err := client.Connect(context.Background(), testCreds())

	var connErr *socketio.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *socketio.ConnectError, got %v", err)
	}
	if connErr.Message != "invalid token" {
		t.Errorf("Message = %q, want invalid token", connErr.Message)
	}
	if client.IsConnected() {
		t.Error("rejected client reports connected")
	}
}

func TestClient_ConnectTimeout(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{SkipConnectAck: true})
	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Connect(ctx, testCreds())
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
}

func TestClient_InvalidOpenPacket(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`0{"upgrades":[]}`))
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.URL = wsURL(server)
	client := NewClient(cfg, nil)
	defer client.Close(false)

	err := client.Connect(context.Background(), testCreds())
	if !errors.Is(err, socketio.ErrInvalidPacket) {
		t.Fatalf("expected ErrInvalidPacket, got %v", err)
	}
}

func TestClient_EmitAndPackets(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := server.WaitConnected(time.Second)

	if err := client.Emit("join_room", "orders"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	got := server.WaitReceived(time.Second)
	if got.Name != "join_room" || len(got.Args) != 1 || string(got.Args[0]) != `"orders"` {
		t.Errorf("received %+v", got)
	}

	for i := 1; i <= 3; i++ {
		if err := conn.Emit("user_count", i); err != nil {
			t.Fatalf("server emit: %v", err)
		}
	}

	for i := 1; i <= 3; i++ {
		select {
		case p := <-client.Packets():
			name, args, err := p.Packet.Event()
			if err != nil {
				t.Fatalf("Event(): %v", err)
			}
			if name != "user_count" || string(args[0]) != strconv.Itoa(i) {
				t.Errorf("packet %d: %s %s", i, name, args[0])
			}
			if p.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for packet %d", i)
		}
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.URL = "ws://localhost:12345"
	client := NewClient(cfg, nil)

	if err := client.Send([]byte("42[]")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_AnswersPings(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{
		PingInterval: 20 * time.Millisecond,
		PingTimeout:  200 * time.Millisecond,
	})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := server.WaitConnected(time.Second)

	waitFor(t, time.Second, func() bool { return conn.Pongs() >= 3 })

	if !client.IsConnected() {
		t.Error("expected client to stay connected while pinged")
	}
}

func TestClient_PingTimeout(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{
		PingInterval: 30 * time.Millisecond,
		PingTimeout:  30 * time.Millisecond,
		NoPing:       true,
	})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	drop := waitDrop(t, client)
	if drop.Reason != ReasonPingTimeout {
		t.Errorf("Reason = %q, want %q", drop.Reason, ReasonPingTimeout)
	}
	if !errors.Is(drop, ErrPingTimeout) {
		t.Error("expected drop to wrap ErrPingTimeout")
	}

	// Packets is closed once the drop is reported.
	select {
	case _, ok := <-client.Packets():
		if ok {
			t.Error("unexpected packet after drop")
		}
	case <-time.After(time.Second):
		t.Error("packets channel not closed after drop")
	}
}

func TestClient_ServerDisconnect(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.WaitConnected(time.Second).Disconnect()

	if drop := waitDrop(t, client); drop.Reason != ReasonServerDisconnect {
		t.Errorf("Reason = %q, want %q", drop.Reason, ReasonServerDisconnect)
	}
}

func TestClient_TransportDrop(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.WaitConnected(time.Second).Drop()

	drop := waitDrop(t, client)
	if drop.Reason != ReasonTransportClose && drop.Reason != ReasonTransportError {
		t.Errorf("Reason = %q, want a transport reason", drop.Reason)
	}
}

func TestClient_CloseSendsDisconnect(t *testing.T) {
	server := sockettest.NewServer(t, sockettest.Options{})
	client := newTestClient(t, server.URL)

	if err := client.Connect(context.Background(), testCreds()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := server.WaitConnected(time.Second)

	if err := client.Close(true); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	waitFor(t, time.Second, conn.ClientDisconnected)

	// No drop is reported for a deliberate close.
	select {
	case err := <-client.Errors():
		t.Errorf("unexpected error after Close: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Second close should be no-op
	if err := client.Close(true); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestReadErrorReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"close frame", &websocket.CloseError{Code: websocket.CloseNormalClosure}, ReasonTransportClose},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, ReasonTransportClose},
		{"other", errors.New("connection reset by peer"), ReasonTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readErrorReason(tt.err); got != tt.want {
				t.Errorf("readErrorReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
