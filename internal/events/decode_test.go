package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func args(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestDecode_OrderStatusChanged(t *testing.T) {
	ev, err := Decode(NameOrderStatusChanged, args(`{"orderId":42,"status":"despachado","message":"Pedido despachado","trackingCode":"TRK-42","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	sc, ok := ev.(OrderStatusChanged)
	if !ok {
		t.Fatalf("event type = %T, want OrderStatusChanged", ev)
	}
	if sc.OrderID != 42 {
		t.Errorf("OrderID = %d, want 42", sc.OrderID)
	}
	if sc.Status != StatusDispatched {
		t.Errorf("Status = %q, want %q", sc.Status, StatusDispatched)
	}
	if sc.TrackingCode != "TRK-42" {
		t.Errorf("TrackingCode = %q, want TRK-42", sc.TrackingCode)
	}
	if !sc.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Timestamp = %v, want 1700000000", sc.Timestamp)
	}
	if sc.EventName() != NameOrderStatusChanged {
		t.Errorf("EventName() = %q", sc.EventName())
	}
}

func TestDecode_OrderCreated(t *testing.T) {
	ev, err := Decode(NameOrderCreated, args(`{"order":{"id":7,"tracking_code":"TRK-7","customer_name":"Ana","customer_phone":"555","customer_address":"Calle 1","order_status":"pendiente","items":[{"product_id":1,"quantity":3}]},"message":"Nuevo pedido","timestamp":"2024-01-15T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	oc := ev.(OrderCreated)
	if oc.Order.ID != 7 || oc.Order.TrackingCode != "TRK-7" {
		t.Errorf("Order = %+v", oc.Order)
	}
	if oc.Order.Status != StatusPending {
		t.Errorf("Status = %q, want pendiente", oc.Order.Status)
	}
	if len(oc.Order.Items) != 1 || oc.Order.Items[0].Quantity != 3 {
		t.Errorf("Items = %+v", oc.Order.Items)
	}
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if !oc.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", oc.Timestamp, want)
	}
}

func TestDecode_OrderUpdatedFallsBackToOrderID(t *testing.T) {
	ev, err := Decode(NameOrderUpdated, args(`{"order":{"id":9,"customer_name":"","customer_phone":"","customer_address":""},"message":"x","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	ou := ev.(OrderUpdated)
	if ou.OrderID != 9 {
		t.Errorf("OrderID = %d, want 9", ou.OrderID)
	}
	if !ou.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v, want millisecond parse", ou.Timestamp)
	}
}

func TestDecode_StringOrderID(t *testing.T) {
	ev, err := Decode(NameOrderDeleted, args(`{"orderId":"42","trackingCode":"TRK-42","message":"Pedido eliminado","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if od := ev.(OrderDeleted); od.OrderID != 42 || od.TrackingCode != "TRK-42" {
		t.Errorf("OrderDeleted = %+v", od)
	}
}

func TestDecode_Notification(t *testing.T) {
	ev, err := Decode(NameNotification, args(`{"type":"warning","message":"Stock bajo","title":"Inventario","timestamp":1700000000,"userId":0}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	n := ev.(Notification)
	if !n.Targeted() || *n.UserID != 0 {
		t.Errorf("UserID = %v, want pointer to 0", n.UserID)
	}
	if n.Title != "Inventario" || n.Type != "warning" {
		t.Errorf("Notification = %+v", n)
	}

	ev, err = Decode(NameNotification, args(`{"type":"info","message":"hola","timestamp":null}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.(Notification).Targeted() {
		t.Error("notification without userId should not be targeted")
	}
}

func TestDecode_NotificationUserID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *int64
	}{
		{"number", `{"message":"m","userId":7}`, ptr(7)},
		{"numeric string", `{"message":"m","userId":"7"}`, ptr(7)},
		{"zero string", `{"message":"m","userId":"0"}`, ptr(0)},
		{"null", `{"message":"m","userId":null}`, nil},
		{"absent", `{"message":"m"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(NameNotification, args(tt.payload))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got := ev.(Notification).UserID
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("UserID = %d, want untargeted", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("UserID = %v, want %d", got, *tt.want)
			}
		})
	}
}

func ptr(n int64) *int64 { return &n }

func TestDecode_UserCount(t *testing.T) {
	ev, err := Decode(NameUserCount, args(`5`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.(UserCount).Count != 5 {
		t.Errorf("Count = %d, want 5", ev.(UserCount).Count)
	}

	if _, err := Decode(NameUserCount, args(`-1`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for negative count, got %v", err)
	}
	if _, err := Decode(NameUserCount, args(`"five"`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for string count, got %v", err)
	}
}

func TestDecode_UserPresence(t *testing.T) {
	ev, err := Decode(NameUserConnected, args(`{"user":{"id":3,"username":"jlopez"},"message":"jlopez conectado","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p := ev.(UserPresence)
	if !p.Connected || p.EventName() != NameUserConnected {
		t.Errorf("presence = %+v", p)
	}
	if id, ok := p.ID(); !ok || id != 3 {
		t.Errorf("ID() = (%d, %v), want (3, true)", id, ok)
	}

	ev, err = Decode(NameUserDisconnected, args(`{"userId":4,"message":"bye","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p = ev.(UserPresence)
	if p.Connected || p.EventName() != NameUserDisconnected {
		t.Errorf("presence = %+v", p)
	}
	if id, ok := p.ID(); !ok || id != 4 {
		t.Errorf("ID() = (%d, %v), want (4, true)", id, ok)
	}

	ev, err = Decode(NameUserDisconnected, args(`{"userId":"12","message":"bye"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if id, ok := ev.(UserPresence).ID(); !ok || id != 12 {
		t.Errorf("ID() = (%d, %v), want (12, true)", id, ok)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		args    []json.RawMessage
		wantErr error
	}{
		{"unknown name", "inventory:updated", args(`{}`), ErrUnknownEvent},
		{"missing payload", NameOrderCreated, nil, ErrMalformedPayload},
		{"array payload", NameOrderDeleted, args(`[1]`), ErrMalformedPayload},
		{"wrong field type", NameOrderStatusChanged, args(`{"orderId":"abc"}`), ErrMalformedPayload},
		{"missing order id", NameOrderDeleted, args(`{"trackingCode":"T"}`), ErrMalformedPayload},
		{"fractional order id", NameOrderDeleted, args(`{"orderId":4.5}`), ErrMalformedPayload},
		{"zero order id", NameOrderUpdated, args(`{"orderId":0}`), ErrMalformedPayload},
		{"object order id", NameOrderStatusChanged, args(`{"orderId":{"id":1},"status":"pendiente"}`), ErrMalformedPayload},
		{"non-numeric user id", NameNotification, args(`{"message":"x","userId":"siete"}`), ErrMalformedPayload},
		{"boolean user id", NameNotification, args(`{"message":"x","userId":true}`), ErrMalformedPayload},
		{"negative user id", NameNotification, args(`{"message":"x","userId":-3}`), ErrMalformedPayload},
		{"fractional presence id", NameUserConnected, args(`{"userId":1.5}`), ErrMalformedPayload},
		{"bad timestamp", NameNotification, args(`{"type":"info","message":"x","timestamp":"yesterday"}`), ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.event, tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	for _, s := range []OrderStatus{StatusPending, StatusPreparing, StatusDispatched, StatusDelivered, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if OrderStatus("perdido").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestOutbound(t *testing.T) {
	join := JoinRoom("orders")
	if join.Name != NameJoinRoom || len(join.Args) != 1 || join.Args[0] != "orders" {
		t.Errorf("JoinRoom = %+v", join)
	}

	leave := LeaveRoom("orders")
	if leave.Name != NameLeaveRoom {
		t.Errorf("LeaveRoom = %+v", leave)
	}

	if p := Ping(); p.Name != NamePing || len(p.Args) != 0 {
		t.Errorf("Ping = %+v", p)
	}

	refresh := RequestDataRefresh("orders")
	req, ok := refresh.Args[0].(RefreshRequest)
	if !ok {
		t.Fatalf("refresh arg type = %T", refresh.Args[0])
	}
	if req.Entity != "orders" || req.RequestID == "" {
		t.Errorf("RefreshRequest = %+v", req)
	}
	next := RequestDataRefresh("orders").Args[0].(RefreshRequest).RequestID
	if next == req.RequestID {
		t.Error("request ids should be unique")
	}
	if _, err := ulid.Parse(req.RequestID); err != nil {
		t.Errorf("RequestID %q is not a ULID: %v", req.RequestID, err)
	}

	if UserRoom(12) != "user:12" {
		t.Errorf("UserRoom(12) = %q", UserRoom(12))
	}
}
