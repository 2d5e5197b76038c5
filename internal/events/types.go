package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound event names.
const (
	NameOrderCreated       = "order:created"
	NameOrderUpdated       = "order:updated"
	NameOrderStatusChanged = "order:status_changed"
	NameOrderDeleted       = "order:deleted"
	NameNotification       = "notification"
	NameUserCount          = "user_count"
	NameUserConnected      = "user:connected"
	NameUserDisconnected   = "user:disconnected"
)

// Outbound event names.
const (
	NameJoinRoom           = "join_room"
	NameLeaveRoom          = "leave_room"
	NamePing               = "ping"
	NameRequestDataRefresh = "request_data_refresh"
)

// Names lists every documented inbound event.
var Names = []string{
	NameOrderCreated,
	NameOrderUpdated,
	NameOrderStatusChanged,
	NameOrderDeleted,
	NameNotification,
	NameUserCount,
	NameUserConnected,
	NameUserDisconnected,
}

// Event is a decoded server event.
type Event interface {
	EventName() string
}

// OrderStatus is the delivery state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pendiente"
	StatusPreparing  OrderStatus = "preparando"
	StatusDispatched OrderStatus = "despachado"
	StatusDelivered  OrderStatus = "entregado"
	StatusCancelled  OrderStatus = "cancelado"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusDispatched, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// OrderItem is a product line of an order.
type OrderItem struct {
	ID          int64  `json:"id,omitempty"`
	OrderID     int64  `json:"order_id,omitempty"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	Notes       string `json:"notes,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Size        string `json:"size,omitempty"`
}

// Order mirrors the order resource of the REST API.
type Order struct {
	ID                    int64       `json:"id,omitempty"`
	TrackingCode          string      `json:"tracking_code,omitempty"`
	CustomerID            *int64      `json:"customer_id,omitempty"`
	CustomerName          string      `json:"customer_name"`
	CustomerPhone         string      `json:"customer_phone"`
	CustomerAddress       string      `json:"customer_address"`
	OrderDate             string      `json:"order_date,omitempty"`
	ScheduledDeliveryDate string      `json:"scheduled_delivery_date,omitempty"`
	DeliveryTimeSlot      *string     `json:"delivery_time_slot,omitempty"`
	Status                OrderStatus `json:"order_status,omitempty"`
	DeliveryDriverID      *int64      `json:"delivery_driver_id,omitempty"`
	VehicleID             *int64      `json:"vehicle_id,omitempty"`
	DriverName            string      `json:"driver_name,omitempty"`
	VehicleTag            string      `json:"vehicle_tag,omitempty"`
	DeliveryNotes         *string     `json:"delivery_notes,omitempty"`
	Notes                 *string     `json:"notes,omitempty"`
	CreatedBy             int64       `json:"created_by,omitempty"`
	Items                 []OrderItem `json:"items,omitempty"`
}

// User identifies a connected application user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Timestamp accepts unix seconds, unix milliseconds, or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e11

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	if n >= millisThreshold {
		t.Time = time.UnixMilli(int64(n))
	} else {
		t.Time = time.Unix(int64(n), 0)
	}
	return nil
}

// MarshalJSON encodes the timestamp as unix milliseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// OrderCreated is pushed when an order is created.
type OrderCreated struct {
	Order     Order     `json:"order"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

// OrderUpdated is pushed when an order's fields change.
type OrderUpdated struct {
	OrderID   int64     `json:"-"` // orderId, or order.id
	Order     Order     `json:"order"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

// OrderStatusChanged is pushed when an order moves to a new status.
type OrderStatusChanged struct {
	OrderID      int64       `json:"-"` // orderId, or order.id
	Status       OrderStatus `json:"status"`
	Message      string      `json:"message"`
	TrackingCode string      `json:"trackingCode"`
	Timestamp    Timestamp   `json:"timestamp"`
}

// OrderDeleted is pushed when an order is removed.
type OrderDeleted struct {
	OrderID      int64     `json:"-"` // orderId, or order.id
	TrackingCode string    `json:"trackingCode"`
	Message      string    `json:"message"`
	Timestamp    Timestamp `json:"timestamp"`
}

// Notification is a generic message, optionally targeted at one user.
type Notification struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Title     string    `json:"title,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	UserID    *int64    `json:"-"` // number or numeric string on the wire
}

// Targeted reports whether the notification names a recipient.
func (n Notification) Targeted() bool {
	return n.UserID != nil
}

// UserCount is the number of connected users.
type UserCount struct {
	Count int
}

// UserPresence is pushed when a user connects or disconnects.
type UserPresence struct {
	Connected bool      `json:"-"`
	User      *User     `json:"user,omitempty"`
	UserID    *int64    `json:"-"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

// ID returns the user id from either payload shape.
func (p UserPresence) ID() (int64, bool) {
	if p.User != nil {
		return p.User.ID, true
	}
	if p.UserID != nil {
		return *p.UserID, true
	}
	return 0, false
}

func (OrderCreated) EventName() string       { return NameOrderCreated }
func (OrderUpdated) EventName() string       { return NameOrderUpdated }
func (OrderStatusChanged) EventName() string { return NameOrderStatusChanged }
func (OrderDeleted) EventName() string       { return NameOrderDeleted }
func (Notification) EventName() string       { return NameNotification }
func (UserCount) EventName() string          { return NameUserCount }

func (p UserPresence) EventName() string {
	if p.Connected {
		return NameUserConnected
	}
	return NameUserDisconnected
}
