package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnknownEvent is returned for names outside the documented contract.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedPayload is returned when a payload does not match its event's shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Decode converts the arguments of a Socket.IO event into a typed Event.
// Only the first argument is considered.
func Decode(name string, args []json.RawMessage) (Event, error) {
	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}

	switch name {
	case NameOrderCreated:
		var ev OrderCreated
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case NameOrderUpdated:
		var ev OrderUpdated
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		id, err := orderID(name, payload)
		if err != nil {
			return nil, err
		}
		ev.OrderID = id
		return ev, nil

	case NameOrderStatusChanged:
		var ev OrderStatusChanged
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		id, err := orderID(name, payload)
		if err != nil {
			return nil, err
		}
		ev.OrderID = id
		return ev, nil

	case NameOrderDeleted:
		var ev OrderDeleted
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		id, err := orderID(name, payload)
		if err != nil {
			return nil, err
		}
		ev.OrderID = id
		return ev, nil

	case NameNotification:
		var ev Notification
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		id, err := optionalUserID(name, payload)
		if err != nil {
			return nil, err
		}
		ev.UserID = id
		return ev, nil

	case NameUserCount:
		var n int
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %s is negative", ErrMalformedPayload, name)
		}
		return UserCount{Count: n}, nil

	case NameUserConnected, NameUserDisconnected:
		var ev UserPresence
		if err := decodeObject(name, payload, &ev); err != nil {
			return nil, err
		}
		ev.Connected = name == NameUserConnected
		id, err := optionalUserID(name, payload)
		if err != nil {
			return nil, err
		}
		ev.UserID = id
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

// orderID reads the order id from "orderId", or from "order.id" when absent.
func orderID(name string, payload []byte) (int64, error) {
	for _, path := range []string{"orderId", "order.id"} {
		id, ok, err := intField(name, payload, path)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if id <= 0 {
			return 0, fmt.Errorf("%w: %s %s must be positive", ErrMalformedPayload, name, path)
		}
		return id, nil
	}

	return 0, fmt.Errorf("%w: %s without orderId", ErrMalformedPayload, name)
}

// optionalUserID reads "userId". Absent or null means untargeted; 0 is a user.
func optionalUserID(name string, payload []byte) (*int64, error) {
	id, ok, err := intField(name, payload, "userId")
	if err != nil || !ok {
		return nil, err
	}
	if id < 0 {
		return nil, fmt.Errorf("%w: %s userId must not be negative", ErrMalformedPayload, name)
	}
	return &id, nil
}

// intField reads an integer id at path. Ids arrive as numbers or numeric
// strings depending on the emitter. A missing or null field is not found.
func intField(name string, payload []byte, path string) (int64, bool, error) {
	r := gjson.GetBytes(payload, path)
	if !r.Exists() || r.Type == gjson.Null {
		return 0, false, nil
	}

	switch r.Type {
	case gjson.Number:
		if r.Num != float64(int64(r.Num)) {
			return 0, false, fmt.Errorf("%w: %s %s is not an integer", ErrMalformedPayload, name, path)
		}
		return int64(r.Num), true, nil
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(r.Str), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s %s %q", ErrMalformedPayload, name, path, r.Str)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%w: %s %s has type %s", ErrMalformedPayload, name, path, r.Type)
}

// decodeObject requires payload to be a JSON object.
func decodeObject(name string, payload json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: %s payload must be an object", ErrMalformedPayload, name)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
	}
	return nil
}
