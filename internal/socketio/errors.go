package socketio

import (
	"encoding/json"
	"errors"
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrInvalidPacket = errors.New("invalid packet format")
	ErrNotEvent      = errors.New("packet is not an event")
)

// ConnectError is the server's rejection of a namespace connect (packet 44).
type ConnectError struct {
	Message string
	Data    json.RawMessage
}

func (e *ConnectError) Error() string {
	if e.Message == "" {
		return "connect error"
	}
	return "connect error: " + e.Message
}

// ParseConnectError decodes the body of a connect_error packet.
// Servers send either {"message": "...", "data": ...} or a bare string.
func ParseConnectError(data []byte) *ConnectError {
	var body struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		return &ConnectError{Message: body.Message, Data: body.Data}
	}

	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		return &ConnectError{Message: msg}
	}

	return &ConnectError{Message: string(data)}
}
