package events

import (
	"strconv"

	"github.com/oklog/ulid/v2"
)

// Outbound is an event the client emits.
type Outbound struct {
	Name string
	Args []any
}

// RefreshRequest is the body of request_data_refresh. RequestID is a ULID so
// server logs sort by request time.
type RefreshRequest struct {
	Entity    string `json:"entity"`
	RequestID string `json:"request_id"`
}

// JoinRoom subscribes the connection to a server room.
func JoinRoom(room string) Outbound {
	return Outbound{Name: NameJoinRoom, Args: []any{room}}
}

// LeaveRoom unsubscribes the connection from a server room.
func LeaveRoom(room string) Outbound {
	return Outbound{Name: NameLeaveRoom, Args: []any{room}}
}

// Ping asks the server for an application-level pong.
func Ping() Outbound {
	return Outbound{Name: NamePing}
}

// RequestDataRefresh asks the server to rebroadcast the state of an entity.
func RequestDataRefresh(entity string) Outbound {
	return Outbound{
		Name: NameRequestDataRefresh,
		Args: []any{RefreshRequest{Entity: entity, RequestID: ulid.Make().String()}},
	}
}

// UserRoom is the room the server uses to target one user.
func UserRoom(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
