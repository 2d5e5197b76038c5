package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/aquaice/livesync/internal/cache"
)

// ErrSuppressed is returned by a handler that deliberately produced no effect.
var ErrSuppressed = errors.New("event suppressed")

// Handler handles the arguments of one named event.
type Handler interface {
	Handle(name string, args []json.RawMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(name string, args []json.RawMessage) error

// Handle calls f.
func (f HandlerFunc) Handle(name string, args []json.RawMessage) error {
	return f(name, args)
}

// Invalidator is the cache capability handlers depend on.
type Invalidator interface {
	// Invalidate marks prefix-matched entries stale and refetches watched ones.
	Invalidate(prefix cache.Key) int

	// Remove drops prefix-matched entries.
	Remove(prefix cache.Key) int
}

// CountSink receives the connected user count.
type CountSink interface {
	SetUserCount(n int)
}

// Stats contains dispatcher counters.
type Stats struct {
	Received      int64
	Dispatched    int64
	Unknown       int64
	Malformed     int64
	Suppressed    int64
	HandlerErrors int64
	Invalidations int64
}
