package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/cache"
	"github.com/aquaice/livesync/internal/events"
	"github.com/aquaice/livesync/internal/notify"
)

// Deps are the collaborators handlers produce side effects on.
type Deps struct {
	Cache     Invalidator
	Presenter notify.Presenter
	Session   *auth.Session
	Counter   CountSink
}

// Dispatcher routes inbound events to their handlers.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	statsMu sync.Mutex
	stats   Stats
}

// New creates a dispatcher with handlers for every documented event.
func New(deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		deps:   deps,
		logger: logger.With("component", "dispatch"),
	}
	d.handlers = map[string]Handler{
		events.NameOrderCreated:       d.typed(d.orderCreated),
		events.NameOrderUpdated:       d.typed(d.orderUpdated),
		events.NameOrderStatusChanged: d.typed(d.orderStatusChanged),
		events.NameOrderDeleted:       d.typed(d.orderDeleted),
		events.NameNotification:       d.typed(d.notification),
		events.NameUserCount:          d.typed(d.userCount),
		events.NameUserConnected:      d.typed(d.userPresence),
		events.NameUserDisconnected:   d.typed(d.userPresence),
	}
	return d
}

// Register binds a handler to name, replacing any existing one.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Names returns the bound event names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the handler bound to name. It never panics and never returns
// an error; outcomes are logged and counted.
func (d *Dispatcher) Dispatch(name string, args []json.RawMessage) {
	d.count(func(s *Stats) { s.Received++ })

	d.mu.RLock()
	h, ok := d.handlers[name]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("ignoring unknown event", "event", name)
		d.count(func(s *Stats) { s.Unknown++ })
		return
	}

	err := d.safeHandle(h, name, args)
	switch {
	case err == nil:
		d.count(func(s *Stats) { s.Dispatched++ })
	case errors.Is(err, ErrSuppressed):
		d.logger.Debug("event suppressed", "event", name)
		d.count(func(s *Stats) { s.Suppressed++ })
	case errors.Is(err, events.ErrMalformedPayload):
		d.logger.Debug("dropping malformed event", "event", name, "error", err)
		d.count(func(s *Stats) { s.Malformed++ })
	default:
		d.logger.Warn("event handler failed", "event", name, "error", err)
		d.count(func(s *Stats) { s.HandlerErrors++ })
	}
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Dispatcher) safeHandle(h Handler, name string, args []json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(name, args)
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.statsMu.Lock()
	fn(&d.stats)
	d.statsMu.Unlock()
}

// typed decodes the payload before calling fn.
func (d *Dispatcher) typed(fn func(events.Event) error) Handler {
	return HandlerFunc(func(name string, args []json.RawMessage) error {
		ev, err := events.Decode(name, args)
		if err != nil {
			return err
		}
		return fn(ev)
	})
}

func (d *Dispatcher) orderCreated(ev events.Event) error {
	e := ev.(events.OrderCreated)
	d.invalidate(cache.OrdersRoot)
	d.show(styleCreated, orDefault(e.Message, msgCreated))
	return nil
}

func (d *Dispatcher) orderUpdated(ev events.Event) error {
	e := ev.(events.OrderUpdated)
	d.invalidate(cache.OrdersRoot)
	d.invalidate(cache.OrderDetail(e.OrderID))
	d.show(styleUpdated, orDefault(e.Message, msgUpdated))
	return nil
}

func (d *Dispatcher) orderStatusChanged(ev events.Event) error {
	e := ev.(events.OrderStatusChanged)
	d.invalidate(cache.OrdersRoot)
	d.invalidate(cache.OrderDetail(e.OrderID))
	if e.TrackingCode != "" {
		d.invalidate(cache.OrderTracking(e.TrackingCode))
	}

	var opts []notify.Option
	if e.Status != "" {
		opts = append(opts, notify.WithTitle(StatusTitle(e.Status)))
	}
	d.show(StatusStyle(e.Status), orDefault(e.Message, msgStatusChanged), opts...)
	return nil
}

func (d *Dispatcher) orderDeleted(ev events.Event) error {
	e := ev.(events.OrderDeleted)
	d.invalidate(cache.OrdersRoot)
	if d.deps.Cache != nil {
		d.deps.Cache.Remove(cache.OrderDetail(e.OrderID))
		if e.TrackingCode != "" {
			d.deps.Cache.Remove(cache.OrderTracking(e.TrackingCode))
		}
	}
	d.show(styleDeleted, orDefault(e.Message, msgDeleted))
	return nil
}

func (d *Dispatcher) notification(ev events.Event) error {
	e := ev.(events.Notification)
	if e.Targeted() {
		current, known := d.deps.Session.UserID()
		if !known || current != *e.UserID {
			return ErrSuppressed
		}
	}

	style := styleNotification
	style.Kind = notify.ParseKind(e.Type)

	var opts []notify.Option
	if e.Title != "" {
		opts = append(opts, notify.WithTitle(e.Title))
	}
	d.show(style, e.Message, opts...)
	return nil
}

func (d *Dispatcher) userCount(ev events.Event) error {
	e := ev.(events.UserCount)
	if d.deps.Counter != nil {
		d.deps.Counter.SetUserCount(e.Count)
	}
	return nil
}

func (d *Dispatcher) userPresence(ev events.Event) error {
	e := ev.(events.UserPresence)
	fallback := msgDisconnected
	if e.Connected {
		fallback = msgConnected
	}
	d.show(stylePresence, orDefault(e.Message, fallback))
	return nil
}

func (d *Dispatcher) invalidate(prefix cache.Key) {
	if d.deps.Cache == nil {
		return
	}
	n := d.deps.Cache.Invalidate(prefix)
	d.count(func(s *Stats) { s.Invalidations++ })
	d.logger.Debug("invalidated cache", "key", prefix.String(), "entries", n)
}

func (d *Dispatcher) show(style Style, message string, opts ...notify.Option) {
	if d.deps.Presenter == nil || message == "" {
		return
	}
	opts = append([]notify.Option{notify.WithIcon(style.Icon)}, opts...)
	d.deps.Presenter.Show(style.Kind, message, opts...)
}
