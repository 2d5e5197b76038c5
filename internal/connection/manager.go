package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/events"
	"github.com/aquaice/livesync/internal/reconnect"
	"github.com/aquaice/livesync/internal/socketio"
)

// Manager orchestrates the realtime session and its reconnection.
type Manager interface {
	// Connect opens the session and waits for the first outcome.
	// It is a no-op while connected or while a connection is in progress.
	Connect(ctx context.Context, creds *auth.Credentials) error

	// Disconnect closes the session deliberately. No reconnection follows.
	Disconnect() error

	// Reconnect starts a manual reconnection and waits for the first attempt.
	Reconnect(ctx context.Context) error

	// Emit sends an outbound event. It fails with ErrNotConnected while offline.
	Emit(ev events.Outbound) error

	// State returns the reconnection state.
	State() reconnect.State

	// Attempts returns the reconnect attempt counter.
	Attempts() int

	// SID returns the current session id, empty while offline.
	SID() string

	// Events returns lifecycle and message events in transport order.
	Events() <-chan Event

	// Close disconnects and releases the manager. Events is closed afterwards.
	Close() error
}

// closeDrainTimeout bounds how long Close waits for queued events to be read.
const closeDrainTimeout = 2 * time.Second

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	machine *reconnect.Machine
	creds   *auth.Credentials
	client  Client
	closed  bool

	// gen identifies the current run; results from older runs are discarded.
	gen     uint64
	stopRun context.CancelFunc

	// Events are queued under mu and forwarded by pump.
	queue    *queue[Event]
	events   chan Event
	pumpDone chan struct{}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &manager{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		machine:  reconnect.New(cfg.MaxAttempts, cfg.Reconnect),
		queue:    newQueue[Event](cfg.BufferSize),
		events:   make(chan Event, cfg.BufferSize),
		pumpDone: make(chan struct{}),
	}
	go m.pump()

	return m
}

// Connect opens the session.
func (m *manager) Connect(ctx context.Context, creds *auth.Credentials) error {
	if creds == nil {
		return ErrNoCredentials
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	switch m.machine.State() {
	case reconnect.Connected, reconnect.Connecting, reconnect.Reconnecting:
		m.mu.Unlock()
		m.logger.Debug("connect ignored", "state", m.State())
		return nil
	}

	tr, err := m.machine.Connect()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.creds = creds
	result := m.startRunLocked(false)
	m.mu.Unlock()

	m.logger.Info("connecting", "server", m.cfg.ServerURL, "from", tr.From)

	return m.wait(ctx, result)
}

// Disconnect closes the session without reconnecting.
func (m *manager) Disconnect() error {
	m.mu.Lock()
	m.gen++
	if m.stopRun != nil {
		m.stopRun()
		m.stopRun = nil
	}
	client := m.client
	m.client = nil

	tr := m.machine.ClientDisconnect()
	if tr.Changed() {
		m.emitLocked(Event{Type: EventDisconnect, Reason: ReasonClientDisconnect})
	}
	m.mu.Unlock()

	if client != nil {
		if err := client.Close(true); err != nil {
			m.logger.Debug("close after disconnect", "error", err)
		}
	}

	if tr.Changed() {
		m.logger.Info("disconnected", "reason", ReasonClientDisconnect, "from", tr.From)
	}

	return nil
}

// Reconnect re-arms reconnection and attempts immediately.
func (m *manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.creds == nil {
		m.mu.Unlock()
		return ErrNoCredentials
	}

	tr, err := m.machine.ManualReconnect()
	if err != nil {
		// Already connected or connecting.
		m.mu.Unlock()
		m.logger.Debug("manual reconnect ignored", "error", err)
		return nil
	}
	result := m.startRunLocked(true)
	m.mu.Unlock()

	m.logger.Info("manual reconnect", "from", tr.From, "attempts", tr.Attempt)

	return m.wait(ctx, result)
}

// Emit sends an outbound event on the live session.
func (m *manager) Emit(ev events.Outbound) error {
	m.mu.Lock()
	client := m.client
	state := m.machine.State()
	m.mu.Unlock()

	if state != reconnect.Connected || client == nil {
		return ErrNotConnected
	}

	if err := client.Emit(ev.Name, ev.Args...); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Name, err)
	}

	m.logger.Debug("emitted", "event", ev.Name)
	return nil
}

// State returns the reconnection state.
func (m *manager) State() reconnect.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.State()
}

// Attempts returns the reconnect attempt counter.
func (m *manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Attempts()
}

// SID returns the session id of the live client.
func (m *manager) SID() string {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return ""
	}
	return client.SID()
}

// Events returns the ordered event channel.
func (m *manager) Events() <-chan Event {
	return m.events
}

// Close disconnects and stops all goroutines.
func (m *manager) Close() error {
	m.Disconnect()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.stopRun != nil {
		m.stopRun()
		m.stopRun = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.queue.close()

	// Let a slow consumer receive the final disconnect before giving up on it.
	select {
	case <-m.pumpDone:
	case <-time.After(closeDrainTimeout):
		m.logger.Warn("dropping undelivered events on close", "pending", m.queue.len())
	}
	m.cancel()
	<-m.pumpDone

	m.logger.Debug("connection manager closed")
	return nil
}

// startRunLocked cancels the current run and starts a new one.
// The returned channel receives the outcome of the first dial.
func (m *manager) startRunLocked(manual bool) <-chan error {
	m.gen++
	if m.stopRun != nil {
		m.stopRun()
	}

	ctx, stop := context.WithCancel(m.ctx)
	m.stopRun = stop

	result := make(chan error, 1)
	m.wg.Add(1)
	go m.run(ctx, m.gen, manual, result)

	return result
}

func (m *manager) wait(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one connection lifetime: the first dial, the session, and
// reconnection after drops until connected, exhausted or cancelled.
func (m *manager) run(ctx context.Context, gen uint64, manual bool, result chan<- error) {
	defer m.wg.Done()

	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			result <- err
		}
	}
	defer report(ErrNotConnected)

	initial := !manual // the first dial of Connect is not a reconnect attempt
	immediate := true  // no delay before the first dial of a run

	for {
		if !initial {
			if !immediate && !m.sleep(ctx, m.cfg.Delay) {
				return
			}
			if !m.beginAttempt(gen) {
				return
			}
		}
		immediate = false

		client, err := m.dial(ctx)
		if ctx.Err() != nil {
			if client != nil {
				client.Close(false)
			}
			return
		}
		if err != nil {
			// Record the failure before the caller of Connect sees it.
			retry := m.onConnectFailed(gen, initial, err)
			report(err)
			if !retry {
				return
			}
			initial = false
			continue
		}

		if !m.onConnected(gen, client) {
			client.Close(false)
			return
		}
		report(nil)

		reason, dropErr := m.session(ctx, gen, client)
		client.Close(false)
		if ctx.Err() != nil {
			return
		}
		if !m.onDropped(gen, reason, dropErr) {
			return
		}
		initial = false
	}
}

func (m *manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// dial opens a new transport session bounded by the connect timeout.
func (m *manager) dial(ctx context.Context) (Client, error) {
	url, err := socketio.HandshakeURL(m.cfg.ServerURL, m.cfg.Path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	client := NewClient(ClientConfig{
		URL:              url,
		HandshakeTimeout: m.cfg.ConnectTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger)

	if err := client.Connect(dialCtx, creds); err != nil {
		client.Close(false)
		return nil, err
	}

	return client, nil
}

// session forwards packets until the transport ends and returns why it ended.
func (m *manager) session(ctx context.Context, gen uint64, client Client) (Reason, error) {
	packets := client.Packets()

recv:
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case p, ok := <-packets:
			if !ok {
				break recv
			}
			m.deliver(gen, p)
		}
	}

	// The client reports the drop before closing its packet channel.
	select {
	case err := <-client.Errors():
		var drop *DropError
		if errors.As(err, &drop) {
			return drop.Reason, drop.Err
		}
		return ReasonTransportError, err
	default:
		return ReasonTransportClose, nil
	}
}

func (m *manager) deliver(gen uint64, p TimestampedPacket) {
	if p.Packet.Namespace != "/" {
		m.logger.Debug("ignoring packet for namespace", "namespace", p.Packet.Namespace)
		return
	}

	name, args, err := p.Packet.Event()
	if err != nil {
		m.logger.Debug("dropping malformed event packet", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.emitLocked(Event{Type: EventMessage, Name: name, Args: args, ReceivedAt: p.ReceivedAt})
}

func (m *manager) beginAttempt(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	tr, err := m.machine.Attempt()
	if err != nil {
		return false
	}

	m.logger.Info("reconnect attempt",
		"attempt", tr.Attempt,
		"max_attempts", m.machine.MaxAttempts(),
	)
	m.emitLocked(Event{Type: EventReconnectAttempt})
	return true
}

// onConnectFailed records a failed dial and reports whether to keep retrying.
func (m *manager) onConnectFailed(gen uint64, initial bool, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}

	var tr reconnect.Transition
	if initial {
		tr, _ = m.machine.ConnectFailed()
	} else {
		tr, _ = m.machine.AttemptFailed()
	}

	m.logger.Warn("connect failed",
		"error", err,
		"attempt", tr.Attempt,
		"state", tr.To,
	)
	m.emitLocked(Event{Type: EventConnectError, Err: err})

	if !initial {
		m.emitLocked(Event{Type: EventReconnectError, Err: err})
	}
	if tr.To == reconnect.Exhausted {
		m.logger.Error("reconnection exhausted", "attempts", tr.Attempt)
		m.emitLocked(Event{Type: EventReconnectFailed})
		return false
	}
	if initial {
		return tr.To == reconnect.Reconnecting
	}
	return m.machine.CanRetry()
}

func (m *manager) onConnected(gen uint64, client Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	tr, err := m.machine.Connected()
	if err != nil {
		return false
	}
	m.client = client

	reconnected := tr.From == reconnect.Reconnecting
	m.logger.Info("connected", "sid", client.SID(), "reconnected", reconnected)
	m.emitLocked(Event{Type: EventConnect, Reconnected: reconnected})
	return true
}

// onDropped records the loss of a live session and reports whether to retry.
func (m *manager) onDropped(gen uint64, reason Reason, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	m.client = nil

	tr, terr := m.machine.Dropped()
	if terr != nil {
		return false
	}

	m.logger.Warn("connection lost", "reason", reason, "error", err, "state", tr.To)
	m.emitLocked(Event{Type: EventDisconnect, Reason: reason, Err: err})
	return tr.To == reconnect.Reconnecting
}

// emitLocked queues an event stamped with the current machine state.
func (m *manager) emitLocked(ev Event) {
	ev.State = m.machine.State()
	ev.Attempt = m.machine.Attempts()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	m.queue.push(ev)
}

// pump forwards queued events to the events channel.
func (m *manager) pump() {
	defer close(m.pumpDone)
	defer close(m.events)

	for {
		ev, ok := m.queue.pop()
		if !ok {
			return
		}

		select {
		case m.events <- ev:
			continue
		default:
		}

		select {
		case m.events <- ev:
		case <-m.ctx.Done():
			return
		}
	}
}
