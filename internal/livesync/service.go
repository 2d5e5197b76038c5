package livesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aquaice/livesync/internal/auth"
	"github.com/aquaice/livesync/internal/cache"
	"github.com/aquaice/livesync/internal/config"
	"github.com/aquaice/livesync/internal/connection"
	"github.com/aquaice/livesync/internal/dispatch"
	"github.com/aquaice/livesync/internal/events"
	"github.com/aquaice/livesync/internal/notify"
	"github.com/aquaice/livesync/internal/poller"
	"github.com/aquaice/livesync/internal/reconnect"
	"github.com/aquaice/livesync/internal/status"
)

var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
)

// Connection toast copy. All connection toasts share one ID so the newest
// replaces the previous one.
const (
	connectionToastID = "connection"

	MsgConnectionLost     = "Conexión perdida con el servidor"
	MsgConnectionRestored = "Conexión restablecida"
	MsgReconnectFailed    = "No se pudo reconectar con el servidor"
	LabelRetry            = "Reintentar"
)

// Service is the realtime client of one running application.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	creds      *auth.Credentials
	session    *auth.Session
	manager    connection.Manager
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	presenter  notify.Presenter
	board      *status.Board
	poller     *poller.Poller // nil when disabled

	mu         sync.Mutex
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	stopPoller context.CancelFunc
	group      *errgroup.Group

	// lossNotified is set once the connection-lost toast was shown for the
	// current outage. Only the event loop touches it.
	lossNotified bool
}

// New builds a service from a validated config.
func New(cfg *config.Config, presenter notify.Presenter, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if presenter == nil {
		presenter = notify.NewLogPresenter(logger)
	}

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger.With("component", "livesync"),
		creds:     creds,
		session:   &auth.Session{},
		presenter: presenter,
		board:     status.NewBoard(cfg.Reconnect.MaxAttempts),
	}
	s.hydrateSession()

	s.cache = cache.New(cache.Config{StaleTime: cfg.Cache.StaleTime}, logger.With("component", "cache"))

	s.manager = connection.NewManager(connection.ManagerConfig{
		ServerURL:      cfg.Server.URL,
		Path:           cfg.Server.Path,
		Reconnect:      cfg.ReconnectEnabled(),
		MaxAttempts:    cfg.Reconnect.MaxAttempts,
		Delay:          cfg.Reconnect.Delay,
		ConnectTimeout: cfg.Reconnect.ConnectTimeout,
		WriteTimeout:   cfg.Transport.WriteTimeout,
		BufferSize:     cfg.Transport.BufferSize,
	}, logger.With("component", "connection"))

	s.dispatcher = dispatch.New(dispatch.Deps{
		Cache:     s.cache,
		Presenter: presenter,
		Session:   s.session,
		Counter:   s.board,
	}, logger)

	if cfg.Cache.OfflinePoll > 0 {
		s.poller = poller.New(poller.Config{Interval: cfg.Cache.OfflinePoll},
			poller.StateFunc(func() bool { return s.board.Snapshot().State == reconnect.Connected }),
			s.cache,
			logger.With("component", "poller"),
		)
	}

	return s, nil
}

// hydrateSession sets the session user from config, else from the token claims.
func (s *Service) hydrateSession() {
	if id := s.cfg.Auth.UserID; id != nil {
		s.session.SetUser(*id)
		return
	}
	id, err := auth.UserFromToken(s.creds.Token)
	if err != nil {
		s.logger.Info("session user unknown, targeted notifications are suppressed", "error", err)
		return
	}
	s.session.SetUser(id)
	s.logger.Debug("session user from token", "user_id", id)
}

// Start runs the event loop and connects. A failed first connect is not an
// error: reconnection continues in the background.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)
	s.cancel = cancel
	s.group = g
	g.Go(func() error { return s.loop(gctx) })

	pollCtx, stopPoller := context.WithCancel(gctx)
	s.stopPoller = stopPoller
	if s.poller != nil {
		g.Go(func() error { return s.poller.Run(pollCtx) })
	}
	s.mu.Unlock()

	s.logger.Info("livesync started",
		"server", s.cfg.Server.URL,
		"rooms", s.cfg.Rooms,
		"max_attempts", s.cfg.Reconnect.MaxAttempts,
	)

	if err := s.manager.Connect(ctx, s.creds); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("initial connect failed", "error", err)
	}
	return nil
}

// Stop disconnects and waits for the event loop to drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	g, cancel, stopPoller := s.group, s.cancel, s.stopPoller
	s.mu.Unlock()

	s.logger.Info("stopping livesync")

	// Closing the manager closes its events channel, which ends the loop.
	s.manager.Close()
	stopPoller()
	s.cache.Close()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
		s.logger.Info("livesync stopped")
	case <-ctx.Done():
		s.logger.Warn("livesync stop timed out")
		err = ctx.Err()
	}
	cancel()
	return err
}

// Disconnect closes the connection deliberately. No reconnection follows.
func (s *Service) Disconnect() error {
	return s.manager.Disconnect()
}

// Reconnect starts a manual reconnection.
func (s *Service) Reconnect(ctx context.Context) error {
	return s.manager.Reconnect(ctx)
}

// Emit sends an outbound event.
func (s *Service) Emit(ev events.Outbound) error {
	return s.manager.Emit(ev)
}

// State returns the connection state as the manager sees it. The board
// catches up once the event loop has handled the transition.
func (s *Service) State() reconnect.State { return s.manager.State() }

// Credentials returns the bearer credentials the service connects with.
func (s *Service) Credentials() *auth.Credentials { return s.creds }

// Board returns the status board.
func (s *Service) Board() *status.Board { return s.board }

// Cache returns the query cache.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Session returns the session identity.
func (s *Service) Session() *auth.Session { return s.session }

// Stats returns dispatcher statistics.
func (s *Service) Stats() dispatch.Stats { return s.dispatcher.Stats() }

// loop consumes manager events until the channel closes.
func (s *Service) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.manager.Events():
			if !ok {
				return nil
			}
			s.handle(ev)
		}
	}
}

func (s *Service) handle(ev connection.Event) {
	if ev.Type == connection.EventMessage {
		s.dispatcher.Dispatch(ev.Name, ev.Args)
		return
	}

	s.board.SetConnection(ev.State, ev.Attempt)

	switch ev.Type {
	case connection.EventConnect:
		s.onConnect(ev)

	case connection.EventDisconnect:
		if ev.Reason == connection.ReasonClientDisconnect {
			return
		}
		s.notifyLoss()

	case connection.EventConnectError:
		s.notifyLoss()

	case connection.EventReconnectFailed:
		s.presenter.Show(notify.KindError, MsgReconnectFailed,
			notify.WithID(connectionToastID),
			notify.WithDuration(0),
			notify.WithAction(LabelRetry, s.retry),
		)
	}
}

func (s *Service) onConnect(ev connection.Event) {
	if ev.Reconnected || s.lossNotified {
		s.presenter.Show(notify.KindSuccess, MsgConnectionRestored, notify.WithID(connectionToastID))
		// Events pushed while offline were missed.
		for _, root := range cache.RefreshRoots() {
			s.cache.Invalidate(root)
		}
	}
	s.lossNotified = false

	for _, room := range s.rooms() {
		if err := s.manager.Emit(events.JoinRoom(room)); err != nil {
			s.logger.Warn("join room failed", "room", room, "error", err)
			continue
		}
		s.logger.Debug("joined room", "room", room)
	}
}

// rooms returns the configured rooms plus the session user's room.
func (s *Service) rooms() []string {
	rooms := append([]string(nil), s.cfg.Rooms...)
	if id, ok := s.session.UserID(); ok {
		rooms = append(rooms, events.UserRoom(id))
	}
	return rooms
}

func (s *Service) notifyLoss() {
	if s.lossNotified {
		return
	}
	s.lossNotified = true
	s.presenter.Show(notify.KindError, MsgConnectionLost, notify.WithID(connectionToastID))
}

// retry is the action of the exhausted toast.
func (s *Service) retry() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Reconnect.ConnectTimeout)
		defer cancel()
		if err := s.Reconnect(ctx); err != nil {
			s.logger.Warn("manual reconnect failed", "error", err)
		}
	}()
}
