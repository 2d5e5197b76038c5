package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquaice/livesync/internal/api"
	"github.com/aquaice/livesync/internal/cache"
	"github.com/aquaice/livesync/internal/events"
	"github.com/aquaice/livesync/internal/livesync"
	"github.com/aquaice/livesync/internal/notify"
	"github.com/aquaice/livesync/internal/version"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	HealthAddr string
	Status     string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and follow order events",
		Long: `Connect to the orders server and keep the order list and stats views fresh.

Order events refresh the watched views and are logged as notifications.
The connection is re-established automatically when it drops.

Example:
  livesync watch
  livesync watch --config ./livesync.yaml --status pendiente --health-addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HealthAddr, "health-addr", "", "serve connection health on this address (disabled when empty)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only watch orders in this status")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	slog.SetDefault(logger)

	logger.Info("starting livesync",
		"version", version.Version,
		"commit", version.Commit,
		"config", opts.ConfigPath,
	)

	filter := api.OrderFilter{Status: events.OrderStatus(opts.Status)}
	if opts.Status != "" && !filter.Status.Valid() {
		return errors.New("unknown order status " + opts.Status)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	toasts := notify.NewStack(notify.DefaultMaxVisible)
	presenter := notify.Fanout{notify.NewLogPresenter(logger.With("component", "notify")), toasts}

	svc, err := livesync.New(cfg, presenter, logger)
	if err != nil {
		return err
	}

	client := api.NewClient(api.Config{
		BaseURL:      cfg.Server.RestURL,
		Timeout:      cfg.API.Timeout,
		MaxRetries:   cfg.API.MaxRetries,
		RetryBackoff: cfg.API.RetryBackoff,
	}, svc.Credentials(), logger.With("component", "api"))

	stopList := svc.Cache().Watch(cache.OrderList(filter), client.OrderListFetcher(filter), func(s cache.Snapshot) {
		logSnapshot(logger, "orders", s)
	})
	defer stopList()
	stopStats := svc.Cache().Watch(cache.OrderStats(), client.OrderStatsFetcher(), func(s cache.Snapshot) {
		logSnapshot(logger, "stats", s)
	})
	defer stopStats()

	var health *http.Server
	if opts.HealthAddr != "" {
		health = &http.Server{
			Addr:    opts.HealthAddr,
			Handler: newHealthHandler(svc, toasts),
		}
		go func() {
			logger.Info("starting health server", "addr", opts.HealthAddr)
			if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	// SIGHUP is the manual retry once reconnection gave up.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go func() {
		for {
			select {
			case <-hupCh:
				logger.Info("manual reconnect requested", "signal", "SIGHUP")
				if err := svc.Reconnect(ctx); err != nil {
					logger.Warn("manual reconnect failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("livesync running", "rooms", cfg.Rooms)
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if health != nil {
		health.Shutdown(shutdownCtx)
	}
	return svc.Stop(shutdownCtx)
}

func logSnapshot(logger *slog.Logger, view string, s cache.Snapshot) {
	if s.Err != nil {
		logger.Warn("refresh failed", "view", view, "error", s.Err)
		return
	}

	switch v := s.Data.(type) {
	case *api.OrdersPage:
		logger.Info("orders refreshed", "view", view, "count", len(v.Orders), "total", v.Pagination.Total)
	case *api.OrderStats:
		logger.Info("stats refreshed", "view", view,
			"total", v.Total,
			"pending", v.Pending,
			"dispatched", v.Dispatched,
			"delivered", v.Delivered,
		)
	default:
		logger.Debug("view refreshed", "view", view)
	}
}
