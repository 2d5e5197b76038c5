package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aquaice/livesync/internal/cache"
)

// StateSource reports whether server events are flowing.
type StateSource interface {
	Online() bool
}

// StateFunc is a function adapter for StateSource.
type StateFunc func() bool

func (f StateFunc) Online() bool {
	return f()
}

// Invalidator marks cached queries stale.
type Invalidator interface {
	Invalidate(prefix cache.Key) int
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 30s)
	Prefixes []cache.Key   // Keys refreshed while offline (default: cache.RefreshRoots)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Prefixes: cache.RefreshRoots(),
	}
}

// Stats contains poller counters.
type Stats struct {
	Polls   int64 // ticks that invalidated
	Skipped int64 // ticks skipped while online
}

// Poller refreshes cached views while the realtime connection is down.
type Poller struct {
	cfg    Config
	source StateSource
	target Invalidator
	logger *slog.Logger

	polls   atomic.Int64
	skipped atomic.Int64
}

// New creates a new Poller.
func New(cfg Config, source StateSource, target Invalidator, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = def.Prefixes
	}
	return &Poller{
		cfg:    cfg,
		source: source,
		target: target,
		logger: logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("offline poller started", "interval", p.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("offline poller stopped")
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll runs one cycle and reports whether it invalidated.
func (p *Poller) Poll() bool {
	if p.source.Online() {
		p.skipped.Add(1)
		return false
	}

	total := 0
	for _, prefix := range p.cfg.Prefixes {
		total += p.target.Invalidate(prefix)
	}
	p.polls.Add(1)

	p.logger.Debug("offline poll",
		"prefixes", len(p.cfg.Prefixes),
		"entries", total,
	)
	return true
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:   p.polls.Load(),
		Skipped: p.skipped.Load(),
	}
}
