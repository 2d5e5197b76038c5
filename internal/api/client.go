package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aquaice/livesync/internal/auth"
)

// Config configures the orders REST client.
type Config struct {
	BaseURL      string        // REST base, e.g. https://api.example.com/api
	Timeout      time.Duration // per request (default: 30s)
	MaxRetries   int           // retries after the first try (default: 3, < 0 disables)
	RetryBackoff time.Duration // first retry delay, doubled per retry (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

// Client reads orders from the REST API with the session's bearer token.
type Client struct {
	cfg        Config
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. creds may be nil for anonymous requests.
func NewClient(cfg Config, creds *auth.Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = def.MaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}

	return &Client{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}
