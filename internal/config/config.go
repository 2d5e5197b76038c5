package config

import "time"

// Config is the root configuration for a livesync client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Transport TransportConfig `yaml:"transport"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
	Rooms     []string        `yaml:"rooms"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the realtime and REST endpoints.
type ServerConfig struct {
	URL     string `yaml:"url"`      // Socket.IO server, e.g. https://api.example.com
	Path    string `yaml:"path"`     // Socket.IO path, default "socket.io"
	RestURL string `yaml:"rest_url"` // REST API base, e.g. https://api.example.com/api
}

// AuthConfig holds the bearer credential and session identity.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	UserID    *int64 `yaml:"user_id"` // nil until the session is known
}

// ReconnectConfig controls the transport's built-in reconnection.
type ReconnectConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Delay          time.Duration `yaml:"delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TransportConfig holds WebSocket transport settings.
type TransportConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	StaleTime   time.Duration `yaml:"stale_time"`
	OfflinePoll time.Duration `yaml:"offline_poll"` // refresh interval while disconnected, < 0 disables
}

// APIConfig holds REST client settings. The base URL is server.rest_url.
type APIConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"` // < 0 disables retries
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ReconnectEnabled reports whether automatic reconnection is on.
func (c *Config) ReconnectEnabled() bool {
	return c.Reconnect.Enabled == nil || *c.Reconnect.Enabled
}
