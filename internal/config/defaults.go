package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPath           = "socket.io"
	DefaultMaxAttempts    = 5
	DefaultReconnectDelay = 1 * time.Second
	DefaultConnectTimeout = 20 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultBufferSize     = 256
	DefaultStaleTime      = 30 * time.Second
	DefaultOfflinePoll    = 30 * time.Second
	DefaultAPITimeout     = 30 * time.Second
	DefaultAPIMaxRetries  = 3
	DefaultAPIBackoff     = 1 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// DefaultRooms are joined after every successful connect.
var DefaultRooms = []string{"orders"}

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.RestURL == "" && c.Server.URL != "" {
		c.Server.RestURL = c.Server.URL + "/api"
	}

	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Reconnect.ConnectTimeout == 0 {
		c.Reconnect.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	if c.Cache.StaleTime == 0 {
		c.Cache.StaleTime = DefaultStaleTime
	}
	if c.Cache.OfflinePoll == 0 {
		c.Cache.OfflinePoll = DefaultOfflinePoll
	}

	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultAPIMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultAPIBackoff
	}

	if c.Rooms == nil {
		c.Rooms = append([]string(nil), DefaultRooms...)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
