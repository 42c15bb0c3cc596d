package stream

import (
	"fmt"
	"time"
)

// Config holds the live-feed connection settings.
type Config struct {
	URL              string        `json:"url" validate:"required,url"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`

	ReadBufferSize  int   `json:"read_buffer_size"`
	WriteBufferSize int   `json:"write_buffer_size"`
	MaxMessageSize  int64 `json:"max_message_size"`

	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`

	EnableReconnect bool          `json:"enable_reconnect"`
	ReconnectDelay  time.Duration `json:"reconnect_delay"`
	MaxReconnects   int           `json:"max_reconnects"`

	// Outbound subscribe/unsubscribe messages per refill window.
	RateLimitCapacity int           `json:"rate_limit_capacity"`
	RateLimitRefill   time.Duration `json:"rate_limit_refill"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ConnectTimeout:    30 * time.Second,
		HandshakeTimeout:  45 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxMessageSize:    1024 * 1024,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		EnableReconnect:   true,
		ReconnectDelay:    time.Second,
		MaxReconnects:     10,
		RateLimitCapacity: 100,
		RateLimitRefill:   time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL is required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}
	if c.EnableReconnect && c.MaxReconnects <= 0 {
		return fmt.Errorf("max reconnects must be positive when reconnection is enabled")
	}
	return nil
}
