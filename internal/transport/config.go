package transport

import (
	"time"

	"github.com/danmuck/simview/internal/protocol/frame"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection defaults.
//
// ConnectTimeout bounds only the connect attempt; zero waits until the dial
// context ends. Reads have no timeout.
type Config struct {
	ConnectTimeout time.Duration
	PeekWait       time.Duration
	Limits         frame.Limits
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		PeekWait:       time.Millisecond,
		Limits:         frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset fields. ConnectTimeout is left as is: zero means
// no bound.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PeekWait <= 0 {
		c.PeekWait = def.PeekWait
	}
	c.Limits = c.Limits.WithDefaults()
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
