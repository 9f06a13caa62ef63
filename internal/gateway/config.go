// ABOUTME: Timing and transport knobs for the gateway session engine
// ABOUTME: Defaults match the platform's fixed six-second handshake and heartbeat

package gateway

import (
	"time"

	"github.com/2389/kook-gateway/internal/heartbeat"
)

// DefaultHandshakeTimeout is the ceiling on WaitHandshake, measured from
// connect completion.
const DefaultHandshakeTimeout = 6 * time.Second

// Config controls one Engine.
type Config struct {
	// Compress requests zlib-compressed frames from discovery.
	Compress          bool
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the platform defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  DefaultHandshakeTimeout,
		HeartbeatInterval: heartbeat.DefaultInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeat.DefaultInterval
	}
	return c
}
