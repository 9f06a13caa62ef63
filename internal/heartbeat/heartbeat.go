// ABOUTME: Heartbeat decision policy for an established gateway session
// ABOUTME: Counts ticks since the last pong and decides between wait, ping, and timeout

// Package heartbeat decides when the gateway session pings and when it gives
// up on a silent connection. It holds no timers; the session engine feeds it
// ticks and pongs.
package heartbeat

import "time"

// DefaultInterval is the fixed tick period.
const DefaultInterval = 6 * time.Second

// PingTick is the tick count at which the single ping is sent. Counts below it
// are the grace period; counts above it are a timeout.
const PingTick = 4

// Action is what the session should do on a tick.
type Action int

const (
	Wait Action = iota
	SendPing
	Timeout
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case SendPing:
		return "send_ping"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Decide maps the number of ticks seen since the last pong to an action.
func Decide(count int) Action {
	switch {
	case count < PingTick:
		return Wait
	case count == PingTick:
		return SendPing
	default:
		return Timeout
	}
}

// Policy tracks the tick counter for one connection. The zero value is ready
// to use. Not safe for concurrent use; the session loop owns it.
type Policy struct {
	count int
}

// Tick evaluates the current count and then advances it.
func (p *Policy) Tick() Action {
	action := Decide(p.count)
	p.count++
	return action
}

// Pong resets the counter.
func (p *Policy) Pong() {
	p.count = 0
}

// Count returns the number of ticks since the last pong.
func (p *Policy) Count() int {
	return p.count
}
