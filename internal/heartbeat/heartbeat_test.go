// ABOUTME: Tests for the heartbeat policy
// ABOUTME: Verifies grace ticks, the single ping, timeout, and pong resets

package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	for c := -1; c < PingTick; c++ {
		assert.Equal(t, Wait, Decide(c), "count %d", c)
	}
	assert.Equal(t, SendPing, Decide(4))
	assert.Equal(t, Timeout, Decide(5))
	assert.Equal(t, Timeout, Decide(50))
}

func TestPolicy_NoPongSendsExactlyOnePing(t *testing.T) {
	var p Policy
	var actions []Action
	for {
		a := p.Tick()
		actions = append(actions, a)
		if a == Timeout {
			break
		}
	}

	assert.Equal(t, []Action{Wait, Wait, Wait, Wait, SendPing, Timeout}, actions)

	pings := 0
	for _, a := range actions {
		if a == SendPing {
			pings++
		}
	}
	assert.Equal(t, 1, pings)
}

func TestPolicy_PongResetsCounter(t *testing.T) {
	var p Policy
	for i := 0; i < PingTick; i++ {
		assert.Equal(t, Wait, p.Tick())
	}
	assert.Equal(t, SendPing, p.Tick())
	assert.Equal(t, 5, p.Count())

	p.Pong()
	assert.Equal(t, 0, p.Count())

	for i := 0; i < PingTick; i++ {
		assert.Equal(t, Wait, p.Tick())
	}
	assert.Equal(t, SendPing, p.Tick())
	assert.Equal(t, Timeout, p.Tick())
}

func TestPolicy_SteadyPongsNeverPing(t *testing.T) {
	var p Policy
	for i := 0; i < 100; i++ {
		assert.Equal(t, Wait, p.Tick())
		if i%3 == 2 {
			p.Pong()
		}
	}
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "wait", Wait.String())
	assert.Equal(t, "send_ping", SendPing.String())
	assert.Equal(t, "timeout", Timeout.String())
}
