// ABOUTME: Tests for the message id dedupe cache
// ABOUTME: Covers expiry, eviction order, sweeping, and concurrent use

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestSeen_FirstThenDuplicate(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))
	assert.False(t, c.Seen("msg-2"))
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	clock := newClock()
	c := New(time.Minute, 10, WithClock(clock.Now))
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Contains("msg-1"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Contains("msg-1"))
	assert.False(t, c.Seen("msg-1"), "expired key is treated as new")
	assert.True(t, c.Seen("msg-1"))
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Hour, 3)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	c.Seen("d")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("d"))
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	clock := newClock()
	c := New(time.Minute, 10, WithClock(clock.Now))
	defer c.Close()

	c.Seen("old")
	clock.Advance(30 * time.Second)
	c.Seen("new")
	clock.Advance(45 * time.Second)

	c.Sweep()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("new"))
}

func TestSweepInterval_Background(t *testing.T) {
	c := New(5*time.Millisecond, 10, WithSweepInterval(5*time.Millisecond))
	defer c.Close()

	c.Seen("k")
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSeen_ConcurrentOnlyOneWinner(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				firsts.Add(1)
			}
			c.Seen(fmt.Sprintf("key-%d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10, WithSweepInterval(time.Millisecond))
	c.Close()
	assert.NotPanics(t, c.Close)
}
