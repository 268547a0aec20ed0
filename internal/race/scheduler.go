package race

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// Scheduler runs f once after d has elapsed on its clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// WallClock schedules on real time.
type WallClock struct{}

func (WallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SimClock is a manual clock advanced by the simulation loop. Callbacks run
// synchronously inside Advance, in deadline order.
type SimClock struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*simTimer
}

type simTimer struct {
	clock *SimClock
	at    time.Duration
	seq   uint64
	f     func()
}

// NewSimClock returns a clock at zero.
func NewSimClock() *SimClock {
	return &SimClock{}
}

// Now returns the time elapsed on the clock.
func (c *SimClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending returns the number of scheduled callbacks.
func (c *SimClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *SimClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &simTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d and fires every callback now due.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*simTimer
	keep := c.pending[:0]
	for _, t := range c.pending {
		if t.at <= c.now {
			due = append(due, t)
		} else {
			keep = append(keep, t)
		}
	}
	c.pending = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.f()
	}
}

// Reset drops all pending callbacks and rewinds to zero.
func (c *SimClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = 0
	c.pending = nil
}

func (t *simTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}
