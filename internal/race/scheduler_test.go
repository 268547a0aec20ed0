package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimClockFiresInDeadlineOrder(t *testing.T) {
	c := NewSimClock()
	var got []string
	c.AfterFunc(30*time.Millisecond, func() { got = append(got, "b") })
	c.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
	c.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })

	c.Advance(5 * time.Millisecond)
	assert.Empty(t, got)

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 55*time.Millisecond, c.Now())
	assert.Zero(t, c.Pending())
}

func TestSimClockStop(t *testing.T) {
	c := NewSimClock()
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports nothing pending")

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestSimClockCallbackMaySchedule(t *testing.T) {
	c := NewSimClock()
	n := 0
	var again func()
	again = func() {
		n++
		if n < 3 {
			c.AfterFunc(time.Millisecond, again)
		}
	}
	c.AfterFunc(time.Millisecond, again)

	for i := 0; i < 5; i++ {
		c.Advance(time.Millisecond)
	}
	assert.Equal(t, 3, n)
}

func TestSimClockReset(t *testing.T) {
	c := NewSimClock()
	c.AfterFunc(time.Second, func() { t.Fatal("must not fire after reset") })
	c.Advance(time.Millisecond)

	c.Reset()
	assert.Zero(t, c.Now())
	c.Advance(2 * time.Second)
}

func TestWallClockFires(t *testing.T) {
	done := make(chan struct{})
	WallClock{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wall clock callback did not fire")
	}
}
