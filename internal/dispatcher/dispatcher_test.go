package dispatcher

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(CmdControl, func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: CmdControl, Args: []string{"forward", "press"}})

	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"forward", "press"}, got.Args)
	assert.False(t, got.Timestamp.IsZero(), "dispatch stamps events")
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})
	assert.ErrorContains(t, err, "unknown command")
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var laps []int
	var mu sync.Mutex
	d.Register(CmdLap, func(e Event) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		laps = append(laps, e.Payload.(core.LapCompleted).Lap)
		return nil, nil
	}, Buffered(100))

	for i := 1; i <= 3; i++ {
		result, err := d.Dispatch(Event{Command: CmdLap, Payload: core.LapCompleted{Lap: i}})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}

	d.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, laps, "a single worker keeps order")
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	d.Register(CmdPosition, func(e Event) (any, error) {
		once.Do(func() { close(started) })
		<-block
		return nil, nil
	}, Buffered(2))

	_, err := d.Dispatch(Event{Command: CmdPosition}) // being processed
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Event{Command: CmdPosition}) // queued
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: CmdPosition}) // queued
	require.NoError(t, err)
	assert.Equal(t, 2, d.QueueDepths()[CmdPosition])

	_, err = d.Dispatch(Event{Command: CmdPosition})
	assert.ErrorContains(t, err, "queue full")

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	d.Register(CmdFinish, func(e Event) (any, error) {
		once.Do(func() { close(started) })
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: CmdFinish})
	<-started
	d.Dispatch(Event{Command: CmdFinish})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: CmdFinish})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(CmdRaceStart, func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Event{Command: CmdRaceStart, Args: []string{"ada"}})

	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(CmdResize, func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.Dispatch(Event{Command: CmdResize})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(CmdRaceRestart, func(e Event) (any, error) { return nil, nil })

	assert.True(t, d.HasHandler(CmdRaceRestart))
	assert.False(t, d.HasHandler(CmdRaceEnd))
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(CmdLap, func(e Event) (any, error) {
		processed.Add(1)
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: CmdLap})
	require.NoError(t, err)
	assert.Equal(t, "queued", result)

	d.Close()

	assert.Equal(t, int32(1), processed.Load())
	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_ClosedRejectsEvents(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(CmdLap, func(e Event) (any, error) { return nil, nil }, Buffered(1))
	d.Register(CmdControl, func(e Event) (any, error) { return nil, nil })

	d.Close()
	d.Close()

	_, err := d.Dispatch(Event{Command: CmdLap})
	assert.ErrorContains(t, err, "closed")
	_, err = d.Dispatch(Event{Command: CmdControl})
	assert.ErrorContains(t, err, "closed")
}
