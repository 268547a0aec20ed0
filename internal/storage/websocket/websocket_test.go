package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
	"github.com/tivoli-arcade/gokart/pkg/streaming"
)

// Compile-time interface checks.
var (
	_ storage.Backend          = (*Backend)(nil)
	_ storage.PositionRecorder = (*Backend)(nil)
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks start_race, end_race and result.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			switch env.Type {
			case streaming.TypeStartRace, streaming.TypeEndRace, streaming.TypeResult:
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	messages []streaming.Envelope
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) getSecret() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secret
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartRaceAndResult(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"})
	require.NoError(t, b.Init())
	defer b.Close()

	s := &core.Session{ID: "abc", Player: "mario", Track: "oval"}
	require.NoError(t, b.StartRace(s, core.TrackDefinition{Name: "oval", TotalLaps: 3}))
	require.NoError(t, b.RecordResult(&core.RaceResult{SessionID: "abc", Elapsed: 42 * time.Second}))

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartRace, msgs[0].Type)
	assert.Equal(t, streaming.TypeResult, msgs[len(msgs)-1].Type)
	assert.Equal(t, "test", ml.getSecret())

	var start streaming.StartRacePayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &start))
	assert.Equal(t, "mario", start.Session.Player)
	assert.Equal(t, 3, start.Track.TotalLaps)

	b.link.mu.Lock()
	replay := b.link.replay
	b.link.mu.Unlock()
	assert.Nil(t, replay, "result clears the replay log")
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(&core.Session{ID: "r"}, core.TrackDefinition{}))
	require.NoError(t, b.RecordPosition(&core.PositionUpdate{Tick: 1, Pose: core.Pose{X: 10, Y: 20}}))
	require.NoError(t, b.RecordPosition(&core.PositionUpdate{Tick: 2, Pose: core.Pose{X: 11, Y: 20}}))
	require.NoError(t, b.RecordLap(&core.LapCompleted{SessionID: "r", Lap: 1}))
	require.NoError(t, b.EndRace())

	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeLap) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, ml.count(streaming.TypeStartRace))
	assert.Equal(t, 1, ml.count(streaming.TypeEndRace))
	assert.Eventually(t, func() bool {
		return uint64(ml.count(streaming.TypePosition))+b.Coalesced() == 2
	}, time.Second, 10*time.Millisecond, "every position is written or superseded")
	assert.Zero(t, b.Dropped())
}

func TestInitFailsWithoutServer(t *testing.T) {
	srv, _ := testServer(t)
	url := wsURL(srv)
	srv.Close()

	b := New(Config{URL: url})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestAckTimeoutWithoutServerAck(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)})
	require.NoError(t, b.Init())

	data, err := marshalEnvelope(streaming.TypeEndRace, nil)
	require.NoError(t, err)
	err = b.link.request(data, streaming.TypeEndRace, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for ack")
	require.NoError(t, b.Close())
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeLap, core.LapCompleted{SessionID: "x", Lap: 2, LapTime: time.Second})
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeLap, decoded.Type)

	var lap core.LapCompleted
	require.NoError(t, json.Unmarshal(decoded.Payload, &lap))
	assert.Equal(t, 2, lap.Lap)
	assert.Equal(t, time.Second, lap.LapTime)
}

func TestPositionFramesCoalesce(t *testing.T) {
	l := newLink(slog.Default())

	l.queuePosition([]byte("1"))
	l.queuePosition([]byte("2"))
	l.queuePosition([]byte("3"))

	assert.Equal(t, uint64(2), l.coalesced.Load())
	assert.Equal(t, []byte("3"), l.position)
	assert.Equal(t, []byte("3"), l.lastPos)
	assert.Len(t, l.wake, 1)
}

func TestEventBufferOverflowCountsDrops(t *testing.T) {
	l := newLink(slog.Default())
	for i := 0; i < eventBuffer+5; i++ {
		l.queue([]byte("lap"))
	}
	assert.Equal(t, uint64(5), l.dropped.Load())
}

func TestReconnectReplaysRaceState(t *testing.T) {
	var (
		mu    sync.Mutex
		conns [][]streaming.Envelope
	)
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		mu.Lock()
		conns = append(conns, nil)
		idx := len(conns) - 1
		mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			mu.Lock()
			conns[idx] = append(conns[idx], env)
			mu.Unlock()

			switch env.Type {
			case streaming.TypeStartRace, streaming.TypeEndRace, streaming.TypeResult:
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			case streaming.TypeLap:
				// Drop the first connection once a lap arrives.
				if idx == 0 {
					return
				}
			}
		}
	}))
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)})
	b.link.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(&core.Session{ID: "r1"}, core.TrackDefinition{Name: "oval"}))
	require.NoError(t, b.RecordPosition(&core.PositionUpdate{Tick: 7, Pose: core.Pose{X: 5, Y: 6}}))
	require.NoError(t, b.RecordLap(&core.LapCompleted{SessionID: "r1", Lap: 1}))

	types := func(envs []streaming.Envelope) []string {
		out := make([]string, len(envs))
		for i, e := range envs {
			out[i] = e.Type
		}
		return out
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == 2 && len(conns[1]) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	replayed := append([]streaming.Envelope(nil), conns[1]...)
	mu.Unlock()
	assert.Equal(t,
		[]string{streaming.TypeStartRace, streaming.TypeLap, streaming.TypePosition},
		types(replayed[:3]))

	var pos core.PositionUpdate
	require.NoError(t, json.Unmarshal(replayed[2].Payload, &pos))
	assert.Equal(t, uint64(7), pos.Tick)

	require.NoError(t, b.RecordResult(&core.RaceResult{SessionID: "r1"}))
	b.link.mu.Lock()
	defer b.link.mu.Unlock()
	assert.Nil(t, b.link.replay)
	assert.Nil(t, b.link.lastPos)
}
