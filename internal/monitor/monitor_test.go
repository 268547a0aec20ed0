package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/session"
	"github.com/tivoli-arcade/gokart/internal/sim"
	"github.com/tivoli-arcade/gokart/internal/worker"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

type fakeQueues map[string]int

func (f fakeQueues) QueueDepths() map[string]int { return f }

type fakeStream uint64

func (f fakeStream) Dropped() uint64 { return uint64(f) }

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	s := sim.New(sim.Config{
		Track: core.TrackDefinition{
			Name:      "oval",
			Start:     core.Pose{X: 100, Y: 100},
			TotalLaps: 1,
		},
		Arena:  core.Boundary{MaxX: 900, MaxY: 600},
		Extent: core.Extent{W: 24, H: 24},
	}, nil)
	sess := session.NewContext("Peach")
	lm := logging.NewSlogManager()
	return Dependencies{
		Sim:           s,
		Session:       sess,
		LogManager:    lm,
		Dispatcher:    fakeQueues{":POSITION:": 3},
		WorkerManager: worker.NewManager(worker.Dependencies{Sim: s, Session: sess, LogManager: lm}, nil),
		Stream:        fakeStream(5),
	}
}

func TestGetProgramStatus(t *testing.T) {
	deps := testDeps(t)
	deps.Session.Begin("oval", 9, time.Now())
	svc := NewService(deps)

	output, status := svc.GetProgramStatus(true, true)

	require.Len(t, output, 2)
	assert.Contains(t, output[0], `":POSITION:": 3`)
	assert.Contains(t, output[1], `"streamDropped": 5`)

	require.NotNil(t, status.Session)
	assert.Equal(t, "Peach", status.Session.Player)
	assert.Equal(t, core.Pose{X: 100, Y: 100}, status.Sim.Pose)
	assert.Equal(t, map[string]int{":POSITION:": 3}, status.QueueDepths)
	assert.Equal(t, uint64(5), status.StreamDropped)
	assert.Zero(t, status.PointsWritten)
}

func TestGetProgramStatusWithoutOptionalDeps(t *testing.T) {
	deps := testDeps(t)
	deps.Dispatcher = nil
	deps.WorkerManager = nil
	deps.Stream = nil
	svc := NewService(deps)

	output, status := svc.GetProgramStatus(false, false)
	assert.Empty(t, output)
	assert.Nil(t, status.Session)
	assert.Nil(t, status.QueueDepths)
}

func TestServeHTTP(t *testing.T) {
	svc := NewService(testDeps(t))
	srv := httptest.NewServer(svc)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 100.0, status.Sim.Pose.X)

	resp2, err := http.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestStartWritesStatusFile(t *testing.T) {
	deps := testDeps(t)
	deps.StatusDir = t.TempDir()
	deps.Interval = 10 * time.Millisecond
	svc := NewService(deps)

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	require.NoError(t, svc.Start(), "second start is a no-op")

	path := filepath.Join(deps.StatusDir, StatusFileName)
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(path)
		if err != nil || len(b) == 0 {
			return false
		}
		var s Status
		return json.Unmarshal(b, &s) == nil && s.Sim.Pose.X == 100
	}, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}

func TestStartFailsOnMissingDir(t *testing.T) {
	deps := testDeps(t)
	deps.StatusDir = filepath.Join(t.TempDir(), "missing")
	svc := NewService(deps)

	assert.Error(t, svc.Start())
	assert.False(t, svc.IsRunning())
}
