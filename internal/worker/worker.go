package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tivoli-arcade/gokart/internal/api"
	"github.com/tivoli-arcade/gokart/internal/geo"
	"github.com/tivoli-arcade/gokart/internal/influx"
	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/queue"
	"github.com/tivoli-arcade/gokart/internal/session"
	"github.com/tivoli-arcade/gokart/internal/sim"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// ErrRaceInProgress is returned when a start arrives while a race is running.
var ErrRaceInProgress = errors.New("race already in progress")

// ErrNoSession is returned when a race event arrives with no open session.
var ErrNoSession = errors.New("no race session open")

const (
	defaultSampleBatch = 64
	sampleQueueLimit   = 4096
	scoreTimeout       = 10 * time.Second
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Sim        *sim.Simulation
	Session    *session.Context
	LogManager *logging.SlogManager

	// Optional sinks; nil disables them.
	Influx *influx.Manager
	API    *api.Client

	// Trail collects the replay path stored with each result. A nil trail
	// keeps every 10th tick.
	Trail *geo.Trail
	// SampleEvery writes one telemetry sample per n ticks.
	SampleEvery uint64
	// SampleBatch is the number of samples buffered before they are handed
	// to the telemetry writer.
	SampleBatch int
}

// Manager turns dispatcher events into simulation calls and persists what
// the simulation reports.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	samples *queue.Queue[*influxdb2_write.Point]
	now     func() time.Time

	mu   sync.Mutex
	race core.Session // last race begun, kept after it finishes
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Trail == nil {
		deps.Trail = geo.NewTrail(10)
	}
	if deps.SampleEvery == 0 {
		deps.SampleEvery = 1
	}
	if deps.SampleBatch <= 0 {
		deps.SampleBatch = defaultSampleBatch
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		samples: queue.NewBounded[*influxdb2_write.Point](sampleQueueLimit),
		now:     time.Now,
	}
}

// Trail returns the replay trail of the current race.
func (m *Manager) Trail() *geo.Trail {
	return m.deps.Trail
}

// PendingSamples returns how many telemetry samples await a flush.
func (m *Manager) PendingSamples() int {
	return m.samples.Len()
}

// DroppedSamples returns how many telemetry samples were discarded because
// the sample queue was full.
func (m *Manager) DroppedSamples() uint64 {
	return m.samples.Dropped()
}

func (m *Manager) lastRace() core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.race
}

// FlushSamples hands all buffered telemetry samples to the writer.
func (m *Manager) FlushSamples() error {
	if m.deps.Influx == nil {
		m.samples.Clear()
		return nil
	}
	var errs []error
	for _, p := range m.samples.GetAndEmpty() {
		if err := m.deps.Influx.WritePoint(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to write %d samples: %w", len(errs), errs[0])
	}
	return nil
}

// seedBest loads the track record so the tracker can flag a new best.
func (m *Manager) seedBest(s core.Session) {
	lb, ok := m.backend.(storage.Leaderboard)
	if !ok {
		m.deps.Sim.Tracker().SetBest(0)
		return
	}
	best, err := lb.BestTime(s.Track, s.TrackHash)
	if err != nil {
		if !errors.Is(err, storage.ErrNoResults) {
			m.deps.LogManager.WriteLog("worker:seedBest", err.Error(), "WARN")
		}
		best = 0
	}
	m.deps.Sim.Tracker().SetBest(best)
}

// beginRace opens a session, tells the backend and puts the kart on the grid.
func (m *Manager) beginRace() core.Session {
	def := m.deps.Sim.Track()
	s := m.deps.Session.Begin(def.Name, m.deps.Sim.TrackHash(), m.now())

	m.mu.Lock()
	m.race = s
	m.mu.Unlock()

	m.deps.Sim.Tracker().SetSession(s.ID)
	m.seedBest(s)
	m.deps.Trail.Reset()
	m.samples.Clear()

	if err := m.backend.StartRace(&s, def); err != nil {
		m.deps.LogManager.WriteLog("worker:beginRace", fmt.Sprintf("storage did not accept race %s: %v", s.ID, err), "WARN")
	}

	// Restart also returns a kart left on the track by an ended race to the grid.
	m.deps.Sim.Restart()
	m.deps.LogManager.Logger().Info("Race started", "session", s.ID, "player", s.Player, "track", s.Track)
	return s
}

// abandonRace closes the open session without a result.
func (m *Manager) abandonRace() {
	s, ok := m.deps.Session.End()
	if !ok {
		return
	}
	if re, ok := m.backend.(storage.RaceEnder); ok {
		if err := re.EndRace(); err != nil {
			m.deps.LogManager.WriteLog("worker:abandonRace", err.Error(), "WARN")
		}
	}
	if err := m.FlushSamples(); err != nil {
		m.deps.LogManager.WriteLog("worker:abandonRace", err.Error(), "WARN")
	}
	m.deps.LogManager.Logger().Info("Race abandoned", "session", s.ID)
}
