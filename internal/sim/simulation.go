// Package sim composes the integrator, arena resolver, terrain classifier
// and race tracker into a per-tick simulation.
package sim

import (
	"sync"
	"time"

	"github.com/tivoli-arcade/gokart/internal/arena"
	"github.com/tivoli-arcade/gokart/internal/kinematics"
	"github.com/tivoli-arcade/gokart/internal/race"
	"github.com/tivoli-arcade/gokart/internal/terrain"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Config describes one simulation instance.
type Config struct {
	Track  core.TrackDefinition
	Params core.KinematicParams
	Arena  core.Boundary
	Extent core.Extent
	Seed   uint64
	// WallClockCooldown re-enables lap counting on real time instead of
	// simulated time.
	WallClockCooldown bool
}

// Snapshot is a consistent read of the simulation state.
type Snapshot struct {
	Tick     uint64             `json:"tick"`
	Pose     core.Pose          `json:"pose"`
	Speed    float64            `json:"speed"`
	Terrain  core.TerrainSample `json:"terrain"`
	State    core.RaceState     `json:"state"`
	Lap      core.LapState      `json:"lap"`
	Elapsed  time.Duration      `json:"elapsed"`
	Boundary core.Boundary      `json:"boundary"`
}

// Simulation owns all per-race mutable state. Tick must be called from a
// single goroutine; the query methods and ApplyControl are safe from any.
type Simulation struct {
	mu sync.Mutex

	cfg        Config
	integrator *kinematics.Integrator
	resolver   *arena.Resolver
	classifier *terrain.Classifier
	tracker    *race.Tracker
	clock      *race.SimClock
	input      controls

	pose     core.Pose
	speed    float64
	traction kinematics.Traction
	terrain  core.TerrainSample
	tick     uint64
	elapsed  time.Duration

	onPosition []func(core.PositionUpdate)
	onLap      []func(core.LapCompleted)
	onFinish   []func(core.RaceFinished)
}

// New builds a simulation. A nil classifier behaves as if the track artwork
// has not loaded yet.
func New(cfg Config, classifier *terrain.Classifier) *Simulation {
	if classifier == nil {
		classifier = terrain.NewClassifier(terrain.DefaultConfig)
	}
	clock := race.NewSimClock()
	var sched race.Scheduler = clock
	if cfg.WallClockCooldown {
		sched = race.WallClock{}
	}
	s := &Simulation{
		cfg:        cfg,
		integrator: kinematics.New(cfg.Params, cfg.Seed),
		resolver:   arena.NewResolver(cfg.Arena, cfg.Extent),
		classifier: classifier,
		tracker:    race.NewTracker(cfg.Track, sched),
		clock:      clock,
	}
	s.resetLocked()
	return s
}

// OnPositionUpdate registers f to run after every committed tick.
func (s *Simulation) OnPositionUpdate(f func(core.PositionUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPosition = append(s.onPosition, f)
}

// OnLapCompleted registers f to run when the lap counter advances.
func (s *Simulation) OnLapCompleted(f func(core.LapCompleted)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLap = append(s.onLap, f)
}

// OnRaceFinished registers f to run once when the race finishes.
func (s *Simulation) OnRaceFinished(f func(core.RaceFinished)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = append(s.onFinish, f)
}

// Tracker exposes the race tracker for session tagging and best-time seeding.
func (s *Simulation) Tracker() *race.Tracker {
	return s.tracker
}

// Classifier returns the terrain classifier in use.
func (s *Simulation) Classifier() *terrain.Classifier {
	return s.classifier
}

// Track returns the track definition.
func (s *Simulation) Track() core.TrackDefinition {
	return s.tracker.Definition()
}

// TrackHash fingerprints the loaded artwork, or 0 before it loads.
func (s *Simulation) TrackHash() uint64 {
	if r := s.classifier.Raster(); r != nil {
		return r.Fingerprint()
	}
	return 0
}

// ApplyControl latches a single button.
func (s *Simulation) ApplyControl(d core.Direction, pressed bool) {
	s.input.set(d, pressed)
}

// ApplyControlState latches all buttons at once.
func (s *Simulation) ApplyControlState(c core.ControlState) {
	s.input.store(c)
}

// Controls returns the currently latched buttons.
func (s *Simulation) Controls() core.ControlState {
	return s.input.snapshot()
}

// Start moves the race from NotStarted to Racing.
func (s *Simulation) Start() {
	s.tracker.Start()
}

// Restart discards the current race, returns the kart to the grid and starts
// again.
func (s *Simulation) Restart() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.tracker.Start()
}

// End stops the race. Pending lap cooldowns are cancelled and the pose stays
// frozen until Restart.
func (s *Simulation) End() {
	s.tracker.End()
	s.input.release()
}

func (s *Simulation) resetLocked() {
	s.tracker.Reset()
	s.clock.Reset()
	s.input.release()
	s.pose = s.resolver.Resolve(s.cfg.Track.Start)
	s.speed = 0
	s.tick = 0
	s.elapsed = 0
	s.terrain = s.classifyLocked(s.pose)
	s.traction = kinematics.TractionFor(s.terrain)
}

// classifyLocked samples the surface under the kart's centre. The pose is the
// top-left corner of the footprint.
func (s *Simulation) classifyLocked(p core.Pose) core.TerrainSample {
	return s.classifier.Classify(p.X+s.cfg.Extent.W/2, p.Y+s.cfg.Extent.H/2)
}

// Resize recomputes the arena for a w×h viewport and re-clamps the kart.
func (s *Simulation) Resize(w, h float64) {
	s.resolver.Resize(w, h)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = s.resolver.Resolve(s.pose)
}

// TerrainState returns the classification of the surface under the kart.
func (s *Simulation) TerrainState() core.TerrainSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terrain
}

// Pose returns the committed pose.
func (s *Simulation) Pose() core.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Snapshot returns the full simulation state.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Tick:     s.tick,
		Pose:     s.pose,
		Speed:    s.speed,
		Terrain:  s.terrain,
		State:    s.tracker.State(),
		Lap:      s.tracker.LapState(),
		Elapsed:  s.elapsed,
		Boundary: s.resolver.Boundary(),
	}
}

// Tick advances the simulation by dt and returns the committed pose. Outside
// Racing the pose is returned unchanged.
func (s *Simulation) Tick(dt time.Duration) core.Pose {
	if s.tracker.State() != core.Racing {
		return s.Pose()
	}

	s.clock.Advance(dt)
	c := s.input.snapshot()

	s.mu.Lock()
	s.tick++
	s.elapsed += dt

	candidate, speed := s.integrator.Step(s.pose, s.speed, c, s.traction)
	candidate = s.resolver.Resolve(candidate)
	sample := s.classifyLocked(candidate)

	s.pose = candidate
	s.speed = speed
	s.terrain = sample
	s.traction = kinematics.TractionFor(sample)

	update := core.PositionUpdate{
		Tick:    s.tick,
		Pose:    s.pose,
		Speed:   s.speed,
		Terrain: s.terrain,
		Elapsed: s.elapsed,
	}
	out := s.tracker.Update(s.pose, s.elapsed)

	onPosition, onLap, onFinish := s.onPosition, s.onLap, s.onFinish
	pose := s.pose
	s.mu.Unlock()

	for _, f := range onPosition {
		f(update)
	}
	if out.Lap != nil {
		for _, f := range onLap {
			f(*out.Lap)
		}
	}
	if out.Finished != nil {
		for _, f := range onFinish {
			f(*out.Finished)
		}
	}
	return pose
}
