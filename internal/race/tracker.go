// Package race tracks checkpoint, lap and finish progress for one race.
package race

import (
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/tivoli-arcade/gokart/internal/geo"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// DefaultLapCooldown is used when the track definition leaves it unset.
const DefaultLapCooldown = time.Second

type checkpointState struct {
	core.Checkpoint
	passed bool
}

// Outcome reports what a single Update changed. Both fields are nil on most
// ticks.
type Outcome struct {
	Lap      *core.LapCompleted
	Finished *core.RaceFinished
}

// Tracker is safe for concurrent use. Cooldown callbacks may arrive from a
// timer goroutine when a WallClock is used.
type Tracker struct {
	mu     sync.Mutex
	def    core.TrackDefinition
	finish geom.Envelope
	sched  Scheduler

	sessionID   string
	state       core.RaceState
	checkpoints *orderedmap.OrderedMap[int, *checkpointState]
	currentLap  int
	canCountLap bool
	cooldown    Timer
	generation  uint64

	lapStart time.Duration
	lapTimes []time.Duration
	elapsed  time.Duration
	best     time.Duration
}

// NewTracker builds a tracker for def. A nil scheduler falls back to a
// WallClock. A finish line with non-finite corners never counts a lap.
func NewTracker(def core.TrackDefinition, sched Scheduler) *Tracker {
	if sched == nil {
		sched = WallClock{}
	}
	if def.LapCooldown <= 0 {
		def.LapCooldown = DefaultLapCooldown
	}
	// On error the envelope is empty and contains nothing.
	finish, _ := geo.RectEnvelope(def.FinishLine)
	t := &Tracker{
		def:         def,
		finish:      finish,
		sched:       sched,
		checkpoints: orderedmap.NewOrderedMap[int, *checkpointState](),
	}
	for _, cp := range def.Checkpoints {
		t.checkpoints.Set(cp.ID, &checkpointState{Checkpoint: cp})
	}
	t.resetLocked()
	return t
}

// Definition returns the track the tracker was built for.
func (t *Tracker) Definition() core.TrackDefinition {
	return t.def
}

// SetSession tags emitted events with id.
func (t *Tracker) SetSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = id
}

// SetBest seeds the best time, typically from the leaderboard. Zero means no
// best time yet.
func (t *Tracker) SetBest(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.best = d
}

// Best returns the best finishing time known to the tracker.
func (t *Tracker) Best() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.best
}

// Start enters Racing from NotStarted. Any other state is left alone.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == core.NotStarted {
		t.state = core.Racing
	}
}

// Reset cancels a pending cooldown and returns to NotStarted with fresh lap
// state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// End cancels a pending cooldown. A finished race keeps its result; an
// unfinished one is discarded.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == core.Finished {
		t.cancelCooldownLocked()
		return
	}
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.cancelCooldownLocked()
	t.state = core.NotStarted
	t.currentLap = 0
	t.canCountLap = true
	t.lapStart = 0
	t.lapTimes = nil
	t.elapsed = 0
	t.clearCheckpointsLocked()
}

func (t *Tracker) cancelCooldownLocked() {
	t.generation++
	if t.cooldown != nil {
		t.cooldown.Stop()
		t.cooldown = nil
	}
}

func (t *Tracker) clearCheckpointsLocked() {
	for el := t.checkpoints.Front(); el != nil; el = el.Next() {
		el.Value.passed = false
	}
}

// State returns the race state.
func (t *Tracker) State() core.RaceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns the finishing time once the race is Finished.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// LapTimes returns a copy of the completed lap times.
func (t *Tracker) LapTimes() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.lapTimes...)
}

// LapState returns a snapshot of the lap bookkeeping. Checkpoint flags are in
// definition order.
func (t *Tracker) LapState() core.LapState {
	t.mu.Lock()
	defer t.mu.Unlock()
	passed := make([]bool, 0, t.checkpoints.Len())
	for el := t.checkpoints.Front(); el != nil; el = el.Next() {
		passed = append(passed, el.Value.passed)
	}
	return core.LapState{
		CurrentLap:        t.currentLap,
		TotalLaps:         t.def.TotalLaps,
		CheckpointsPassed: passed,
		CanCountLap:       t.canCountLap,
	}
}

// NextTarget returns the first checkpoint not yet passed this lap, or false
// when only the finish line remains.
func (t *Tracker) NextTarget() (core.Checkpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for el := t.checkpoints.Front(); el != nil; el = el.Next() {
		if !el.Value.passed {
			return el.Value.Checkpoint, true
		}
	}
	return core.Checkpoint{}, false
}

// Update feeds the committed pose for race time now. It is a no-op unless
// the race is Racing.
func (t *Tracker) Update(p core.Pose, now time.Duration) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != core.Racing {
		return Outcome{}
	}

	xy := geo.XY(p)
	allPassed := true
	for el := t.checkpoints.Front(); el != nil; el = el.Next() {
		cp := el.Value
		if !cp.passed && geo.InCircle(xy, cp.Checkpoint) {
			cp.passed = true
		}
		allPassed = allPassed && cp.passed
	}

	if !allPassed || !t.canCountLap || !t.finish.Contains(xy) {
		return Outcome{}
	}

	t.currentLap++
	lapTime := now - t.lapStart
	t.lapStart = now
	t.lapTimes = append(t.lapTimes, lapTime)
	t.clearCheckpointsLocked()
	t.canCountLap = false
	t.scheduleCooldownLocked()

	out := Outcome{Lap: &core.LapCompleted{
		SessionID: t.sessionID,
		Lap:       t.currentLap,
		LapTime:   lapTime,
		Elapsed:   now,
	}}

	if t.currentLap >= t.def.TotalLaps {
		t.state = core.Finished
		t.elapsed = now
		t.cancelCooldownLocked()
		newBest := t.best == 0 || now < t.best
		if newBest {
			t.best = now
		}
		out.Finished = &core.RaceFinished{
			SessionID: t.sessionID,
			Elapsed:   now,
			LapTimes:  append([]time.Duration(nil), t.lapTimes...),
			BestTime:  t.best,
			NewBest:   newBest,
		}
	}
	return out
}

func (t *Tracker) scheduleCooldownLocked() {
	t.cancelCooldownLocked()
	gen := t.generation
	t.cooldown = t.sched.AfterFunc(t.def.LapCooldown, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.generation != gen {
			return
		}
		t.canCountLap = true
		t.cooldown = nil
	})
}
