package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tivoli-arcade/gokart/internal/api"
	"github.com/tivoli-arcade/gokart/internal/dispatcher"
	"github.com/tivoli-arcade/gokart/internal/influx"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Player input and race lifecycle - sync, applied before the next tick
	d.Register(dispatcher.CmdControl, m.handleControl)
	d.Register(dispatcher.CmdRaceStart, m.handleRaceStart, dispatcher.Logged())
	d.Register(dispatcher.CmdRaceRestart, m.handleRaceRestart, dispatcher.Logged())
	d.Register(dispatcher.CmdRaceEnd, m.handleRaceEnd, dispatcher.Logged())
	d.Register(dispatcher.CmdResize, m.handleResize, dispatcher.Logged())

	// Per-tick telemetry - buffered, dropped when the sinks fall behind
	d.Register(dispatcher.CmdPosition, m.handlePosition, dispatcher.Buffered(4096))

	// Lap and result rows - sync so laps land before the result
	d.Register(dispatcher.CmdLap, m.handleLap, dispatcher.Logged())
	d.Register(dispatcher.CmdFinish, m.handleFinish, dispatcher.Logged())
}

// Bind routes the simulation's callbacks through the dispatcher. The trail is
// appended on the tick goroutine so a result always carries every position
// up to the finish; position events are tagged with the race they belong to.
func (m *Manager) Bind(d *dispatcher.Dispatcher) {
	send := func(e dispatcher.Event) {
		e.Timestamp = m.now()
		if _, err := d.Dispatch(e); err != nil {
			m.deps.LogManager.WriteLog("worker:Bind", err.Error(), "DEBUG")
		}
	}
	m.deps.Sim.OnPositionUpdate(func(p core.PositionUpdate) {
		m.deps.Trail.Append(p.Pose)
		send(dispatcher.Event{
			Command: dispatcher.CmdPosition,
			Args:    []string{m.lastRace().ID},
			Payload: p,
		})
	})
	m.deps.Sim.OnLapCompleted(func(l core.LapCompleted) {
		send(dispatcher.Event{Command: dispatcher.CmdLap, Payload: l})
	})
	m.deps.Sim.OnRaceFinished(func(f core.RaceFinished) {
		send(dispatcher.Event{Command: dispatcher.CmdFinish, Payload: f})
	})
}

func (m *Manager) handleControl(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return nil, fmt.Errorf("control event needs a direction")
	}
	dir, err := core.ParseDirection(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to apply control: %w", err)
	}
	pressed := true
	if len(e.Args) > 1 {
		switch e.Args[1] {
		case "press":
		case "release":
			pressed = false
		default:
			return nil, fmt.Errorf("unknown control action %q", e.Args[1])
		}
	}
	m.deps.Sim.ApplyControl(dir, pressed)
	return nil, nil
}

func (m *Manager) handleRaceStart(e dispatcher.Event) (any, error) {
	if m.deps.Sim.Tracker().State() == core.Racing {
		return nil, ErrRaceInProgress
	}
	if len(e.Args) > 0 {
		m.deps.Session.SetPlayer(e.Args[0])
	}
	// A finished race's session is already closed; an ended one may not be.
	m.abandonRace()
	return m.beginRace(), nil
}

func (m *Manager) handleRaceRestart(e dispatcher.Event) (any, error) {
	m.abandonRace()
	return m.beginRace(), nil
}

func (m *Manager) handleRaceEnd(e dispatcher.Event) (any, error) {
	if _, ok := m.deps.Session.Current(); !ok {
		return nil, ErrNoSession
	}
	m.deps.Sim.End()
	m.abandonRace()
	return nil, nil
}

func (m *Manager) handleResize(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("resize needs width and height, got %d args", len(e.Args))
	}
	w, err := strconv.ParseFloat(e.Args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid width %q: %w", e.Args[0], err)
	}
	h, err := strconv.ParseFloat(e.Args[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid height %q: %w", e.Args[1], err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("viewport must be positive, got %gx%g", w, h)
	}
	m.deps.Sim.Resize(w, h)
	return nil, nil
}

func (m *Manager) handlePosition(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(core.PositionUpdate)
	if !ok {
		return nil, fmt.Errorf("position event carries %T", e.Payload)
	}
	race := m.lastRace()
	// Positions queued before a restart belong to the previous race.
	if len(e.Args) > 0 && e.Args[0] != race.ID {
		return nil, nil
	}

	var errs []error
	if pr, ok := m.backend.(storage.PositionRecorder); ok {
		if err := pr.RecordPosition(&p); err != nil {
			errs = append(errs, err)
		}
	}

	if m.deps.Influx != nil && race.ID != "" && p.Tick%m.deps.SampleEvery == 0 {
		m.samples.Push(influx.PositionPoint(race, p, e.Timestamp))
		if m.samples.Len() >= m.deps.SampleBatch {
			if err := m.FlushSamples(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) handleLap(e dispatcher.Event) (any, error) {
	l, ok := e.Payload.(core.LapCompleted)
	if !ok {
		return nil, fmt.Errorf("lap event carries %T", e.Payload)
	}

	var errs []error
	if err := m.backend.RecordLap(&l); err != nil {
		errs = append(errs, fmt.Errorf("failed to record lap %d: %w", l.Lap, err))
	}
	if m.deps.Influx != nil {
		if s, ok := m.deps.Session.Current(); ok {
			if err := m.deps.Influx.WritePoint(influx.LapPoint(s, l, e.Timestamp)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.deps.LogManager.Logger().Info("Lap completed", "lap", l.Lap, "lapTime", l.LapTime)
	return nil, errors.Join(errs...)
}

func (m *Manager) handleFinish(e dispatcher.Event) (any, error) {
	f, ok := e.Payload.(core.RaceFinished)
	if !ok {
		return nil, fmt.Errorf("finish event carries %T", e.Payload)
	}
	s, ok := m.deps.Session.End()
	if !ok {
		return nil, ErrNoSession
	}

	var errs []error
	trail, err := m.deps.Trail.WKT()
	if err != nil {
		errs = append(errs, err)
	}

	result := core.RaceResult{
		SessionID:  s.ID,
		Player:     s.Player,
		Track:      s.Track,
		TrackHash:  s.TrackHash,
		Elapsed:    f.Elapsed,
		LapTimes:   f.LapTimes,
		Trail:      trail,
		FinishedAt: e.Timestamp,
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = m.now()
	}

	if err := m.backend.RecordResult(&result); err != nil {
		errs = append(errs, fmt.Errorf("failed to record result: %w", err))
	}

	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(influx.ResultPoint(s, f, result.FinishedAt)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.FlushSamples(); err != nil {
		errs = append(errs, err)
	}

	if m.deps.API != nil {
		ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
		err := m.deps.API.SubmitScore(ctx, api.NewScoreSubmission(s, f))
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to submit score: %w", err))
		}
	}

	m.deps.LogManager.Logger().Info("Race finished",
		"session", s.ID,
		"player", s.Player,
		"elapsed", f.Elapsed,
		"newBest", f.NewBest,
	)
	return result, errors.Join(errs...)
}
