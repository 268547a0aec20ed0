package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Tee writes to a primary backend and mirrors every write to secondaries.
// Queries are answered by the primary. Mirror failures are returned joined
// with the primary's but never stop the primary write.
type Tee struct {
	primary Backend
	mirrors []Backend
}

// NewTee builds a fan-out backend.
func NewTee(primary Backend, mirrors ...Backend) *Tee {
	return &Tee{primary: primary, mirrors: mirrors}
}

func (t *Tee) each(fn func(Backend) error) error {
	var errs []error
	if err := fn(t.primary); err != nil {
		errs = append(errs, err)
	}
	for i, m := range t.mirrors {
		if err := fn(m); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) Init() error  { return t.each(Backend.Init) }
func (t *Tee) Close() error { return t.each(Backend.Close) }

func (t *Tee) StartRace(s *core.Session, def core.TrackDefinition) error {
	return t.each(func(b Backend) error { return b.StartRace(s, def) })
}

func (t *Tee) RecordLap(l *core.LapCompleted) error {
	return t.each(func(b Backend) error { return b.RecordLap(l) })
}

func (t *Tee) RecordResult(r *core.RaceResult) error {
	return t.each(func(b Backend) error { return b.RecordResult(r) })
}

// TopResults delegates to the primary when it keeps a leaderboard.
func (t *Tee) TopResults(track string, hash uint64, limit int) ([]core.RaceResult, error) {
	lb, ok := t.primary.(Leaderboard)
	if !ok {
		return nil, ErrNoResults
	}
	return lb.TopResults(track, hash, limit)
}

// BestTime delegates to the primary when it keeps a leaderboard.
func (t *Tee) BestTime(track string, hash uint64) (time.Duration, error) {
	lb, ok := t.primary.(Leaderboard)
	if !ok {
		return 0, ErrNoResults
	}
	return lb.BestTime(track, hash)
}

// RecordPosition forwards to every member that records positions.
func (t *Tee) RecordPosition(p *core.PositionUpdate) error {
	return t.each(func(b Backend) error {
		if pr, ok := b.(PositionRecorder); ok {
			return pr.RecordPosition(p)
		}
		return nil
	})
}

// EndRace forwards to every member that tracks open races.
func (t *Tee) EndRace() error {
	return t.each(func(b Backend) error {
		if re, ok := b.(RaceEnder); ok {
			return re.EndRace()
		}
		return nil
	})
}

// Mirrors returns the secondary backends.
func (t *Tee) Mirrors() []Backend {
	return t.mirrors
}
