package memory

import (
	"sync"
	"time"

	"github.com/tivoli-arcade/gokart/internal/config"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// RaceRecord groups an open session with the laps counted so far
type RaceRecord struct {
	Session    core.Session
	Definition core.TrackDefinition
	Laps       []core.LapCompleted
}

// Backend keeps the leaderboard in memory and exports it to JSON on Close
type Backend struct {
	cfg config.MemoryConfig

	races   map[string]*RaceRecord // keyed by session ID
	results []core.RaceResult

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		races: make(map[string]*RaceRecord),
	}
}

// Init loads a previous leaderboard export when one exists
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	export, err := readExport(b.exportPath())
	if err != nil {
		return err
	}
	if export == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = export.Results
	for _, r := range b.results {
		if r.ID > b.idCounter {
			b.idCounter = r.ID
		}
	}
	return nil
}

// Close writes the leaderboard export
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// StartRace opens a race for the session
func (b *Backend) StartRace(s *core.Session, def core.TrackDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.races[s.ID] = &RaceRecord{Session: *s, Definition: def}
	return nil
}

// RecordLap appends a lap to its open race
func (b *Backend) RecordLap(l *core.LapCompleted) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	race, ok := b.races[l.SessionID]
	if !ok {
		return storage.ErrUnknownSession
	}
	race.Laps = append(race.Laps, *l)
	return nil
}

// RecordResult closes the race and ranks the result. Results for sessions
// that were never started are still ranked.
func (b *Backend) RecordResult(r *core.RaceResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	res := *r
	res.ID = b.idCounter
	res.LapTimes = append([]time.Duration(nil), r.LapTimes...)
	if race, ok := b.races[r.SessionID]; ok {
		if res.Player == "" {
			res.Player = race.Session.Player
		}
		delete(b.races, r.SessionID)
	}
	b.results = append(b.results, res)
	r.ID = res.ID
	return nil
}

// OpenRace returns a copy of an unfinished race.
func (b *Backend) OpenRace(sessionID string) (RaceRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	race, ok := b.races[sessionID]
	if !ok {
		return RaceRecord{}, false
	}
	cp := *race
	cp.Laps = append([]core.LapCompleted(nil), race.Laps...)
	return cp, true
}

// TopResults returns the fastest finished races for the track
func (b *Backend) TopResults(track string, hash uint64, limit int) ([]core.RaceResult, error) {
	b.mu.RLock()
	var out []core.RaceResult
	for _, r := range b.results {
		if r.Track == track && r.TrackHash == hash {
			out = append(out, r)
		}
	}
	b.mu.RUnlock()

	if len(out) == 0 {
		return nil, storage.ErrNoResults
	}
	storage.Rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BestTime returns the fastest elapsed time for the track
func (b *Backend) BestTime(track string, hash uint64) (time.Duration, error) {
	top, err := b.TopResults(track, hash, 1)
	if err != nil {
		return 0, err
	}
	return top[0].Elapsed, nil
}

// GetExportedFilePath returns the path of the last export, or "" if none
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
