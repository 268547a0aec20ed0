package storage

import (
	"errors"
	"sort"
	"time"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// ErrNoResults is returned when a track has no finished races yet.
var ErrNoResults = errors.New("no results for track")

// ErrUnknownSession is returned when a lap or result arrives for a session
// that was never started on the backend.
var ErrUnknownSession = errors.New("unknown race session")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Race management
	StartRace(s *core.Session, def core.TrackDefinition) error

	// Event recording
	RecordLap(l *core.LapCompleted) error
	RecordResult(r *core.RaceResult) error
}

// Leaderboard is implemented by backends that can answer ranking queries.
// Results are keyed by track name and raster fingerprint so a repainted
// track starts a fresh board.
type Leaderboard interface {
	TopResults(track string, hash uint64, limit int) ([]core.RaceResult, error)
	BestTime(track string, hash uint64) (time.Duration, error)
}

// PositionRecorder is implemented by backends that want every tick, such as
// the overlay stream.
type PositionRecorder interface {
	RecordPosition(p *core.PositionUpdate) error
}

// Exportable is implemented by backends that write a leaderboard file.
type Exportable interface {
	GetExportedFilePath() string
}

// Rank sorts results fastest first; ties go to the earlier finish.
func Rank(results []core.RaceResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Elapsed != results[j].Elapsed {
			return results[i].Elapsed < results[j].Elapsed
		}
		return results[i].FinishedAt.Before(results[j].FinishedAt)
	})
}

// RaceEnder is implemented by backends that track an open race and need to
// hear when it is abandoned without a result.
type RaceEnder interface {
	EndRace() error
}
