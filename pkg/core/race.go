package core

import "time"

// RaceState is the top-level state of the progress tracker.
type RaceState uint8

const (
	NotStarted RaceState = iota
	Racing
	Finished
)

func (s RaceState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Racing:
		return "racing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// LapState is the mutable lap bookkeeping for one race.
type LapState struct {
	CurrentLap        int    `json:"currentLap"`
	TotalLaps         int    `json:"totalLaps"`
	CheckpointsPassed []bool `json:"checkpointsPassed"`
	CanCountLap       bool   `json:"canCountLap"`
}

// AllCheckpointsPassed reports whether every checkpoint was entered this lap.
func (l LapState) AllCheckpointsPassed() bool {
	for _, p := range l.CheckpointsPassed {
		if !p {
			return false
		}
	}
	return true
}

// RaceResult is a finished race as stored on the leaderboard.
type RaceResult struct {
	ID         uint            `json:"id,omitempty"`
	SessionID  string          `json:"sessionId"`
	Player     string          `json:"player"`
	Track      string          `json:"track"`
	TrackHash  uint64          `json:"trackHash"`
	Elapsed    time.Duration   `json:"elapsed"`
	LapTimes   []time.Duration `json:"lapTimes"`
	Trail      string          `json:"trail,omitempty"` // WKT LINESTRING of the driven line
	FinishedAt time.Time       `json:"finishedAt"`
}
