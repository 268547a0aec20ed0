package core

import "time"

// PositionUpdate is emitted once per tick after the pose is committed.
type PositionUpdate struct {
	Tick    uint64        `json:"tick"`
	Pose    Pose          `json:"pose"`
	Speed   float64       `json:"speed"`
	Terrain TerrainSample `json:"terrain"`
	Elapsed time.Duration `json:"elapsed"`
}

// LapCompleted is emitted when the lap counter advances.
type LapCompleted struct {
	SessionID string        `json:"sessionId"`
	Lap       int           `json:"lap"`
	LapTime   time.Duration `json:"lapTime"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RaceFinished is emitted once when the final lap is counted.
type RaceFinished struct {
	SessionID string          `json:"sessionId"`
	Elapsed   time.Duration   `json:"elapsed"`
	LapTimes  []time.Duration `json:"lapTimes"`
	BestTime  time.Duration   `json:"bestTime"`
	NewBest   bool            `json:"newBest"`
}

// Session identifies one race attempt by one player on one track.
type Session struct {
	ID        string    `json:"id"`
	Player    string    `json:"player"`
	Track     string    `json:"track"`
	TrackHash uint64    `json:"trackHash"`
	StartedAt time.Time `json:"startedAt"`
}
