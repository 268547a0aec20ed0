// Package convert maps leaderboard rows to and from core types.
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/tivoli-arcade/gokart/internal/model"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// HashToColumn bit-casts a raster fingerprint for storage.
func HashToColumn(h uint64) int64 {
	return int64(h)
}

// ColumnToHash reverses HashToColumn.
func ColumnToHash(v int64) uint64 {
	return uint64(v)
}

// DurationsToJSON encodes lap splits as a JSON array of milliseconds.
func DurationsToJSON(d []time.Duration) datatypes.JSON {
	ms := make([]int64, len(d))
	for i, v := range d {
		ms[i] = v.Milliseconds()
	}
	raw, _ := json.Marshal(ms)
	return datatypes.JSON(raw)
}

// JSONToDurations decodes lap splits written by DurationsToJSON.
func JSONToDurations(raw datatypes.JSON) ([]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ms []int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, fmt.Errorf("decode lap splits: %w", err)
	}
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out, nil
}

// TrackFromDefinition builds the track row for a definition and raster fingerprint.
func TrackFromDefinition(def core.TrackDefinition, hash uint64) model.Track {
	checkpoints, _ := json.Marshal(def.Checkpoints)
	finish, _ := json.Marshal(def.FinishLine)
	return model.Track{
		Name:        def.Name,
		Hash:        HashToColumn(hash),
		TotalLaps:   def.TotalLaps,
		Checkpoints: datatypes.JSON(checkpoints),
		FinishLine:  datatypes.JSON(finish),
	}
}

// SessionToRecord creates the race row opened when a session starts.
func SessionToRecord(s core.Session, trackID uint) model.RaceRecord {
	return model.RaceRecord{
		TrackID:   trackID,
		SessionID: s.ID,
		Player:    s.Player,
		StartedAt: s.StartedAt,
		LapSplits: datatypes.JSON("[]"),
	}
}

// LapToRecord converts a counted lap.
func LapToRecord(l core.LapCompleted, raceID uint) model.LapRecord {
	return model.LapRecord{
		RaceRecordID: raceID,
		Lap:          l.Lap,
		LapTimeMS:    l.LapTime.Milliseconds(),
		ElapsedMS:    l.Elapsed.Milliseconds(),
	}
}

// ApplyResult copies a finished result onto an open race row.
func ApplyResult(rec *model.RaceRecord, r core.RaceResult) {
	rec.ElapsedMS = r.Elapsed.Milliseconds()
	rec.LapSplits = DurationsToJSON(r.LapTimes)
	rec.Trail = r.Trail
	rec.FinishedAt = sql.NullTime{Time: r.FinishedAt, Valid: true}
	if r.Player != "" {
		rec.Player = r.Player
	}
}

// RecordToResult converts a finished race row back to a leaderboard entry.
// The row must have its Track preloaded.
func RecordToResult(rec model.RaceRecord) (core.RaceResult, error) {
	laps, err := JSONToDurations(rec.LapSplits)
	if err != nil {
		return core.RaceResult{}, err
	}
	return core.RaceResult{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Player:     rec.Player,
		Track:      rec.Track.Name,
		TrackHash:  ColumnToHash(rec.Track.Hash),
		Elapsed:    time.Duration(rec.ElapsedMS) * time.Millisecond,
		LapTimes:   laps,
		Trail:      rec.Trail,
		FinishedAt: rec.FinishedAt.Time,
	}, nil
}
