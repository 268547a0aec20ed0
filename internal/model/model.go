package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ArcadeInfo{},
	&Track{},
	&RaceRecord{},
	&LapRecord{},
}

// ArcadeInfo describes the cabinet the leaderboard belongs to.
type ArcadeInfo struct {
	gorm.Model
	Name    string `json:"name" gorm:"size:127"`
	Website string `json:"website" gorm:"size:255"`
}

func (*ArcadeInfo) TableName() string {
	return "arcade_infos"
}

// Track is one race layout at one artwork version. The hash column holds the
// raster fingerprint bit-cast to a signed integer so every driver can store it.
type Track struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt   time.Time      `json:"createdAt"`
	Name        string         `json:"name" gorm:"size:127;uniqueIndex:idx_track_name_hash"`
	Hash        int64          `json:"hash" gorm:"uniqueIndex:idx_track_name_hash"`
	TotalLaps   int            `json:"totalLaps"`
	Checkpoints datatypes.JSON `json:"checkpoints"`
	FinishLine  datatypes.JSON `json:"finishLine"`
	Races       []RaceRecord   `json:"races"`
}

func (*Track) TableName() string {
	return "tracks"
}

// RaceRecord is one race attempt. FinishedAt stays null until the final lap
// is counted; abandoned attempts keep their laps but never rank.
type RaceRecord struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt  time.Time      `json:"createdAt"`
	TrackID    uint           `json:"trackId" gorm:"index:idx_race_track_elapsed,priority:1"`
	Track      Track          `gorm:"foreignkey:TrackID"`
	SessionID  string         `json:"sessionId" gorm:"size:36;uniqueIndex"`
	Player     string         `json:"player" gorm:"size:64;index"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt sql.NullTime   `json:"finishedAt" gorm:"index"`
	ElapsedMS  int64          `json:"elapsedMs" gorm:"index:idx_race_track_elapsed,priority:2"`
	LapSplits  datatypes.JSON `json:"lapSplits"`
	Trail      string         `json:"trail"`
	Laps       []LapRecord    `json:"laps"`
}

func (*RaceRecord) TableName() string {
	return "race_records"
}

// LapRecord is written as each lap is counted.
type LapRecord struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt    time.Time `json:"createdAt"`
	RaceRecordID uint      `json:"raceRecordId" gorm:"index"`
	Lap          int       `json:"lap"`
	LapTimeMS    int64     `json:"lapTimeMs"`
	ElapsedMS    int64     `json:"elapsedMs"`
}

func (*LapRecord) TableName() string {
	return "lap_records"
}
