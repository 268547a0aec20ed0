// Package gormstorage implements the storage backend on any GORM dialect.
// Race rows are written synchronously; lap rows are queued and written in
// batches by a background goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tivoli-arcade/gokart/internal/database"
	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/model"
	"github.com/tivoli-arcade/gokart/internal/model/convert"
	"github.com/tivoli-arcade/gokart/internal/queue"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

const defaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// Backend implements storage.Backend and storage.Leaderboard using GORM.
type Backend struct {
	deps Dependencies
	laps *queue.Queue[model.LapRecord]

	mu    sync.Mutex
	races map[string]uint // session ID to race_records.id

	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:  deps,
		laps:  queue.New[model.LapRecord](),
		races: make(map[string]uint),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the lap writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}
	b.deps.LogManager.WriteLog("gorm:Init", "Migrating schema", "INFO")
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes any queued laps.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	return b.Flush()
}

func (b *Backend) writeLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.LogManager.WriteLog("gorm:writeLoop", fmt.Sprintf("Failed to write laps: %v", err), "ERROR")
			}
		}
	}
}

// Flush writes every queued lap row.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.laps.Empty() || b.deps.DB == nil {
		return nil
	}
	batch := b.laps.GetAndEmpty()
	if err := b.deps.DB.Create(&batch).Error; err != nil {
		return fmt.Errorf("failed to insert %d laps: %w", len(batch), err)
	}
	return nil
}

// PendingLaps returns the number of queued lap rows.
func (b *Backend) PendingLaps() int {
	return b.laps.Len()
}

// trackID gets or creates the track row for a name and fingerprint.
func (b *Backend) trackID(row model.Track) (uint, error) {
	err := b.deps.DB.
		Where("name = ? AND hash = ?", row.Name, row.Hash).
		FirstOrCreate(&row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get or insert track: %w", err)
	}
	return row.ID, nil
}

// StartRace opens a race row for the session.
func (b *Backend) StartRace(s *core.Session, def core.TrackDefinition) error {
	if def.Name == "" {
		def.Name = s.Track
	}
	trackID, err := b.trackID(convert.TrackFromDefinition(def, s.TrackHash))
	if err != nil {
		return err
	}

	rec := convert.SessionToRecord(*s, trackID)
	if err := b.deps.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert race: %w", err)
	}

	b.mu.Lock()
	b.races[s.ID] = rec.ID
	b.mu.Unlock()
	return nil
}

func (b *Backend) raceID(sessionID string) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.races[sessionID]
	return id, ok
}

// RecordLap queues a lap row for the session's race.
func (b *Backend) RecordLap(l *core.LapCompleted) error {
	id, ok := b.raceID(l.SessionID)
	if !ok {
		return storage.ErrUnknownSession
	}
	b.laps.Push(convert.LapToRecord(*l, id))
	return nil
}

// RecordResult completes the session's race row. A result for a session
// this backend never saw gets a fresh row.
func (b *Backend) RecordResult(r *core.RaceResult) error {
	if err := b.Flush(); err != nil {
		b.deps.LogManager.WriteLog("gorm:RecordResult", err.Error(), "WARN")
	}

	var rec model.RaceRecord
	id, ok := b.raceID(r.SessionID)
	if ok {
		if err := b.deps.DB.First(&rec, id).Error; err != nil {
			return fmt.Errorf("failed to load race %d: %w", id, err)
		}
	} else {
		trackID, err := b.trackID(model.Track{Name: r.Track, Hash: convert.HashToColumn(r.TrackHash)})
		if err != nil {
			return err
		}
		rec = convert.SessionToRecord(core.Session{
			ID:        r.SessionID,
			Player:    r.Player,
			StartedAt: r.FinishedAt.Add(-r.Elapsed),
		}, trackID)
	}

	convert.ApplyResult(&rec, *r)
	if err := b.deps.DB.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	r.ID = rec.ID

	b.mu.Lock()
	delete(b.races, r.SessionID)
	b.mu.Unlock()
	return nil
}

// TopResults returns the fastest finished races for the track.
func (b *Backend) TopResults(track string, hash uint64, limit int) ([]core.RaceResult, error) {
	var row model.Track
	err := b.deps.DB.Where("name = ? AND hash = ?", track, convert.HashToColumn(hash)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNoResults
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find track: %w", err)
	}

	q := b.deps.DB.Preload("Track").
		Where("track_id = ? AND finished_at IS NOT NULL", row.ID).
		Order("elapsed_ms ASC").
		Order("finished_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []model.RaceRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	if len(recs) == 0 {
		return nil, storage.ErrNoResults
	}

	out := make([]core.RaceResult, 0, len(recs))
	for _, rec := range recs {
		res, err := convert.RecordToResult(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// BestTime returns the fastest elapsed time for the track.
func (b *Backend) BestTime(track string, hash uint64) (time.Duration, error) {
	top, err := b.TopResults(track, hash, 1)
	if err != nil {
		return 0, err
	}
	return top[0].Elapsed, nil
}
