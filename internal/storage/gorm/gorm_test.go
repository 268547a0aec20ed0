package gormstorage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/internal/database"
	"github.com/tivoli-arcade/gokart/internal/model"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend     = (*Backend)(nil)
	_ storage.Leaderboard = (*Backend)(nil)
)

var oval = core.TrackDefinition{
	Name:        "oval",
	TotalLaps:   2,
	Checkpoints: []core.Checkpoint{{ID: 1, X: 150, Y: 300, Radius: 60}},
	FinishLine:  core.Rect{X: 420, Y: 40, W: 40, H: 100},
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func race(t *testing.T, b *Backend, id, player string, hash uint64, laps ...time.Duration) *core.RaceResult {
	t.Helper()
	s := &core.Session{ID: id, Player: player, Track: "oval", TrackHash: hash, StartedAt: time.Now()}
	require.NoError(t, b.StartRace(s, oval))

	var elapsed time.Duration
	for i, l := range laps {
		elapsed += l
		require.NoError(t, b.RecordLap(&core.LapCompleted{SessionID: id, Lap: i + 1, LapTime: l, Elapsed: elapsed}))
	}
	res := &core.RaceResult{
		SessionID:  id,
		Player:     player,
		Track:      "oval",
		TrackHash:  hash,
		Elapsed:    elapsed,
		LapTimes:   laps,
		Trail:      "LINESTRING(440 90,150 300)",
		FinishedAt: time.Now(),
	}
	require.NoError(t, b.RecordResult(res))
	return res
}

func TestInitWithoutDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestStartRaceCreatesTrackOnce(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.StartRace(&core.Session{ID: "a", Track: "oval", TrackHash: 9}, oval))
	require.NoError(t, b.StartRace(&core.Session{ID: "b", Track: "oval", TrackHash: 9}, oval))
	require.NoError(t, b.StartRace(&core.Session{ID: "c", Track: "oval", TrackHash: 10}, oval))

	var tracks []model.Track
	require.NoError(t, b.DB().Find(&tracks).Error)
	assert.Len(t, tracks, 2, "one row per fingerprint")

	var races int64
	require.NoError(t, b.DB().Model(&model.RaceRecord{}).Count(&races).Error)
	assert.Equal(t, int64(3), races)
}

func TestRecordLapQueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartRace(&core.Session{ID: "s", Track: "oval"}, oval))

	require.NoError(t, b.RecordLap(&core.LapCompleted{SessionID: "s", Lap: 1, LapTime: time.Second, Elapsed: time.Second}))
	assert.Equal(t, 1, b.PendingLaps())

	var count int64
	require.NoError(t, b.DB().Model(&model.LapRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, b.Flush())
	assert.Zero(t, b.PendingLaps())

	var laps []model.LapRecord
	require.NoError(t, b.DB().Find(&laps).Error)
	require.Len(t, laps, 1)
	assert.Equal(t, int64(1000), laps[0].LapTimeMS)
}

func TestRecordLapUnknownSession(t *testing.T) {
	b := newTestBackend(t)
	err := b.RecordLap(&core.LapCompleted{SessionID: "nope", Lap: 1})
	assert.ErrorIs(t, err, storage.ErrUnknownSession)
}

func TestResultsOrderedByTime(t *testing.T) {
	b := newTestBackend(t)
	race(t, b, "s1", "slow", 7, 20*time.Second, 21*time.Second)
	race(t, b, "s2", "fast", 7, 15*time.Second, 14*time.Second)
	race(t, b, "s3", "mid", 7, 18*time.Second, 18*time.Second)
	race(t, b, "s4", "other-art", 8, 5*time.Second, 5*time.Second)

	top, err := b.TopResults("oval", 7, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "fast", top[0].Player)
	assert.Equal(t, "mid", top[1].Player)
	assert.Equal(t, "slow", top[2].Player)

	assert.Equal(t, 29*time.Second, top[0].Elapsed)
	assert.Equal(t, []time.Duration{15 * time.Second, 14 * time.Second}, top[0].LapTimes)
	assert.Equal(t, uint64(7), top[0].TrackHash)
	assert.Equal(t, "LINESTRING(440 90,150 300)", top[0].Trail)

	limited, err := b.TopResults("oval", 7, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	best, err := b.BestTime("oval", 7)
	require.NoError(t, err)
	assert.Equal(t, 29*time.Second, best)
}

func TestResultWritesLaps(t *testing.T) {
	b := newTestBackend(t)
	res := race(t, b, "s1", "p", 1, 10*time.Second, 11*time.Second)
	assert.NotZero(t, res.ID)

	var laps []model.LapRecord
	require.NoError(t, b.DB().Where("race_record_id = ?", res.ID).Order("lap").Find(&laps).Error)
	require.Len(t, laps, 2)
	assert.Equal(t, int64(21000), laps[1].ElapsedMS)
}

func TestUnfinishedRacesDoNotRank(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartRace(&core.Session{ID: "quit", Track: "oval", TrackHash: 3}, oval))

	_, err := b.TopResults("oval", 3, 5)
	assert.ErrorIs(t, err, storage.ErrNoResults)

	_, err = b.BestTime("missing", 3)
	assert.ErrorIs(t, err, storage.ErrNoResults)
}

func TestResultWithoutStart(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.RecordResult(&core.RaceResult{
		SessionID:  "late",
		Player:     "ghost",
		Track:      "oval",
		TrackHash:  4,
		Elapsed:    12 * time.Second,
		FinishedAt: time.Now(),
	}))

	best, err := b.BestTime("oval", 4)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, best)
}

func TestLargeHashRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	const hash = uint64(0xfedcba9876543210)
	race(t, b, "s1", "p", hash, time.Second)

	top, err := b.TopResults("oval", hash, 1)
	require.NoError(t, err)
	assert.Equal(t, hash, top[0].TrackHash)
}

func TestCloseFlushesQueuedLaps(t *testing.T) {
	db, err := database.GetSqliteDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRace(&core.Session{ID: "s", Track: "oval"}, oval))
	require.NoError(t, b.RecordLap(&core.LapCompleted{SessionID: "s", Lap: 1}))
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.LapRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
