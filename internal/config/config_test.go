package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"player": "ada",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "ada", viper.GetString("player"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./gokartlogs", viper.GetString("logsDir"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, "gokart", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "gokart", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// Defaults are still usable after a failed load.
	assert.Equal(t, "info", GetString("logLevel"))
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetTrackConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := GetTrackConfig()
	require.NoError(t, err)

	def := cfg.Definition
	assert.Equal(t, "oval", def.Name)
	assert.Equal(t, core.Pose{X: 440, Y: 90, Rotation: 270}, def.Start)
	assert.Equal(t, 3, def.TotalLaps)
	assert.Equal(t, []core.Checkpoint{
		{ID: 1, X: 150, Y: 300, Radius: 60},
		{ID: 2, X: 750, Y: 300, Radius: 60},
	}, def.Checkpoints)
	assert.Equal(t, core.Rect{X: 420, Y: 40, W: 40, H: 100}, def.FinishLine)
	assert.Equal(t, time.Second, def.LapCooldown)
	assert.Equal(t, core.Boundary{MaxX: 900, MaxY: 600}, cfg.Arena)
	assert.Empty(t, cfg.Artwork)
}

func TestGetTrackConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"track": {
			"name": "figure8",
			"start": "100,100,90",
			"laps": 5,
			"checkpoints": "[[10,10,5]]",
			"finishLine": { "x": 1, "y": 2, "w": 3, "h": 4 },
			"lapCooldown": "1500ms",
			"artwork": "/srv/figure8.png"
		}
	}`)))

	cfg, err := GetTrackConfig()
	require.NoError(t, err)
	assert.Equal(t, "figure8", cfg.Definition.Name)
	assert.Equal(t, 5, cfg.Definition.TotalLaps)
	assert.Len(t, cfg.Definition.Checkpoints, 1)
	assert.Equal(t, core.Rect{X: 1, Y: 2, W: 3, H: 4}, cfg.Definition.FinishLine)
	assert.Equal(t, 1500*time.Millisecond, cfg.Definition.LapCooldown)
	assert.Equal(t, "/srv/figure8.png", cfg.Artwork)
}

func TestGetTrackConfig_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"track.start", "nowhere"},
		{"track.checkpoints", "[[1,2]]"},
		{"track.laps", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			SetDefaults()
			viper.Set(tt.key, tt.value)

			_, err := GetTrackConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetKartConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := GetKartConfig()
	assert.Equal(t, core.KinematicParams{BaseSpeed: 4, Acceleration: 0.1, Deceleration: 0.2, RotationSpeed: 3}, cfg.Params)
	assert.Equal(t, core.Extent{W: 24, H: 24}, cfg.Extent)
	assert.Equal(t, uint64(1), cfg.Seed)
}

func TestGetTerrainConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"terrain": {"grassColor": [10, 200, 20], "onTrackPercent": 70}}`)))

	cfg := GetTerrainConfig()
	assert.Equal(t, color.RGBA{R: 10, G: 200, B: 20, A: 255}, cfg.GrassColor)
	assert.Equal(t, 70, cfg.OnTrackPercent)
	assert.Equal(t, 50, cfg.FallbackConfidence)
	assert.InDelta(t, 1.3, cfg.DominanceRatio, 1e-9)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./leaderboard", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Empty(t, cfg.SQLite.Path)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m", "path": "/tmp/board.db" }
		}
	}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, "/tmp/out", cfg.Memory.OutputDir)
	assert.Equal(t, false, cfg.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/board.db", cfg.SQLite.Path)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := GetOTelConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.True(t, cfg.Insecure)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("influx.host", "influx.local")

	cfg := GetInfluxConfig()
	assert.Equal(t, "http://influx.local:8086", cfg.URL)
	assert.Equal(t, "telemetry", cfg.Bucket)
	assert.Equal(t, 10, cfg.SampleEvery)
}

func TestGetSimConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := GetSimConfig()
	assert.Equal(t, 16*time.Millisecond, cfg.TickInterval)
	assert.False(t, cfg.Autopilot)
	assert.Equal(t, "anonymous", cfg.Player)
	assert.Equal(t, 10, cfg.TrailEvery)
}
