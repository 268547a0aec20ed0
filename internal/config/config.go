package config

import (
	"fmt"
	"image/color"
	"time"

	"github.com/spf13/viper"

	"github.com/tivoli-arcade/gokart/internal/geo"
	"github.com/tivoli-arcade/gokart/internal/terrain"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "gokart.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings. An empty Path keeps
// the database in memory and dumps it to OutputDir every DumpInterval.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebSocketConfig holds the overlay stream settings.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the leaderboard backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// OTelConfig configures the OpenTelemetry providers.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// InfluxConfig configures telemetry export.
type InfluxConfig struct {
	Enabled     bool
	URL         string
	Token       string
	Org         string
	Bucket      string
	SampleEvery int
}

// KartConfig is the vehicle tuning.
type KartConfig struct {
	Params core.KinematicParams
	Extent core.Extent
	Seed   uint64
}

// TrackConfig is the race layout plus where to find its artwork.
type TrackConfig struct {
	Definition core.TrackDefinition
	Arena      core.Boundary
	Artwork    string
}

// SimConfig controls the tick loop.
type SimConfig struct {
	TickInterval      time.Duration
	Autopilot         bool
	WallClockCooldown bool
	TrailEvery        int
	Player            string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; callers that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./gokartlogs")
	viper.SetDefault("player", "anonymous")
	viper.SetDefault("arcade.name", "Tivoli Arcade")
	viper.SetDefault("arcade.website", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "gokart")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "gokart-metrics")
	viper.SetDefault("influx.bucket", "telemetry")
	viper.SetDefault("influx.sampleEvery", 10)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "development")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./leaderboard")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "gokart")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "15s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("kart.baseSpeed", 4.0)
	viper.SetDefault("kart.acceleration", 0.1)
	viper.SetDefault("kart.deceleration", 0.2)
	viper.SetDefault("kart.rotationSpeed", 3.0)
	viper.SetDefault("kart.width", 24.0)
	viper.SetDefault("kart.height", 24.0)
	viper.SetDefault("kart.seed", 1)

	viper.SetDefault("arena.width", 900.0)
	viper.SetDefault("arena.height", 600.0)

	viper.SetDefault("track.name", "oval")
	viper.SetDefault("track.start", "440,90,270")
	viper.SetDefault("track.laps", 3)
	viper.SetDefault("track.checkpoints", "[[150,300,60],[750,300,60]]")
	viper.SetDefault("track.finishLine", map[string]any{"x": 420, "y": 40, "w": 40, "h": 100})
	viper.SetDefault("track.lapCooldown", "1s")
	viper.SetDefault("track.artwork", "")

	viper.SetDefault("terrain.grassColor", []int{90, 160, 60})
	viper.SetDefault("terrain.dominanceRatio", 1.3)
	viper.SetDefault("terrain.maxGrassDistance", 50.0)
	viper.SetDefault("terrain.onTrackPercent", 60)
	viper.SetDefault("terrain.fallbackConfidence", 50)

	viper.SetDefault("sim.tickInterval", "16ms")
	viper.SetDefault("sim.autopilot", false)
	viper.SetDefault("sim.wallClockCooldown", false)
	viper.SetDefault("sim.trailEvery", 10)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the leaderboard storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("api.serverUrl"),
			Secret: viper.GetString("api.apiKey"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the telemetry export settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:       viper.GetString("influx.token"),
		Org:         viper.GetString("influx.org"),
		Bucket:      viper.GetString("influx.bucket"),
		SampleEvery: viper.GetInt("influx.sampleEvery"),
	}
}

// GetKartConfig returns the vehicle tuning.
func GetKartConfig() KartConfig {
	return KartConfig{
		Params: core.KinematicParams{
			BaseSpeed:     viper.GetFloat64("kart.baseSpeed"),
			Acceleration:  viper.GetFloat64("kart.acceleration"),
			Deceleration:  viper.GetFloat64("kart.deceleration"),
			RotationSpeed: viper.GetFloat64("kart.rotationSpeed"),
		},
		Extent: core.Extent{
			W: viper.GetFloat64("kart.width"),
			H: viper.GetFloat64("kart.height"),
		},
		Seed: viper.GetUint64("kart.seed"),
	}
}

// GetTrackConfig returns the race layout. Malformed start poses or
// checkpoint lists are reported as errors.
func GetTrackConfig() (TrackConfig, error) {
	start, err := geo.PoseFromString(viper.GetString("track.start"))
	if err != nil {
		return TrackConfig{}, fmt.Errorf("track.start: %w", err)
	}
	checkpoints, err := geo.ParseCheckpoints(viper.GetString("track.checkpoints"))
	if err != nil {
		return TrackConfig{}, fmt.Errorf("track.checkpoints: %w", err)
	}
	var finish core.Rect
	if err := viper.UnmarshalKey("track.finishLine", &finish); err != nil {
		return TrackConfig{}, fmt.Errorf("track.finishLine: %w", err)
	}
	if _, err := geo.RectEnvelope(finish); err != nil {
		return TrackConfig{}, fmt.Errorf("track.finishLine: %w", err)
	}
	laps := viper.GetInt("track.laps")
	if laps < 1 {
		return TrackConfig{}, fmt.Errorf("track.laps must be at least 1, got %d", laps)
	}

	return TrackConfig{
		Definition: core.TrackDefinition{
			Name:        viper.GetString("track.name"),
			Start:       start,
			TotalLaps:   laps,
			Checkpoints: checkpoints,
			FinishLine:  finish,
			LapCooldown: viper.GetDuration("track.lapCooldown"),
		},
		Arena: core.Boundary{
			MaxX: viper.GetFloat64("arena.width"),
			MaxY: viper.GetFloat64("arena.height"),
		},
		Artwork: viper.GetString("track.artwork"),
	}, nil
}

// GetTerrainConfig returns the classifier tuning.
func GetTerrainConfig() terrain.Config {
	cfg := terrain.Config{
		GrassColor:         terrain.DefaultConfig.GrassColor,
		DominanceRatio:     viper.GetFloat64("terrain.dominanceRatio"),
		MaxGrassDistance:   viper.GetFloat64("terrain.maxGrassDistance"),
		OnTrackPercent:     viper.GetInt("terrain.onTrackPercent"),
		FallbackConfidence: viper.GetInt("terrain.fallbackConfidence"),
	}
	if rgb := viper.GetIntSlice("terrain.grassColor"); len(rgb) == 3 {
		cfg.GrassColor = color.RGBA{R: uint8(rgb[0]), G: uint8(rgb[1]), B: uint8(rgb[2]), A: 255}
	}
	return cfg
}

// GetSimConfig returns the tick loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickInterval:      viper.GetDuration("sim.tickInterval"),
		Autopilot:         viper.GetBool("sim.autopilot"),
		WallClockCooldown: viper.GetBool("sim.wallClockCooldown"),
		TrailEvery:        viper.GetInt("sim.trailEvery"),
		Player:            viper.GetString("player"),
	}
}

// SentryDSN returns the Sentry DSN and environment. An empty DSN disables
// error reporting.
func SentryDSN() (string, string) {
	return viper.GetString("sentry.dsn"), viper.GetString("sentry.environment")
}
