package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/tivoli-arcade/gokart/internal/api"
	"github.com/tivoli-arcade/gokart/internal/config"
	"github.com/tivoli-arcade/gokart/internal/dispatcher"
	"github.com/tivoli-arcade/gokart/internal/geo"
	"github.com/tivoli-arcade/gokart/internal/influx"
	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/monitor"
	intOtel "github.com/tivoli-arcade/gokart/internal/otel"
	"github.com/tivoli-arcade/gokart/internal/session"
	"github.com/tivoli-arcade/gokart/internal/sim"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/internal/terrain"
	"github.com/tivoli-arcade/gokart/internal/util"
	"github.com/tivoli-arcade/gokart/internal/worker"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "gokart"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()
)

// restartDelay is how long the autopilot demo waits on the podium before
// starting the next race.
const restartDelay = 3 * time.Second

func main() {
	args := os.Args[1:]
	if len(args) > 0 && strings.ToLower(args[0]) == "leaderboard" {
		if err := runLeaderboard(args[1:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	flags := pflag.NewFlagSet(AppName, pflag.ExitOnError)
	configDir := flags.String("config-dir", ".", "directory containing "+config.FileName)
	flags.Bool("autopilot", false, "let the waypoint follower drive")
	flags.String("player", "", "player name for new races")
	flags.Bool("once", false, "exit after the first finished race")
	statusAddr := flags.String("status-addr", "", "serve the JSON status feed on this address")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(args)

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", AppName, CurrentVersion, BuildDate)
		return
	}

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}
	_ = viper.BindPFlag("sim.autopilot", flags.Lookup("autopilot"))
	if p := flags.Lookup("player"); p.Changed {
		viper.Set("player", p.Value.String())
	}
	once, _ := flags.GetBool("once")

	if err := run(*statusAddr, once); err != nil {
		Logger.Error("Exited with error", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging opens the session log file and wires slog to it, to OTel and
// to Graylog when configured. It returns the log file, or nil for stdout.
func setupLogging(sessions *session.Context) *os.File {
	level := viper.GetString("logLevel")
	logFile, err := logging.OpenLogFile(viper.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, logging to stdout: %v\n", err)
		logFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && logFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      logFile,
			MetricWriter:   logFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize OTel provider: %v\n", err)
			OTelProvider = nil
		}
	}

	if viper.GetBool("graylog.enabled") {
		if err := SlogManager.UseGraylog(viper.GetString("graylog.address")); err != nil {
			fmt.Fprintf(os.Stderr, "Graylog disabled: %v\n", err)
		}
	}
	SlogManager.UseContext(logging.SessionContext(sessions.Current))

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	var out io.Writer
	if logFile != nil {
		out = logFile
	}
	SlogManager.Setup(out, level, otelLogProvider)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	return logFile
}

func setupSentry() bool {
	dsn, env := config.SentryDSN()
	if dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     AppName + "@" + CurrentVersion,
	})
	if err != nil {
		Logger.Warn("Sentry disabled", "error", err)
		return false
	}
	return true
}

// buildSimulation assembles the simulation from config and starts loading
// the track artwork. It waits up to a few seconds for the artwork so the
// first race is keyed by the right fingerprint.
func buildSimulation(ctx context.Context) (*sim.Simulation, error) {
	trackCfg, err := config.GetTrackConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid track config: %w", err)
	}
	kartCfg := config.GetKartConfig()
	simCfg := config.GetSimConfig()

	classifier := terrain.NewClassifier(config.GetTerrainConfig())
	if trackCfg.Artwork != "" {
		select {
		case err := <-terrain.LoadAsync(ctx, classifier, trackCfg.Artwork):
			if err != nil {
				Logger.Warn("Track artwork not loaded, every surface counts as track", "path", trackCfg.Artwork, "error", err)
			} else {
				Logger.Info("Track artwork loaded", "path", trackCfg.Artwork, "hash", fmt.Sprintf("%016x", classifier.Raster().Fingerprint()))
			}
		case <-time.After(5 * time.Second):
			Logger.Warn("Track artwork still loading, starting without it", "path", trackCfg.Artwork)
		}
	}

	return sim.New(sim.Config{
		Track:             trackCfg.Definition,
		Params:            kartCfg.Params,
		Arena:             trackCfg.Arena,
		Extent:            kartCfg.Extent,
		Seed:              kartCfg.Seed,
		WallClockCooldown: simCfg.WallClockCooldown,
	}, classifier), nil
}

func setupInflux(ctx context.Context, zl zerolog.Logger) *influx.Manager {
	cfg := config.GetInfluxConfig()
	backup := filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("%s_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405")))
	mgr := influx.NewManager(zl, cfg, backup)
	if err := mgr.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Warn("Telemetry export disabled", "error", err)
		}
		return nil
	}
	return mgr
}

func setupAPI(ctx context.Context) *api.Client {
	key := viper.GetString("api.apiKey")
	if key == "" {
		return nil
	}
	client := api.New(viper.GetString("api.serverUrl"), key)
	hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Healthcheck(hctx); err != nil {
		Logger.Info("Score endpoint is offline", "error", err)
	} else {
		Logger.Info("Score endpoint is online")
	}
	return client
}

func run(statusAddr string, once bool) error {
	sessions := session.NewContext(config.GetSimConfig().Player)
	logFile := setupLogging(sessions)
	if logFile != nil {
		defer logFile.Close()
	}
	Logger.Info("Starting up", "version", CurrentVersion, "build", BuildDate)

	if setupSentry() {
		defer sentry.Flush(2 * time.Second)
	}

	var zlOut io.Writer = os.Stderr
	if logFile != nil {
		zlOut = logFile
	}
	level := viper.GetString("logLevel")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildSimulation(ctx)
	if err != nil {
		return err
	}

	backend, err := initStorage(config.GetStorageConfig(), logging.NewZerolog(zlOut, level, "database"))
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if e, ok := backend.(storage.Exportable); ok && e.GetExportedFilePath() != "" {
			Logger.Info("Leaderboard exported", "path", e.GetExportedFilePath())
		}
	}()

	influxMgr := setupInflux(ctx, logging.NewZerolog(zlOut, level, "influx"))
	if influxMgr != nil {
		defer influxMgr.Close()
	}

	simCfg := config.GetSimConfig()
	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(logging.NewZerolog(zlOut, level, "dispatcher")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Sim:         s,
		Session:     sessions,
		LogManager:  SlogManager,
		Influx:      influxMgr,
		API:         setupAPI(ctx),
		Trail:       geo.NewTrail(uint64(max(simCfg.TrailEvery, 1))),
		SampleEvery: uint64(max(config.GetInfluxConfig().SampleEvery, 1)),
	}, backend)
	workerManager.RegisterHandlers(eventDispatcher)
	workerManager.Bind(eventDispatcher)
	Logger.Info("Worker handlers registered with dispatcher")

	monDeps := monitor.Dependencies{
		Sim:           s,
		Session:       sessions,
		LogManager:    SlogManager,
		Dispatcher:    eventDispatcher,
		WorkerManager: workerManager,
		Influx:        influxMgr,
		StatusDir:     viper.GetString("logsDir"),
	}
	if ws, ok := streamDropCounter(backend); ok {
		monDeps.Stream = ws
	}
	monitorService := monitor.NewService(monDeps)
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}
	defer monitorService.Stop()

	if statusAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/status", monitorService)
		srv := &http.Server{Addr: statusAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Error("Status server stopped", "error", err)
			}
		}()
		defer srv.Close()
		Logger.Info("Serving status feed", "addr", statusAddr)
	}

	opts := []sim.RunnerOption{sim.WithLogger(Logger)}
	if simCfg.Autopilot {
		opts = append(opts, sim.WithAutopilot(sim.NewAutopilot(s.Tracker())))
	}
	runner, err := sim.NewRunner(s, simCfg.TickInterval, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readInput(ctx, cancel, os.Stdin, eventDispatcher)

	if simCfg.Autopilot {
		if _, err := eventDispatcher.Dispatch(dispatcher.Event{Command: dispatcher.CmdRaceStart, Timestamp: time.Now()}); err != nil {
			return fmt.Errorf("failed to start autopilot race: %w", err)
		}
	}

	err = drive(ctx, runner, s, eventDispatcher, simCfg.Autopilot, once)

	// Drain buffered telemetry before the sinks close.
	eventDispatcher.Close()
	if ferr := workerManager.FlushSamples(); ferr != nil {
		Logger.Warn("Failed to flush telemetry samples", "error", ferr)
	}
	if OTelProvider != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if serr := OTelProvider.Shutdown(shutdownCtx); serr != nil {
			Logger.Warn("OTel shutdown failed", "error", serr)
		}
	}
	defer SlogManager.Close(context.Background())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// drive runs races until ctx is cancelled. After a finish it waits for the
// next start; the autopilot restarts on its own.
func drive(ctx context.Context, runner *sim.Runner, s *sim.Simulation, d *dispatcher.Dispatcher, autopilot, once bool) error {
	for {
		if err := runner.Run(ctx); err != nil {
			return err
		}
		if once {
			return nil
		}

		if autopilot {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(restartDelay):
			}
			if _, err := d.Dispatch(dispatcher.Event{Command: dispatcher.CmdRaceRestart, Timestamp: time.Now()}); err != nil {
				Logger.Warn("Autopilot restart failed", "error", err)
			}
			continue
		}

		if err := waitForRace(ctx, s); err != nil {
			return err
		}
	}
}

// waitForRace blocks until the finished race is replaced by a new one.
func waitForRace(ctx context.Context, s *sim.Simulation) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.Tracker().State() != core.Finished {
				return nil
			}
		}
	}
}

// readInput turns control lines into dispatcher events. "quit" cancels the
// session; end of input leaves the simulation running.
func readInput(ctx context.Context, cancel context.CancelFunc, r io.Reader, d *dispatcher.Dispatcher) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			Logger.Info("Quit requested")
			cancel()
			return
		}
		if err := dispatchLine(d, line); err != nil {
			Logger.Warn("Input rejected", "line", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		Logger.Warn("Input closed with error", "error", err)
	}
}

func dispatchLine(d *dispatcher.Dispatcher, line string) error {
	cmd, args, err := util.ParseLine(line)
	if err != nil {
		return err
	}
	res, err := d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	if s, ok := res.(core.Session); ok {
		Logger.Info("Race session opened", "session", s.ID, "player", s.Player)
	}
	return nil
}
