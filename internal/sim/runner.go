package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

const instrumentationName = "github.com/tivoli-arcade/gokart/internal/sim"

// Runner drives a Simulation at a fixed tick interval, the headless
// counterpart of a display refresh callback.
type Runner struct {
	sim       *Simulation
	interval  time.Duration
	autopilot *Autopilot
	logger    *slog.Logger

	ticks    metric.Int64Counter
	offTrack metric.Int64Counter
	tickTime metric.Float64Histogram
	speed    metric.Float64Gauge
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAutopilot lets the autopilot drive instead of latched input.
func WithAutopilot(a *Autopilot) RunnerOption {
	return func(r *Runner) {
		r.autopilot = a
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner. Metrics go to the global OTel meter.
func NewRunner(s *Simulation, interval time.Duration, opts ...RunnerOption) (*Runner, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", interval)
	}
	r := &Runner{sim: s, interval: interval, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	m := otel.Meter(instrumentationName)
	var err error
	r.ticks, err = m.Int64Counter("sim.ticks", metric.WithDescription("Simulation ticks executed"))
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	r.offTrack, err = m.Int64Counter("sim.ticks.off_track", metric.WithDescription("Ticks spent off the track"))
	if err != nil {
		return nil, fmt.Errorf("creating off-track counter: %w", err)
	}
	r.tickTime, err = m.Float64Histogram("sim.tick.duration",
		metric.WithDescription("Wall time spent computing one tick"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}
	r.speed, err = m.Float64Gauge("sim.kart.speed", metric.WithDescription("Kart speed in px per tick"))
	if err != nil {
		return nil, fmt.Errorf("creating speed gauge: %w", err)
	}
	return r, nil
}

// Step runs exactly one tick.
func (r *Runner) Step(ctx context.Context) core.Pose {
	if r.autopilot != nil {
		r.sim.ApplyControlState(r.autopilot.Decide(r.sim.Snapshot()))
	}

	start := time.Now()
	pose := r.sim.Tick(r.interval)
	r.tickTime.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	r.ticks.Add(ctx, 1)

	t := r.sim.TerrainState()
	if !t.IsOnTrack {
		r.offTrack.Add(ctx, 1)
	}
	r.speed.Record(ctx, r.sim.Snapshot().Speed, metric.WithAttributes(attribute.Bool("on_track", t.IsOnTrack)))
	return pose
}

// Run ticks until ctx is cancelled or the race finishes. A panic inside a
// tick is reported to Sentry and returned as an error.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sentry.CurrentHub().Recover(rec)
			sentry.Flush(2 * time.Second)
			err = fmt.Errorf("simulation panic: %v", rec)
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("simulation loop started", "interval", r.interval, "autopilot", r.autopilot != nil)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulation loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.Step(ctx)
			if r.sim.tracker.State() == core.Finished {
				r.logger.Info("race finished", "elapsed", r.sim.tracker.Elapsed())
				return nil
			}
		}
	}
}
