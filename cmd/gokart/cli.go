package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tivoli-arcade/gokart/internal/api"
	"github.com/tivoli-arcade/gokart/internal/config"
	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/storage"
	"github.com/tivoli-arcade/gokart/internal/terrain"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// runLeaderboard prints the fastest races for the configured track and
// optionally uploads the exported leaderboard file.
func runLeaderboard(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("leaderboard", pflag.ContinueOnError)
	configDir := flags.String("config-dir", ".", "directory containing "+config.FileName)
	track := flags.String("track", "", "track name (defaults to track.name)")
	limit := flags.Int("limit", 10, "number of results to print")
	upload := flags.Bool("upload", false, "upload the exported leaderboard to api.serverUrl")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}

	trackCfg, err := config.GetTrackConfig()
	if err != nil {
		return fmt.Errorf("invalid track config: %w", err)
	}
	name := *track
	if name == "" {
		name = trackCfg.Definition.Name
	}
	hash, err := artworkHash(trackCfg.Artwork)
	if err != nil {
		return err
	}

	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == "websocket" {
		// The overlay stream keeps no history; its local mirror does.
		storageCfg.Type = "memory"
	}
	backend, err := createStorageBackend(storageCfg, logging.NewZerolog(os.Stderr, "warn", "database"))
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to open leaderboard: %w", err)
	}

	lb, ok := backend.(storage.Leaderboard)
	if !ok {
		_ = backend.Close()
		return fmt.Errorf("storage type %q keeps no leaderboard", storageCfg.Type)
	}
	results, err := lb.TopResults(name, hash, *limit)
	if err != nil && !errors.Is(err, storage.ErrNoResults) {
		_ = backend.Close()
		return fmt.Errorf("failed to query leaderboard: %w", err)
	}
	printLeaderboard(out, name, results)

	if err := backend.Close(); err != nil {
		return fmt.Errorf("failed to close leaderboard: %w", err)
	}

	if !*upload {
		return nil
	}
	exp, ok := backend.(storage.Exportable)
	if !ok || exp.GetExportedFilePath() == "" {
		return fmt.Errorf("storage type %q produced no export to upload", storageCfg.Type)
	}
	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.UploadLeaderboard(ctx, exp.GetExportedFilePath(), name); err != nil {
		return fmt.Errorf("failed to upload leaderboard: %w", err)
	}
	fmt.Fprintf(out, "Uploaded %s\n", exp.GetExportedFilePath())
	return nil
}

// artworkHash fingerprints the track artwork so results are read from the
// board of the current paint job. No artwork hashes to 0.
func artworkHash(path string) (uint64, error) {
	if path == "" {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open track artwork: %w", err)
	}
	defer f.Close()
	r, err := terrain.Decode(f)
	if err != nil {
		return 0, err
	}
	return r.Fingerprint(), nil
}

func printLeaderboard(out io.Writer, track string, results []core.RaceResult) {
	if len(results) == 0 {
		fmt.Fprintf(out, "No finished races on %s yet.\n", track)
		return
	}
	fmt.Fprintf(out, "Leaderboard for %s\n", track)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPLAYER\tTIME\tLAPS\tFINISHED")
	for i, r := range results {
		laps := make([]string, len(r.LapTimes))
		for j, l := range r.LapTimes {
			laps[j] = formatRaceTime(l)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i+1,
			r.Player,
			formatRaceTime(r.Elapsed),
			strings.Join(laps, " "),
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	w.Flush()
}

// formatRaceTime renders a duration as m:ss.mmm.
func formatRaceTime(d time.Duration) string {
	d = d.Round(time.Millisecond)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%d:%02d.%03d", m, s, d/time.Millisecond)
}
