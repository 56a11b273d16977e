// Command pipeline turns aggregated bike-share journeys into routed flow map
// layers: it routes every station pair over the road network, writes the
// journey routes and net flow GeoPackages, and renders one GeoJSON file per
// configured layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flowmap.citybikes.dev/internal/appconf"
	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/pipeline"
	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/router"
)

func main() {
	if err := appconf.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := cfg.Env.LogLevel()
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logging.LogError(logger, "invalid configuration", err, slog.String("component", "main"))
		os.Exit(2)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		logging.LogError(logger, "pipeline run failed", err,
			slog.String("run_id", summary.RunID),
			slog.String("component", "main"))
		// Exit code 3 marks failures worth retrying later.
		if logging.IsOneOf(err, roadgraph.ErrNetworkUnavailable, router.ErrTimeout, context.Canceled) {
			os.Exit(3)
		}
		os.Exit(1)
	}

	logging.LogOperation(logger, "pipeline_run_complete",
		slog.String("run_id", summary.RunID),
		slog.String("summary", cfg.SummaryPath()))
}

func parseFlags(args []string) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)

	var env, network string
	var maxStation int

	fs.StringVar(&cfg.PairCountsPath, "pairs", appconf.GetEnv("FLOWMAP_PAIRS", ""), "CSV of journey counts per station pair")
	fs.StringVar(&cfg.GroupedCountsPath, "grouped", appconf.GetEnv("FLOWMAP_GROUPED", ""), "CSV of journey counts per station pair and time of day")
	fs.StringVar(&cfg.StationsPath, "stations", appconf.GetEnv("FLOWMAP_STATIONS", ""), "CSV of station coordinates")
	fs.StringVar(&cfg.OutputDir, "out", appconf.GetEnv("FLOWMAP_OUTPUT_DIR", cfg.OutputDir), "Output directory")
	fs.StringVar(&cfg.GraphCacheDir, "graph-cache", appconf.GetEnv("FLOWMAP_GRAPH_CACHE", ""), "Road graph cache directory (default <out>/cache)")
	fs.StringVar(&cfg.LayersFile, "layers", appconf.GetEnv("FLOWMAP_LAYERS", ""), "JSON file of layer definitions (default built-in set)")
	fs.StringVar(&network, "network", appconf.GetEnv("FLOWMAP_NETWORK", string(cfg.NetworkType)), "Road network type (bike|walk|drive|all)")
	fs.StringVar(&cfg.OSMFile, "osm-file", appconf.GetEnv("FLOWMAP_OSM_FILE", ""), "Local OSM XML extract used instead of Overpass")
	fs.StringVar(&cfg.OverpassEndpoint, "overpass", appconf.GetEnv("FLOWMAP_OVERPASS", roadgraph.DefaultOverpassEndpoint), "Overpass interpreter URL")
	fs.IntVar(&cfg.BatchSize, "batch-size", appconf.GetEnvInt("FLOWMAP_BATCH_SIZE", cfg.BatchSize), "Station pairs per routing batch")
	fs.IntVar(&cfg.Workers, "workers", appconf.GetEnvInt("FLOWMAP_WORKERS", cfg.Workers), "Concurrent routing workers")
	fs.DurationVar(&cfg.Timeout, "timeout", appconf.GetEnvDuration("FLOWMAP_TIMEOUT", 0), "Deadline for route computation (0 disables)")
	fs.IntVar(&cfg.Precision, "precision", appconf.GetEnvInt("FLOWMAP_PRECISION", cfg.Precision), "Decimal places kept on coordinates")
	fs.Float64Var(&cfg.Tolerance, "tolerance", appconf.GetEnvFloat("FLOWMAP_TOLERANCE", cfg.Tolerance), "Line simplification tolerance in degrees")
	fs.IntVar(&maxStation, "max-station-id", appconf.GetEnvInt("FLOWMAP_MAX_STATION_ID", int(cfg.MaxStationID)), "Drop stations with larger ids")
	fs.BoolVar(&cfg.ReuseRoutes, "reuse-routes", false, "Reuse the journey routes file from a previous run")
	fs.StringVar(&env, "env", appconf.GetEnv("FLOWMAP_ENV", "development"), "Environment (development|test|production)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Debug logging and per-layer detail")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	nt, err := roadgraph.ParseNetworkType(network)
	if err != nil {
		return cfg, err
	}
	cfg.NetworkType = nt
	cfg.MaxStationID = int64(maxStation)
	cfg.Env = appconf.EnvFlagToEnvironment(env)

	return cfg, cfg.Validate()
}
