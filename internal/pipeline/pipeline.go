// Package pipeline runs the stages that turn trip counts into routed journeys,
// net flows and render-ready layers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/gpkg"
	"flowmap.citybikes.dev/internal/layers"
	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/netflow"
	"flowmap.citybikes.dev/internal/resolver"
	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/router"
	"flowmap.citybikes.dev/internal/routes"
	"flowmap.citybikes.dev/internal/segments"
	"flowmap.citybikes.dev/internal/tripdata"
)

// Pipeline owns one configured run.
type Pipeline struct {
	config Config
	source roadgraph.Source
	logger *slog.Logger
}

// New builds a pipeline that reads the road network from config.OSMFile or, when
// unset, from Overpass.
func New(config Config, logger *slog.Logger) (*Pipeline, error) {
	var src roadgraph.Source
	if config.OSMFile != "" {
		src = roadgraph.FileSource{Path: config.OSMFile}
	} else {
		src = roadgraph.NewOverpassSource(config.OverpassEndpoint, logger)
	}
	return NewWithSource(config, src, logger)
}

func NewWithSource(config Config, src roadgraph.Source, logger *slog.Logger) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if src == nil {
		return nil, errors.New("road network source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{config: config, source: src, logger: logger}, nil
}

// Run executes every stage in order and writes the run summary last. A failed
// stage stops the run; artifacts written by earlier stages are kept.
func (p *Pipeline) Run(ctx context.Context) (models.RunSummary, error) {
	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))
	ctx = logging.WithLogger(ctx, logger)

	summary := models.RunSummary{RunID: runID, StartedAt: time.Now().UTC()}
	finish := logging.StartStage(logger, "pipeline",
		slog.String("component", "pipeline"),
		slog.String("env", p.config.Env.String()),
		slog.String("network", string(p.config.NetworkType)))

	if err := p.run(ctx, logger, &summary); err != nil {
		logging.LogError(logger, "pipeline_failed", err, slog.String("component", "pipeline"))
		return summary, err
	}

	summary.FinishedAt = time.Now().UTC()
	if err := WriteSummary(p.config.SummaryPath(), summary); err != nil {
		return summary, fmt.Errorf("write run summary: %w", err)
	}

	finish(
		slog.Int("records", summary.Records),
		slog.Int("routes_found", summary.RoutesFound),
		slog.Int("routes_failed", summary.RoutesFailed),
		slog.Float64("failure_rate", summary.FailureRate),
		slog.Int("layers", len(summary.Layers)))
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, summary *models.RunSummary) error {
	// Definitions are read first so a bad file fails before any routing work.
	defs, err := layers.LoadDefinitions(p.config.LayersFile)
	if err != nil {
		return fmt.Errorf("load layer definitions: %w", err)
	}

	opts := tripdata.Options{MaxStationID: p.config.MaxStationID, Logger: logger}

	journeys, err := p.journeyRoutes(ctx, logger, opts, summary)
	if err != nil {
		return err
	}

	if p.config.GroupedCountsPath == "" {
		logging.LogOperation(logger, "grouped_counts_skipped",
			slog.String("component", "pipeline"))
		return nil
	}

	grouped, err := tripdata.LoadGroupedCounts(p.config.GroupedCountsPath, opts)
	if err != nil {
		return fmt.Errorf("load grouped counts: %w", err)
	}
	stations, err := tripdata.LoadStations(p.config.StationsPath, opts)
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	stationIndex := tripdata.StationIndex(stations)

	if err := p.netFlow(ctx, logger, grouped, stationIndex, summary); err != nil {
		return err
	}
	return p.layers(logger, defs, journeys, grouped, stationIndex, summary)
}

// journeyRoutes produces one JourneyRoute per pair-count record, routing each
// distinct station pair once.
func (p *Pipeline) journeyRoutes(ctx context.Context, logger *slog.Logger, opts tripdata.Options, summary *models.RunSummary) ([]models.JourneyRoute, error) {
	routesPath := p.config.RoutesPath()
	summary.RoutesPath = routesPath

	if p.config.ReuseRoutes {
		if _, err := os.Stat(routesPath); err == nil {
			finish := logging.StartStage(logger, "load_routes", slog.String("path", routesPath))
			journeys, err := gpkg.ReadJourneyRoutesFile(ctx, routesPath, logger)
			if err != nil {
				return nil, fmt.Errorf("read journey routes: %w", err)
			}
			summary.Records = len(journeys)
			finish(slog.Int("records", len(journeys)))
			return journeys, nil
		}
	}

	finish := logging.StartStage(logger, "load_pairs", slog.String("path", p.config.PairCountsPath))
	records, err := tripdata.LoadPairCounts(p.config.PairCountsPath, opts)
	if err != nil {
		return nil, fmt.Errorf("load pair counts: %w", err)
	}
	dedup, keys := routes.DeduplicatePairs(records)
	summary.Records = len(records)
	summary.UniquePairs = len(dedup)
	finish(slog.Int("records", len(records)), slog.Int("unique_pairs", len(dedup)))

	if len(dedup) == 0 {
		return nil, fmt.Errorf("no station pairs in %s", p.config.PairCountsPath)
	}

	bbox, err := routes.DepartureBound(dedup)
	if err != nil {
		return nil, err
	}
	g, artifact, err := p.graph(ctx, logger, bbox)
	if err != nil {
		return nil, err
	}
	summary.GraphNodes = g.NumNodes()
	summary.GraphEdges = g.NumEdges()
	summary.GraphArtifact = artifact

	finish = logging.StartStage(logger, "resolve_nodes")
	res, err := resolver.New(g)
	if err != nil {
		return nil, err
	}
	departures, returns := routes.Endpoints(dedup)
	origins, err := res.NearestNodes(departures)
	if err != nil {
		return nil, fmt.Errorf("resolve departures: %w", err)
	}
	destinations, err := res.NearestNodes(returns)
	if err != nil {
		return nil, fmt.Errorf("resolve returns: %w", err)
	}
	finish(slog.Int("pairs", len(origins)))

	finish = logging.StartStage(logger, "routing")
	r := &router.Router{
		BatchSize: p.config.BatchSize,
		Workers:   p.config.Workers,
		Timeout:   p.config.Timeout,
		Logger:    logger,
	}
	results, stats, err := r.ComputeRoutes(ctx, g, origins, destinations)
	if err != nil {
		return nil, fmt.Errorf("compute routes: %w", err)
	}
	summary.RoutesFound = stats.Found
	summary.RoutesFailed = stats.Failed
	summary.FailureRate = stats.FailureRate
	finish(slog.Any("stats", stats))

	finish = logging.StartStage(logger, "write_routes", slog.String("path", routesPath))
	index, err := routes.IndexGeometries(dedup, routes.ToGeometries(results, g))
	if err != nil {
		return nil, err
	}
	journeys := routes.BuildJourneyRoutes(records, keys, index)
	if err := gpkg.WriteJourneyRoutesFile(ctx, routesPath, journeys, logger); err != nil {
		return nil, fmt.Errorf("write journey routes: %w", err)
	}
	finish(slog.Int("rows", len(journeys)))

	return journeys, nil
}

// graph returns the road network for bbox, from the artifact cache when a graph
// for the same region and network type was built before.
func (p *Pipeline) graph(ctx context.Context, logger *slog.Logger, bbox orb.Bound) (*roadgraph.Graph, string, error) {
	nt := p.config.NetworkType
	path := filepath.Join(p.config.CacheDir(), roadgraph.CacheKey(bbox, nt)+".graph.zst")

	finish := logging.StartStage(logger, "load_graph",
		slog.String("network_type", string(nt)),
		slog.String("path", path))

	g, err := roadgraph.Load(path)
	switch {
	case err == nil:
		finish(slog.Bool("cache_hit", true), slog.Any("graph", g))
		return g, path, nil
	case errors.Is(err, roadgraph.ErrCorruptGraphFile):
		logger.Warn("discarding unreadable graph artifact",
			slog.String("path", path),
			slog.String("error", err.Error()))
	case !errors.Is(err, os.ErrNotExist):
		return nil, "", fmt.Errorf("load graph artifact: %w", err)
	}

	g, err = roadgraph.Build(ctx, p.source, bbox, nt)
	if err != nil {
		return nil, "", fmt.Errorf("build graph: %w", err)
	}
	if err := roadgraph.Persist(g, path); err != nil {
		return nil, "", fmt.Errorf("persist graph: %w", err)
	}
	finish(slog.Bool("cache_hit", false), slog.Any("graph", g))
	return g, path, nil
}

func (p *Pipeline) netFlow(ctx context.Context, logger *slog.Logger, grouped []models.GroupedCount, stations map[int64]orb.Point, summary *models.RunSummary) error {
	finish := logging.StartStage(logger, "net_flow")

	rows := netflow.Compute(grouped, stations)
	if err := netflow.WriteCSVFile(p.config.NetFlowCSVPath(), rows); err != nil {
		return fmt.Errorf("write net flow csv: %w", err)
	}
	if err := gpkg.WriteNetFlowFile(ctx, p.config.NetFlowGPKGPath(), rows, logger); err != nil {
		return fmt.Errorf("write net flow geopackage: %w", err)
	}

	summary.NetFlowRows = len(rows)
	summary.NetFlowPath = p.config.NetFlowCSVPath()
	finish(slog.Int("rows", len(rows)))
	return nil
}

func (p *Pipeline) layers(logger *slog.Logger, defs []layers.Definition, journeys []models.JourneyRoute, grouped []models.GroupedCount, stations map[int64]orb.Point, summary *models.RunSummary) error {
	finish := logging.StartStage(logger, "layers", slog.Int("definitions", len(defs)))

	lines := routes.LineIndex(journeys, p.config.Precision)
	records := segments.Join(grouped, lines)

	for _, def := range defs {
		l := layers.Build(def, records, stations, p.config.Tolerance, p.config.Precision)
		info, err := l.Write(p.config.LayersDir())
		if err != nil {
			return fmt.Errorf("write layer %s: %w", def.Name, err)
		}
		if p.config.Verbose {
			logging.LogOperation(logger, "layer_written",
				slog.String("layer", info.Name),
				slog.Int("features", info.FeatureCount))
		}
		summary.Layers = append(summary.Layers, info)
	}

	finish(slog.Int("flow_records", len(records)))
	return nil
}
