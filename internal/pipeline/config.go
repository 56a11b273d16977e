package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"flowmap.citybikes.dev/internal/appconf"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/router"
	"flowmap.citybikes.dev/internal/segments"
	"flowmap.citybikes.dev/internal/utils"
)

// DefaultMaxStationID drops the operator's maintenance and test stations.
const DefaultMaxStationID = 997

type Config struct {
	PairCountsPath    string
	GroupedCountsPath string
	StationsPath      string
	OutputDir         string
	// GraphCacheDir defaults to <OutputDir>/cache.
	GraphCacheDir string
	// LayersFile is a JSON list of layer definitions; empty selects the built-in set.
	LayersFile string

	NetworkType roadgraph.NetworkType
	// OSMFile, when set, replaces the Overpass download with a local extract.
	OSMFile          string
	OverpassEndpoint string

	BatchSize int
	Workers   int
	// Timeout bounds route computation; zero means no deadline.
	Timeout time.Duration

	Precision    int
	Tolerance    float64
	MaxStationID int64

	// ReuseRoutes skips routing when the journey routes file already exists.
	ReuseRoutes bool

	Env     appconf.Environment
	Verbose bool
}

func DefaultConfig() Config {
	return Config{
		OutputDir:    "data/processed",
		NetworkType:  roadgraph.NetworkBike,
		BatchSize:    router.DefaultBatchSize,
		Workers:      router.DefaultWorkers(),
		Precision:    models.DefaultPrecision,
		Tolerance:    segments.DefaultTolerance,
		MaxStationID: DefaultMaxStationID,
	}
}

func (c Config) Validate() error {
	if c.PairCountsPath == "" && !c.ReuseRoutes {
		return errors.New("pair counts path is required")
	}
	if c.GroupedCountsPath != "" && c.StationsPath == "" {
		return errors.New("stations path is required with grouped counts")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if _, err := roadgraph.ParseNetworkType(string(c.NetworkType)); err != nil {
		return err
	}
	if c.BatchSize < 0 || c.Workers < 0 {
		return fmt.Errorf("batch size and workers must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Precision < 0 || c.Precision > 15 {
		return fmt.Errorf("precision must be between 0 and 15, got %d", c.Precision)
	}
	if err := utils.ValidateTolerance(c.Tolerance); err != nil {
		return err
	}
	return nil
}

func (c Config) RoutesPath() string      { return filepath.Join(c.OutputDir, "journey_routes.gpkg") }
func (c Config) NetFlowCSVPath() string  { return filepath.Join(c.OutputDir, "net_flow.csv") }
func (c Config) NetFlowGPKGPath() string { return filepath.Join(c.OutputDir, "net_flow.gpkg") }
func (c Config) LayersDir() string       { return filepath.Join(c.OutputDir, "layers") }
func (c Config) SummaryPath() string     { return filepath.Join(c.OutputDir, SummaryFile) }

func (c Config) CacheDir() string {
	if c.GraphCacheDir != "" {
		return c.GraphCacheDir
	}
	return filepath.Join(c.OutputDir, "cache")
}
