package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"flowmap.citybikes.dev/internal/layers"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/pipeline"
	"flowmap.citybikes.dev/internal/utils"
)

var (
	// ErrNoRun means the output directory holds no finished pipeline run.
	ErrNoRun         = errors.New("no pipeline run found")
	ErrLayerNotFound = errors.New("layer not found")
)

// Catalog reads the artifacts of the latest pipeline run from the output
// directory. Every call goes to disk so a new run shows up without a restart.
type Catalog struct {
	dir string
}

func NewCatalog(outputDir string) *Catalog {
	return &Catalog{dir: outputDir}
}

func (c *Catalog) Summary() (models.RunSummary, error) {
	s, err := pipeline.ReadSummary(filepath.Join(c.dir, pipeline.SummaryFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, fmt.Errorf("%w in %s", ErrNoRun, c.dir)
	}
	return s, err
}

// Layers lists the layers of the latest run.
func (c *Catalog) Layers() ([]models.LayerInfo, error) {
	s, err := c.Summary()
	if err != nil {
		return nil, err
	}
	if s.Layers == nil {
		return []models.LayerInfo{}, nil
	}
	return s.Layers, nil
}

// Layer loads one layer by name. Only layers listed in the run summary are served.
func (c *Catalog) Layer(name string) (*geojson.FeatureCollection, error) {
	if err := utils.ValidateID(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLayerNotFound, err)
	}

	infos, err := c.Layers()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		fc, err := layers.Read(info.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s is missing on disk", ErrLayerNotFound, name)
		}
		return fc, err
	}
	return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
}
