package roadgraph

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
)

// artifactVersion is bumped whenever the encoded layout changes.
// Version 2 stopped storing component labels.
const artifactVersion = 2

type artifact struct {
	Version int
	Graph   *Graph
}

// Persist writes g to path as a zstd compressed gob stream. The file is written
// next to path and renamed into place, so a failed write never leaves a partial
// artifact behind.
func Persist(g *Graph, path string) (err error) {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to persist graph: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create graph directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp graph file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	stored := *g
	stored.Component = nil
	if err = gob.NewEncoder(enc).Encode(artifact{Version: artifactVersion, Graph: &stored}); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode graph: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("flush graph: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync graph file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close graph file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename graph file: %w", err)
	}
	return nil
}

// Load reads a graph written by Persist. A missing file is reported as is;
// anything undecodable or inconsistent wraps ErrCorruptGraphFile.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrCorruptGraphFile, err)
	}
	defer dec.Close()

	var a artifact
	if err := gob.NewDecoder(dec).Decode(&a); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrCorruptGraphFile, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("%s: %w: version %d, want %d", path, ErrCorruptGraphFile, a.Version, artifactVersion)
	}
	if a.Graph == nil {
		return nil, fmt.Errorf("%s: %w: no graph", path, ErrCorruptGraphFile)
	}
	if err := a.Graph.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrCorruptGraphFile, err)
	}
	a.Graph.Component = weakComponents(a.Graph)

	return a.Graph, nil
}

// CacheKey names the graph artifact for a region: the network type followed by
// the geohashes of the bbox corners. Boxes that differ by less than a geohash
// cell (about 5 m) share a key.
func CacheKey(bbox orb.Bound, networkType NetworkType) string {
	return fmt.Sprintf("%s_%s_%s",
		networkType,
		geohash.EncodeWithPrecision(bbox.Min.Lat(), bbox.Min.Lon(), 9),
		geohash.EncodeWithPrecision(bbox.Max.Lat(), bbox.Max.Lon(), 9))
}
