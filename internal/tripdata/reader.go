// Package tripdata loads the CSV tables produced by the trip counting scripts:
// station pair counts, hourly grouped counts and station metadata.
package tripdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/utils"
)

// ErrMalformedRecord is returned for missing columns and unparsable or out of range values.
var ErrMalformedRecord = errors.New("malformed record")

const (
	colDepartureID = "Departure station id"
	colReturnID    = "Return station id"
	colCount       = "count"
	colTime        = "time"
	colXDep        = "x_dep"
	colYDep        = "y_dep"
	colXRet        = "x_ret"
	colYRet        = "y_ret"
	colStationID   = "ID"
	colX           = "x"
	colY           = "y"
)

// Options tune how rows are accepted.
type Options struct {
	// MaxStationID drops rows referencing ids at or above it (maintenance and test
	// stations). Zero keeps everything.
	MaxStationID int64
	Logger       *slog.Logger
}

func (o Options) keep(ids ...int64) bool {
	if o.MaxStationID <= 0 {
		return true
	}
	for _, id := range ids {
		if id >= o.MaxStationID {
			return false
		}
	}
	return true
}

// table is a header-indexed CSV stream.
type table struct {
	r      *csv.Reader
	source string
	idx    map[string]int
	line   int
}

func newTable(r io.Reader, source string, needed ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file: %w", source, ErrMalformedRecord)
		}
		return nil, fmt.Errorf("read %s header: %w", source, err)
	}

	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.TrimSpace(h)] = i
	}

	for _, k := range needed {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("%s csv missing column %q: %w", source, k, ErrMalformedRecord)
		}
	}

	return &table{r: cr, source: source, idx: idx, line: 1}, nil
}

// next returns the next row or io.EOF.
func (t *table) next() ([]string, error) {
	row, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read %s row: %w", t.source, err)
	}
	t.line++
	return row, nil
}

func (t *table) field(row []string, col string) (string, error) {
	i := t.idx[col]
	if i >= len(row) {
		return "", t.malformed(col, "missing value")
	}
	return strings.TrimSpace(row[i]), nil
}

func (t *table) int(row []string, col string) (int64, error) {
	s, err := t.field(row, col)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// pandas writes integer columns that once held NaN as "12.0"
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, t.malformed(col, fmt.Sprintf("invalid integer %q", s))
	}
	return int64(f), nil
}

func (t *table) float(row []string, col string) (float64, error) {
	s, err := t.field(row, col)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, t.malformed(col, fmt.Sprintf("invalid number %q", s))
	}
	return f, nil
}

func (t *table) point(row []string, xCol, yCol string) (orb.Point, error) {
	x, err := t.float(row, xCol)
	if err != nil {
		return orb.Point{}, err
	}
	y, err := t.float(row, yCol)
	if err != nil {
		return orb.Point{}, err
	}
	p := orb.Point{x, y}
	if err := utils.ValidateCoordinate(p); err != nil {
		return orb.Point{}, t.malformed(xCol+"/"+yCol, err.Error())
	}
	return p, nil
}

func (t *table) stationID(row []string, col string) (int64, error) {
	id, err := t.int(row, col)
	if err != nil {
		return 0, err
	}
	if err := utils.ValidateStationID(id); err != nil {
		return 0, t.malformed(col, err.Error())
	}
	return id, nil
}

func (t *table) count(row []string) (int64, error) {
	n, err := t.int(row, colCount)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, t.malformed(colCount, "count must be non-negative")
	}
	return n, nil
}

func (t *table) malformed(col, reason string) error {
	return fmt.Errorf("%s line %d column %q: %s: %w", t.source, t.line, col, reason, ErrMalformedRecord)
}

// ReadPairCounts parses the station pair table in file order.
func ReadPairCounts(r io.Reader, opts Options) ([]models.PairCount, error) {
	t, err := newTable(r, "station_pairs", colDepartureID, colReturnID, colCount, colXDep, colYDep, colXRet, colYRet)
	if err != nil {
		return nil, err
	}

	var out []models.PairCount
	skipped := 0
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var rec models.PairCount
		if rec.DepartureStationID, err = t.stationID(row, colDepartureID); err != nil {
			return nil, err
		}
		if rec.ReturnStationID, err = t.stationID(row, colReturnID); err != nil {
			return nil, err
		}
		if rec.Count, err = t.count(row); err != nil {
			return nil, err
		}
		if rec.Departure, err = t.point(row, colXDep, colYDep); err != nil {
			return nil, err
		}
		if rec.Return, err = t.point(row, colXRet, colYRet); err != nil {
			return nil, err
		}

		if !opts.keep(rec.DepartureStationID, rec.ReturnStationID) {
			skipped++
			continue
		}
		out = append(out, rec)
	}

	logging.LogOperation(opts.Logger, "station_pairs_loaded",
		slog.Int("records", len(out)),
		slog.Int("skipped", skipped))

	return out, nil
}

// ReadGroupedCounts parses the per time bucket table. The optional ids column is
// ignored; keys are recomputed from the two station ids.
func ReadGroupedCounts(r io.Reader, opts Options) ([]models.GroupedCount, error) {
	t, err := newTable(r, "grouped_counts", colDepartureID, colReturnID, colTime, colCount)
	if err != nil {
		return nil, err
	}

	var out []models.GroupedCount
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var rec models.GroupedCount
		if rec.DepartureStationID, err = t.stationID(row, colDepartureID); err != nil {
			return nil, err
		}
		if rec.ReturnStationID, err = t.stationID(row, colReturnID); err != nil {
			return nil, err
		}
		if rec.Time, err = t.field(row, colTime); err != nil {
			return nil, err
		}
		if rec.Time == "" {
			return nil, t.malformed(colTime, "empty time bucket")
		}
		if rec.Count, err = t.count(row); err != nil {
			return nil, err
		}

		if opts.keep(rec.DepartureStationID, rec.ReturnStationID) {
			out = append(out, rec)
		}
	}

	logging.LogOperation(opts.Logger, "grouped_counts_loaded", slog.Int("records", len(out)))

	return out, nil
}

// ReadStations parses station metadata. Columns other than ID, x and y are ignored.
// A repeated ID keeps its first row.
func ReadStations(r io.Reader, opts Options) ([]models.Station, error) {
	t, err := newTable(r, "stations", colStationID, colX, colY)
	if err != nil {
		return nil, err
	}

	var out []models.Station
	seen := make(map[int64]struct{})
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		id, err := t.stationID(row, colStationID)
		if err != nil {
			return nil, err
		}
		p, err := t.point(row, colX, colY)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, models.Station{ID: id, Coordinate: p})
	}

	logging.LogOperation(opts.Logger, "stations_loaded", slog.Int("stations", len(out)))

	return out, nil
}

// StationIndex maps station ids to coordinates.
func StationIndex(stations []models.Station) map[int64]orb.Point {
	idx := make(map[int64]orb.Point, len(stations))
	for _, s := range stations {
		idx[s.ID] = s.Coordinate
	}
	return idx
}

// LoadPairCounts opens path and reads it with ReadPairCounts.
func LoadPairCounts(path string, opts Options) (recs []models.PairCount, err error) {
	err = withFile(path, opts.Logger, func(r io.Reader) error {
		recs, err = ReadPairCounts(r, opts)
		return err
	})
	return recs, err
}

func LoadGroupedCounts(path string, opts Options) (recs []models.GroupedCount, err error) {
	err = withFile(path, opts.Logger, func(r io.Reader) error {
		recs, err = ReadGroupedCounts(r, opts)
		return err
	})
	return recs, err
}

func LoadStations(path string, opts Options) (stations []models.Station, err error) {
	err = withFile(path, opts.Logger, func(r io.Reader) error {
		stations, err = ReadStations(r, opts)
		return err
	})
	return stations, err
}

func withFile(path string, logger *slog.Logger, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer logging.SafeCloseWithLogging(f, logger, "close "+path)

	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
