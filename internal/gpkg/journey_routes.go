package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/routes"
)

// JourneyRoutesTable holds one row per input record with the route of its
// station pair, or a NULL geometry when none was found.
const JourneyRoutesTable = "journey_routes"

var journeyRoutes = featureTable{
	name:         JourneyRoutesTable,
	description:  "bike-share journeys with their shortest network route",
	geometryType: "GEOMETRY",
	ddl: `CREATE TABLE journey_routes (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		geom BLOB,
		departure_station_id INTEGER NOT NULL,
		return_station_id INTEGER NOT NULL,
		count INTEGER NOT NULL,
		ids TEXT NOT NULL,
		polyline TEXT,
		x_dep REAL,
		y_dep REAL,
		x_ret REAL,
		y_ret REAL
	)`,
}

// WriteJourneyRoutes creates the journey_routes table and inserts journeys in order.
func (c *Client) WriteJourneyRoutes(ctx context.Context, journeys []models.JourneyRoute) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.config.Logger, "write_journey_routes")

	if err := createFeatureTable(ctx, tx, journeyRoutes); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journey_routes (
			geom, departure_station_id, return_station_id, count, ids, polyline,
			x_dep, y_dep, x_ret, y_ret
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer logging.SafeCloseWithLogging(stmt, c.config.Logger, "journey_routes_stmt")

	var ext extent
	for i, j := range journeys {
		blob, err := encodeNullable(j.Geometry)
		if err != nil {
			return fmt.Errorf("journey %d: %w", i, err)
		}
		var polyline sql.NullString
		if j.Geometry != nil {
			polyline = sql.NullString{String: routes.EncodePolyline(j.Geometry), Valid: true}
		}
		ext.add(j.Geometry)

		_, err = stmt.ExecContext(ctx,
			blob, j.DepartureStationID, j.ReturnStationID, j.Count, j.Key.String(), polyline,
			j.Departure.X(), j.Departure.Y(), j.Return.X(), j.Return.Y(),
		)
		if err != nil {
			return fmt.Errorf("error inserting journey %d: %w", i, err)
		}
	}

	if err := updateExtent(ctx, tx, JourneyRoutesTable, ext); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	logging.LogOperation(c.config.Logger, "journey_routes_written",
		slog.Int("rows", len(journeys)))
	return nil
}

// ReadJourneyRoutes returns the rows of journey_routes in insertion order.
func (c *Client) ReadJourneyRoutes(ctx context.Context) ([]models.JourneyRoute, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT geom, departure_station_id, return_station_id, count, ids, polyline,
			x_dep, y_dep, x_ret, y_ret
		FROM journey_routes ORDER BY fid`)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows, c.config.Logger, "journey_routes_rows")

	var out []models.JourneyRoute
	for rows.Next() {
		var (
			blob                   []byte
			ids                    string
			encoded                sql.NullString
			j                      models.JourneyRoute
			xDep, yDep, xRet, yRet sql.NullFloat64
		)
		err := rows.Scan(&blob, &j.DepartureStationID, &j.ReturnStationID, &j.Count, &ids, &encoded,
			&xDep, &yDep, &xRet, &yRet)
		if err != nil {
			return nil, err
		}

		if j.Key, err = models.ParsePairKey(ids); err != nil {
			return nil, err
		}
		if blob != nil {
			if j.Geometry, _, err = DecodeGeometry(blob); err != nil {
				return nil, fmt.Errorf("journey %d: %w", len(out), err)
			}
		}
		if err := checkPolyline(j.Geometry, encoded.String); err != nil {
			return nil, fmt.Errorf("journey %d: %w", len(out), err)
		}
		j.Departure = orb.Point{xDep.Float64, yDep.Float64}
		j.Return = orb.Point{xRet.Float64, yRet.Float64}
		out = append(out, j)
	}
	return out, rows.Err()
}

// checkPolyline verifies that the polyline column describes the same vertices
// as the geometry column.
func checkPolyline(geom orb.Geometry, encoded string) error {
	decoded, err := routes.DecodePolyline(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	want := 0
	switch g := geom.(type) {
	case orb.Point:
		want = 1
	case orb.LineString:
		want = len(g)
	}
	if len(decoded) != want {
		return fmt.Errorf("%w: polyline has %d points, geometry has %d", ErrInvalidGeometry, len(decoded), want)
	}
	return nil
}

// WriteJourneyRoutesFile writes journeys to a new GeoPackage at path.
func WriteJourneyRoutesFile(ctx context.Context, path string, journeys []models.JourneyRoute, logger *slog.Logger) (err error) {
	c, err := Create(ctx, NewConfig(path, logger))
	if err != nil {
		return err
	}
	defer logging.HandleDeferredError(&err, c.Close, logger, "close_journey_routes")

	if err := c.WriteJourneyRoutes(ctx, journeys); err != nil {
		return err
	}
	c.logTableCounts(ctx)
	return c.Commit()
}

// ReadJourneyRoutesFile reads the journey_routes table of the GeoPackage at path.
func ReadJourneyRoutesFile(ctx context.Context, path string, logger *slog.Logger) (journeys []models.JourneyRoute, err error) {
	c, err := Open(ctx, NewConfig(path, logger))
	if err != nil {
		return nil, err
	}
	defer logging.HandleDeferredError(&err, c.Close, logger, "close_journey_routes")

	return c.ReadJourneyRoutes(ctx)
}
