package gpkg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/models"
)

const NetFlowTable = "net_flow"

var netFlow = featureTable{
	name:         NetFlowTable,
	description:  "net bike flow per station and time bucket",
	geometryType: "POINT",
	ddl: `CREATE TABLE net_flow (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		geom BLOB,
		station_id INTEGER NOT NULL,
		time TEXT NOT NULL,
		departures INTEGER NOT NULL,
		returns INTEGER NOT NULL,
		net_flow INTEGER NOT NULL,
		log_net_flow REAL NOT NULL,
		volume INTEGER NOT NULL
	)`,
}

func (c *Client) WriteNetFlow(ctx context.Context, flows []models.NetFlow) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.config.Logger, "write_net_flow")

	if err := createFeatureTable(ctx, tx, netFlow); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO net_flow (
			geom, station_id, time, departures, returns, net_flow, log_net_flow, volume
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer logging.SafeCloseWithLogging(stmt, c.config.Logger, "net_flow_stmt")

	var ext extent
	for _, f := range flows {
		blob, err := EncodeGeometry(f.Coordinate, SRSWGS84)
		if err != nil {
			return fmt.Errorf("station %d: %w", f.StationID, err)
		}
		ext.add(f.Coordinate)

		_, err = stmt.ExecContext(ctx,
			blob, f.StationID, f.Time, f.Departures, f.Returns, f.NetFlow, f.LogNetFlow, f.Volume)
		if err != nil {
			return fmt.Errorf("error inserting net flow for station %d: %w", f.StationID, err)
		}
	}

	if err := updateExtent(ctx, tx, NetFlowTable, ext); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	logging.LogOperation(c.config.Logger, "net_flow_written",
		slog.Int("rows", len(flows)))
	return nil
}

func (c *Client) ReadNetFlow(ctx context.Context) ([]models.NetFlow, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT geom, station_id, time, departures, returns, net_flow, log_net_flow, volume
		FROM net_flow ORDER BY fid`)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows, c.config.Logger, "net_flow_rows")

	var out []models.NetFlow
	for rows.Next() {
		var (
			blob []byte
			f    models.NetFlow
		)
		err := rows.Scan(&blob, &f.StationID, &f.Time, &f.Departures, &f.Returns,
			&f.NetFlow, &f.LogNetFlow, &f.Volume)
		if err != nil {
			return nil, err
		}
		g, _, err := DecodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", f.StationID, err)
		}
		p, ok := g.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("station %d: %w: expected point, got %T", f.StationID, ErrInvalidGeometry, g)
		}
		f.Coordinate = p
		out = append(out, f)
	}
	return out, rows.Err()
}

// WriteNetFlowFile writes flows to a new GeoPackage at path.
func WriteNetFlowFile(ctx context.Context, path string, flows []models.NetFlow, logger *slog.Logger) (err error) {
	c, err := Create(ctx, NewConfig(path, logger))
	if err != nil {
		return err
	}
	defer logging.HandleDeferredError(&err, c.Close, logger, "close_net_flow")

	if err := c.WriteNetFlow(ctx, flows); err != nil {
		return err
	}
	c.logTableCounts(ctx)
	return c.Commit()
}
