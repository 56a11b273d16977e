package gpkg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
)

// featureTable describes a user table with a "geom" column registered in
// gpkg_contents and gpkg_geometry_columns.
type featureTable struct {
	name         string
	description  string
	geometryType string
	ddl          string
}

// extent accumulates the bound of the non-nil geometries written to a table.
type extent struct {
	bound orb.Bound
	set   bool
}

func (e *extent) add(g orb.Geometry) {
	if g == nil {
		return
	}
	if !e.set {
		e.bound = g.Bound()
		e.set = true
		return
	}
	e.bound = e.bound.Union(g.Bound())
}

func (e extent) values() [4]sql.NullFloat64 {
	if !e.set {
		return [4]sql.NullFloat64{}
	}
	return [4]sql.NullFloat64{
		{Float64: e.bound.Min.X(), Valid: true},
		{Float64: e.bound.Min.Y(), Valid: true},
		{Float64: e.bound.Max.X(), Valid: true},
		{Float64: e.bound.Max.Y(), Valid: true},
	}
}

func createFeatureTable(ctx context.Context, tx *sql.Tx, t featureTable) error {
	if _, err := tx.ExecContext(ctx, t.ddl); err != nil {
		return fmt.Errorf("error creating table %s: %w", t.name, err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO gpkg_contents (table_name, data_type, identifier, description, srs_id)
		VALUES (?, 'features', ?, ?, ?)`,
		t.name, t.name, t.description, SRSWGS84)
	if err != nil {
		return fmt.Errorf("error registering %s in gpkg_contents: %w", t.name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, 'geom', ?, ?, 0, 0)`,
		t.name, t.geometryType, SRSWGS84)
	if err != nil {
		return fmt.Errorf("error registering %s geometry column: %w", t.name, err)
	}
	return nil
}

func updateExtent(ctx context.Context, tx *sql.Tx, table string, e extent) error {
	v := e.values()
	_, err := tx.ExecContext(ctx, `
		UPDATE gpkg_contents SET min_x = ?, min_y = ?, max_x = ?, max_y = ?
		WHERE table_name = ?`,
		v[0], v[1], v[2], v[3], table)
	if err != nil {
		return fmt.Errorf("error updating extent of %s: %w", table, err)
	}
	return nil
}

func encodeNullable(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return EncodeGeometry(g, SRSWGS84)
}

// Extent returns the bound recorded in gpkg_contents for table. ok is false when
// the table holds no geometry.
func (c *Client) Extent(ctx context.Context, table string) (b orb.Bound, ok bool, err error) {
	var v [4]sql.NullFloat64
	err = c.DB.QueryRowContext(ctx,
		"SELECT min_x, min_y, max_x, max_y FROM gpkg_contents WHERE table_name = ?", table,
	).Scan(&v[0], &v[1], &v[2], &v[3])
	if err != nil {
		return orb.Bound{}, false, err
	}
	if !v[0].Valid {
		return orb.Bound{}, false, nil
	}
	return orb.Bound{
		Min: orb.Point{v[0].Float64, v[1].Float64},
		Max: orb.Point{v[2].Float64, v[3].Float64},
	}, true, nil
}
