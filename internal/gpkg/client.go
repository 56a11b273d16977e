// Package gpkg writes and reads the GeoPackage (OGC SQLite) files produced by the
// pipeline.
package gpkg

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"flowmap.citybikes.dev/internal/logging"
)

//go:embed schema.sql
var ddl string

// SRSWGS84 is the srs_id of EPSG:4326 longitude/latitude.
const SRSWGS84 = 4326

var ErrNotGeoPackage = errors.New("gpkg: not a GeoPackage")

// Client wraps one GeoPackage file.
type Client struct {
	config    Config
	DB        *sql.DB
	tmpPath   string
	committed bool
	closed    bool
}

// Create starts a new GeoPackage for config.Path. Rows go to a temp file in the
// same directory; Commit moves it into place and Close without Commit discards it.
func Create(ctx context.Context, config Config) (*Client, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(config.Path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	db, err := openDB(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return &Client{config: config, DB: db, tmpPath: tmpPath}, nil
}

// Open opens an existing GeoPackage for reading.
func Open(ctx context.Context, config Config) (*Client, error) {
	if _, err := os.Stat(config.Path); err != nil {
		return nil, err
	}

	db, err := openDB(config.Path)
	if err != nil {
		return nil, err
	}

	var appID int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrNotGeoPackage, config.Path, err)
	}
	if appID != applicationID {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s has application_id %d", ErrNotGeoPackage, config.Path, appID)
	}

	// a committed file is never renamed again
	return &Client{config: config, DB: db, committed: true}, nil
}

// applicationID is "GPKG" as a big-endian int32.
const applicationID = 0x47504B47

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	statements := strings.Split(ddl, "-- migrate")
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

// Commit closes the database and renames the temp file onto config.Path.
func (c *Client) Commit() error {
	if c.committed {
		return nil
	}
	if err := c.closeDB(); err != nil {
		return err
	}
	if err := os.Rename(c.tmpPath, c.config.Path); err != nil {
		return fmt.Errorf("rename %s: %w", c.config.Path, err)
	}
	c.committed = true

	logging.LogOperation(c.config.Logger, "geopackage_written",
		slog.String("path", c.config.Path))
	return nil
}

// Close releases the database. An uncommitted temp file is removed.
func (c *Client) Close() error {
	err := c.closeDB()
	if !c.committed && c.tmpPath != "" {
		if rmErr := os.Remove(c.tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		c.tmpPath = ""
	}
	return err
}

func (c *Client) closeDB() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.DB.Close()
}
