package gpkg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"flowmap.citybikes.dev/internal/logging"
)

// TableCounts returns the row count of every table in the file.
func (c *Client) TableCounts(ctx context.Context) (map[string]int, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, strings.ReplaceAll(table, `"`, `""`))
		if err := c.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}
	return counts, nil
}

// logTableCounts logs the row count of every table at debug level.
func (c *Client) logTableCounts(ctx context.Context) {
	logger := c.config.Logger
	if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	counts, err := c.TableCounts(ctx)
	if err != nil {
		logging.LogError(logger, "failed to count geopackage rows", err,
			slog.String("path", c.config.Path),
			slog.String("component", "gpkg"))
		return
	}
	logger.Debug("geopackage_tables",
		slog.String("path", c.config.Path),
		slog.Any("rows", counts))
}
