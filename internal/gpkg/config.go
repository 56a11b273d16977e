package gpkg

import "log/slog"

// Config holds configuration options for the Client
type Config struct {
	// Path is where the finished GeoPackage ends up.
	Path   string
	Logger *slog.Logger
}

func NewConfig(path string, logger *slog.Logger) Config {
	return Config{
		Path:   path,
		Logger: logger,
	}
}
