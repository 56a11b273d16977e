package app

import (
	"log/slog"

	"flowmap.citybikes.dev/internal/appconf"
)

// Application holds the dependencies shared by the preview server's handlers
// and middleware.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Catalog *Catalog
}

func New(config appconf.Config, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	return &Application{
		Config:  config,
		Logger:  logger,
		Catalog: NewCatalog(config.OutputDir),
	}
}
