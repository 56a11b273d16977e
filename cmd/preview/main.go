// Command preview serves the layers and run summary of the latest pipeline run
// to a map renderer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"

	"flowmap.citybikes.dev/internal/app"
	"flowmap.citybikes.dev/internal/appconf"
	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/restapi"
	"flowmap.citybikes.dev/internal/webui"
)

func main() {
	if err := appconf.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.NewStructuredLogger(os.Stdout, cfg.Env.LogLevel())

	application := app.New(cfg, logger)
	api := restapi.NewRestAPI(application)
	defer api.Shutdown()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      routes(application, api),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, srv, logger, cfg); err != nil {
		logging.LogError(logger, "preview server failed", err, slog.String("component", "main"))
		os.Exit(1)
	}
}

func parseFlags(args []string) (appconf.Config, error) {
	var cfg appconf.Config
	var env string

	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", appconf.GetEnvInt("PORT", 4000), "Preview server port")
	fs.StringVar(&env, "env", appconf.GetEnv("FLOWMAP_ENV", "development"), "Environment (development|test|production)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", appconf.GetEnvInt("FLOWMAP_RATE_LIMIT", 100), "Requests per second per client (negative disables)")
	fs.StringVar(&cfg.OutputDir, "out", appconf.GetEnv("FLOWMAP_OUTPUT_DIR", "data/processed"), "Pipeline output directory to serve")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.Env = appconf.EnvFlagToEnvironment(env)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.OutputDir == "" {
		return cfg, errors.New("output directory is required")
	}
	return cfg, nil
}

func routes(application *app.Application, api *restapi.RestAPI) http.Handler {
	router := httprouter.New()
	api.SetRoutes(router)
	webui.New(application).SetWebUIRoutes(router)
	return api.Handler(router)
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger, cfg appconf.Config) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String(), "output_dir", cfg.OutputDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
