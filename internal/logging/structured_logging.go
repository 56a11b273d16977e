// Package logging holds the JSON logging helpers shared by the pipeline and the
// preview server. Every line carries a component attribute; pipeline lines also
// carry the run_id of the run that produced them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"time"
)

type loggerKey struct{}

// NewStructuredLogger returns a JSON logger writing to w. Duration attributes
// are rendered as fractional milliseconds under "<key>_ms" so stage timings and
// request latencies share one unit.
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: durationsAsMillis,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func durationsAsMillis(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindDuration {
		return a
	}
	return slog.Float64(a.Key+"_ms", millis(a.Value.Duration()))
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// LogError logs err under message. A nil logger is ignored.
func LogError(logger *slog.Logger, message string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}

	args := make([]any, 0, len(attrs)+1)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}

	logger.Error(message, args...)
}

// LogOperation logs a completed operation such as graph_loaded or
// geopackage_written. Zero durations are dropped: cache hits and no-op stages
// would otherwise report a misleading 0ms.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Value.Kind() == slog.KindDuration && attr.Value.Duration() == 0 {
			continue
		}
		args = append(args, attr)
	}

	logger.Info(operation, args...)
}

// LogHTTPRequest logs one preview server request.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...slog.Attr) {
	if logger == nil {
		return
	}

	args := make([]any, 0, len(attrs)+4)
	args = append(args,
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs),
	)
	for _, attr := range attrs {
		args = append(args, attr)
	}

	logger.Info("http_request", args...)
}

// StartStage logs stage_started and returns a function that logs stage_finished
// with the elapsed duration plus any attributes passed to it.
func StartStage(logger *slog.Logger, stage string, attrs ...slog.Attr) func(...slog.Attr) {
	start := time.Now()
	LogOperation(logger, "stage_started", append([]slog.Attr{slog.String("stage", stage)}, attrs...)...)

	return func(extra ...slog.Attr) {
		finished := make([]slog.Attr, 0, len(attrs)+len(extra)+2)
		finished = append(finished, slog.String("stage", stage), slog.Duration("duration", time.Since(start)))
		finished = append(finished, attrs...)
		finished = append(finished, extra...)
		LogOperation(logger, "stage_finished", finished...)
	}
}

// WithLogger stores logger on ctx so stages below the pipeline (graph build,
// Overpass fetches) log with the run's attributes.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
