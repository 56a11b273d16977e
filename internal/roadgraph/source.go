package roadgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"golang.org/x/time/rate"

	"flowmap.citybikes.dev/internal/logging"
)

const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// OverpassSource queries an Overpass API endpoint for the ways of a network type.
// Failed attempts are retried at most once per Limiter tick.
type OverpassSource struct {
	Endpoint    string
	Client      *http.Client
	Limiter     *rate.Limiter
	MaxAttempts int
	// Timeout is passed to the Overpass server as the query timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewOverpassSource returns a source with the defaults used by the pipeline: three
// attempts spaced at least ten seconds apart.
func NewOverpassSource(endpoint string, logger *slog.Logger) *OverpassSource {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	return &OverpassSource{
		Endpoint:    endpoint,
		Client:      &http.Client{Timeout: 5 * time.Minute},
		Limiter:     rate.NewLimiter(rate.Every(10*time.Second), 1),
		MaxAttempts: 3,
		Timeout:     180 * time.Second,
		Logger:      logger,
	}
}

// Query builds the Overpass QL request for bbox. Overpass expects
// (south, west, north, east).
func (s *OverpassSource) Query(bbox orb.Bound, networkType NetworkType) string {
	timeout := int(s.Timeout / time.Second)
	if timeout <= 0 {
		timeout = 180
	}
	return fmt.Sprintf("[out:xml][timeout:%d];(way%s(%f,%f,%f,%f);>;);out;",
		timeout,
		networkFilters[networkType].Overpass(),
		bbox.Min.Lat(), bbox.Min.Lon(), bbox.Max.Lat(), bbox.Max.Lon())
}

func (s *OverpassSource) Open(ctx context.Context, bbox orb.Bound, networkType NetworkType) (Scanner, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	form := url.Values{"data": {s.Query(bbox, networkType)}}.Encode()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("overpass: %w: %w", ErrNetworkUnavailable, err)
			}
		}

		body, err := s.post(ctx, client, form)
		if err == nil {
			return &bodyScanner{Scanner: osmxml.New(ctx, body), body: body}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		logging.LogError(s.Logger, "overpass request failed", err,
			slog.String("component", "overpass_source"),
			slog.String("endpoint", s.Endpoint),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts))

		var permanent *permanentError
		if errors.As(err, &permanent) {
			break
		}
	}

	return nil, fmt.Errorf("overpass %s: %w: %w", s.Endpoint, ErrNetworkUnavailable, lastErr)
}

// permanentError marks failures that a retry will not fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (s *OverpassSource) post(ctx context.Context, client *http.Client, form string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(form))
	if err != nil {
		return nil, &permanentError{err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()

	// Overpass signals load with 429 and 504; anything else will not improve on retry
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil, &permanentError{err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
}

// FileSource reads an OSM extract from disk. Files ending in .pbf are decoded as
// protobuf, everything else as OSM XML. The bbox is applied by Build.
type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context, _ orb.Bound, _ NetworkType) (Scanner, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}

	if strings.HasSuffix(strings.ToLower(s.Path), ".pbf") {
		scanner := osmpbf.New(ctx, f, runtime.GOMAXPROCS(0))
		scanner.SkipRelations = true
		return &bodyScanner{Scanner: scanner, body: f}, nil
	}

	return &bodyScanner{Scanner: osmxml.New(ctx, f), body: f}, nil
}

// ReaderSource wraps already loaded OSM XML.
type ReaderSource struct {
	Data []byte
}

func (s ReaderSource) Open(ctx context.Context, _ orb.Bound, _ NetworkType) (Scanner, error) {
	return osmxml.New(ctx, bytes.NewReader(s.Data)), nil
}

// bodyScanner closes the underlying stream together with the scanner.
type bodyScanner struct {
	Scanner
	body io.Closer
}

func (b *bodyScanner) Close() error {
	return errors.Join(b.Scanner.Close(), b.body.Close())
}
