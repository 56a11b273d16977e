// Package router computes shortest paths for many origin/destination pairs on a
// shared road graph using a fixed pool of workers.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/roadgraph"
)

var (
	// ErrInvalidRequest is returned before any work starts for malformed input.
	ErrInvalidRequest = errors.New("invalid route request")
	// ErrTimeout is returned when the overall deadline passes. No partial results
	// are returned with it.
	ErrTimeout = errors.New("route computation timed out")
)

const DefaultBatchSize = 4000

// DefaultWorkers leaves two cores to the rest of the machine.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-2)
}

// Result is the outcome for one pair. Nodes is nil when Found is false.
type Result struct {
	Nodes []int32
	Found bool
}

type Stats struct {
	Pairs       int
	Found       int
	Failed      int
	Batches     int
	FailureRate float64
	Duration    time.Duration
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pairs", s.Pairs),
		slog.Int("found", s.Found),
		slog.Int("failed", s.Failed),
		slog.Int("batches", s.Batches),
		slog.Float64("failure_rate", s.FailureRate),
		slog.Duration("duration", s.Duration),
	)
}

// Router splits a request into contiguous batches and runs them on Workers
// goroutines. Zero values select the defaults.
type Router struct {
	BatchSize int
	Workers   int
	// Timeout bounds the whole ComputeRoutes call when positive.
	Timeout time.Duration
	Logger  *slog.Logger

	// beforeBatch runs on the worker before a batch starts; tests use it to
	// perturb completion order.
	beforeBatch func(ctx context.Context, batch int)
}

type batch struct {
	index      int
	start, end int
}

// ComputeRoutes returns one Result per (origins[i], destinations[i]) in request
// order, whatever order the batches finish in. Unreachable pairs are reported as
// Found=false rather than as errors.
func (r *Router) ComputeRoutes(ctx context.Context, g *roadgraph.Graph, origins, destinations []int32) ([]Result, Stats, error) {
	if err := validate(g, origins, destinations); err != nil {
		return nil, Stats{}, err
	}

	batchSize := r.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 0 {
		return nil, Stats{}, fmt.Errorf("batch size %d: %w", batchSize, ErrInvalidRequest)
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	start := time.Now()
	n := len(origins)
	var batches []batch
	for lo := 0; lo < n; lo += batchSize {
		batches = append(batches, batch{index: len(batches), start: lo, end: min(lo+batchSize, n)})
	}
	workers = min(workers, max(1, len(batches)))

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logging.LogOperation(r.Logger, "routing_started",
		slog.String("component", "router"),
		slog.Int("pairs", n),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", batchSize),
		slog.Int("workers", workers))

	// each batch writes only its own slot
	slots := make([][]Result, len(batches))

	eg, egCtx := errgroup.WithContext(ctx)
	queue := make(chan batch)

	eg.Go(func() error {
		defer close(queue)
		for _, b := range batches {
			select {
			case queue <- b:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			s := newSearcher(g)
			for b := range queue {
				if r.beforeBatch != nil {
					r.beforeBatch(egCtx, b.index)
				}
				out, err := runBatch(egCtx, s, origins[b.start:b.end], destinations[b.start:b.end])
				if err != nil {
					return err
				}
				slots[b.index] = out
			}
			return egCtx.Err()
		})
	}

	if err := eg.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.LogError(r.Logger, "routing timed out", err,
				slog.String("component", "router"),
				slog.Duration("timeout", r.Timeout))
			return nil, Stats{}, fmt.Errorf("%w after %s: %w", ErrTimeout, r.Timeout, err)
		}
		return nil, Stats{}, err
	}

	results := make([]Result, 0, n)
	for _, slot := range slots {
		results = append(results, slot...)
	}

	stats := Stats{Pairs: n, Batches: len(batches), Duration: time.Since(start)}
	for _, res := range results {
		if res.Found {
			stats.Found++
		}
	}
	stats.Failed = n - stats.Found
	if n > 0 {
		stats.FailureRate = float64(stats.Failed) / float64(n)
	}

	logging.LogOperation(r.Logger, "routing_finished",
		slog.String("component", "router"),
		slog.Any("stats", stats))

	return results, stats, nil
}

func runBatch(ctx context.Context, s *searcher, origins, destinations []int32) ([]Result, error) {
	out := make([]Result, len(origins))
	for i := range origins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes, found, err := s.shortestPath(ctx, origins[i], destinations[i])
		if err != nil {
			return nil, err
		}
		out[i] = Result{Nodes: nodes, Found: found}
	}
	return out, nil
}

func validate(g *roadgraph.Graph, origins, destinations []int32) error {
	if g == nil {
		return fmt.Errorf("nil graph: %w", ErrInvalidRequest)
	}
	if len(origins) != len(destinations) {
		return fmt.Errorf("%d origins but %d destinations: %w", len(origins), len(destinations), ErrInvalidRequest)
	}
	n := int32(g.NumNodes())
	for i := range origins {
		if origins[i] < 0 || origins[i] >= n {
			return fmt.Errorf("origin %d at position %d outside [0, %d): %w", origins[i], i, n, ErrInvalidRequest)
		}
		if destinations[i] < 0 || destinations[i] >= n {
			return fmt.Errorf("destination %d at position %d outside [0, %d): %w", destinations[i], i, n, ErrInvalidRequest)
		}
	}
	return nil
}
