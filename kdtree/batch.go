package kdtree

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ic-timon/kdindex/internal/logging"
)

// RangeSearchBatch runs one range search per query on up to workers goroutines
// (GOMAXPROCS when workers <= 0). Results are in query order. The first error,
// including cancellation of ctx, stops the remaining queries.
func (t *Tree[S]) RangeSearchBatch(ctx context.Context, queries [][]float64, maxD2 float64, opts RangeOptions, workers int) ([]*Result, error) {
	out := make([]*Result, len(queries))
	err := t.runBatch(ctx, len(queries), workers, func(i int) error {
		r, err := t.RangeSearch(queries[i], maxD2, opts)
		out[i] = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NearestBatch runs one nearest-neighbor query per query like RangeSearchBatch.
func (t *Tree[S]) NearestBatch(ctx context.Context, queries [][]float64, maxD2 float64, workers int) ([]Neighbor, error) {
	out := make([]Neighbor, len(queries))
	err := t.runBatch(ctx, len(queries), workers, func(i int) error {
		nb, err := t.Nearest(queries[i], maxD2)
		out[i] = nb
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree[S]) runBatch(ctx context.Context, n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := logging.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debugw("kdtree batch stopped", "queries", n, "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
