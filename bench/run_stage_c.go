package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ic-timon/kdindex/bench/gen"
	"github.com/ic-timon/kdindex/bench/metrics"
	"github.com/ic-timon/kdindex/internal/logging"
	"github.com/ic-timon/kdindex/kdtree"
)

// runStageC 高并发：同一棵树上混合范围查询与最近邻查询，再用批量接口跑一轮
func runStageC(ctx context.Context, opts stageOpts) error {
	const (
		pointCount  = 500_000
		queryCount  = 4000
		wantMatches = 16
	)
	logger := logging.FromContext(ctx)

	data := gen.RandomPoints(pointCount, opts.dim, 1, 12345)
	queries := gen.Queries(data, opts.dim, queryCount, 0.01, 12346)
	r2 := radiusFor(pointCount, opts.dim, wantMatches)

	buildStart := time.Now()
	idx, err := kdtree.BuildIndex(data, opts.dim, opts.kind, opts.cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	logger.Infow("阶段 C 构建完成",
		"points", pointCount,
		"build_ms", float64(time.Since(buildStart).Nanoseconds())/1e6,
		"pool_workers", opts.cfg.SearchPoolWorkers,
	)

	var rows []metrics.StageCRow
	for _, workers := range []int{1, 4, 8, 16, 32} {
		logger.Infow("阶段 C", "concurrency", workers)

		// 偶数下标做范围查询，奇数下标做最近邻
		lat := make([]time.Duration, queryCount)
		var g errgroup.Group
		g.SetLimit(workers)
		mixStart := time.Now()
		for i, q := range queries {
			i, q := i, q
			g.Go(func() error {
				t := time.Now()
				var err error
				if i%2 == 0 {
					_, err = idx.RangeSearch(q, r2, kdtree.RangeOptions{})
				} else {
					_, err = idx.Nearest(q, 0)
				}
				lat[i] = time.Since(t)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		mixQPS := queryCount / time.Since(mixStart).Seconds()
		stats := metrics.LatencyStatsFromDurations(lat)
		snap := metrics.Take()

		batchStart := time.Now()
		if _, err := idx.NearestBatch(ctx, queries, 0, workers); err != nil {
			return err
		}
		batchQPS := queryCount / time.Since(batchStart).Seconds()

		row := metrics.StageCRow{
			Concurrency:  workers,
			PointCount:   pointCount,
			QPS:          mixQPS,
			BatchQPS:     batchQPS,
			SearchP50Ms:  stats.P50Ms,
			SearchP99Ms:  stats.P99Ms,
			NumGoroutine: snap.NumGoroutine,
		}
		row.P99P50Ratio = row.TailRatio()
		rows = append(rows, row)
		fmt.Printf("  Mixed QPS=%.0f Batch QPS=%.0f P50=%.3fms P99=%.3fms P99/P50=%.2f\n",
			mixQPS, batchQPS, stats.P50Ms, stats.P99Ms, row.P99P50Ratio)
	}
	return writeReports(ctx, opts, "bench_report_stage_c_", rows)
}
