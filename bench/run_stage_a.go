package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ic-timon/kdindex/bench/gen"
	"github.com/ic-timon/kdindex/bench/metrics"
	"github.com/ic-timon/kdindex/internal/logging"
	"github.com/ic-timon/kdindex/kdtree"
)

// runStageA 参数寻优：叶子大小 × 节点几何
func runStageA(ctx context.Context, opts stageOpts) error {
	const pointCount = 100_000
	const searchRuns = 500
	const wantMatches = 32

	logger := logging.FromContext(ctx)
	leafSizes := []int{4, 8, 16, 32, 64}
	geometries := []kdtree.Geometry{kdtree.GeometryBoundingBox, kdtree.GeometrySplitPlane}

	data := gen.RandomPoints(pointCount, opts.dim, 1, 42)
	queries := gen.Queries(data, opts.dim, searchRuns, 0.01, 43)
	r2 := radiusFor(pointCount, opts.dim, wantMatches)

	var rows []metrics.StageARow
	for _, geom := range geometries {
		for _, leaf := range leafSizes {
			logger.Infow("阶段 A", "geometry", geom.String(), "leaf", leaf)

			metrics.GC()
			before := metrics.Take()

			cfg := withCfg(opts.cfg, func(c *kdtree.Config) {
				c.LeafSize = leaf
				c.Geometry = geom
				c.PackSplitDims = geom == kdtree.GeometrySplitPlane && opts.kind.IsInteger()
			})
			t0 := time.Now()
			idx, err := kdtree.BuildIndex(data, opts.dim, opts.kind, cfg)
			if err != nil {
				return err
			}
			buildDur := time.Since(t0)

			// 检索延迟统计
			rangeDur := make([]time.Duration, searchRuns)
			nearDur := make([]time.Duration, searchRuns)
			var matches int
			for i, q := range queries {
				t1 := time.Now()
				res, err := idx.RangeSearch(q, r2, kdtree.RangeOptions{})
				rangeDur[i] = time.Since(t1)
				if err != nil {
					return err
				}
				matches += res.Len()

				t2 := time.Now()
				if _, err := idx.Nearest(q, 0); err != nil {
					return err
				}
				nearDur[i] = time.Since(t2)
			}
			rs := metrics.LatencyStatsFromDurations(rangeDur)
			ns := metrics.LatencyStatsFromDurations(nearDur)

			metrics.GC()
			after := metrics.Take()
			delta := metrics.Diff(before, after)
			logger.Debugw("阶段 A 运行时",
				"alloc_bps", delta.AllocRate(),
				"gc", delta.GCs,
				"gc_pause", delta.GCPause.String(),
			)

			rows = append(rows, metrics.StageARow{
				Kind:        opts.kind.String(),
				Geometry:    geom.String(),
				LeafSize:    leaf,
				PointCount:  pointCount,
				Dim:         opts.dim,
				BuildDurMs:  float64(buildDur.Nanoseconds()) / 1e6,
				RangeP50Ms:  rs.P50Ms,
				RangeP99Ms:  rs.P99Ms,
				NearestP50:  ns.P50Ms,
				NearestP99:  ns.P99Ms,
				AvgMatches:  float64(matches) / searchRuns,
				HeapAllocMB: float64(after.HeapAlloc) / 1024 / 1024,
				AllocMB:     float64(delta.AllocBytes) / 1024 / 1024,
				GCs:         delta.GCs,
			})
			fmt.Printf("  Build=%.0fms RangeP50=%.3fms P99=%.3fms NearestP50=%.3fms P99=%.3fms Matches=%.1f\n",
				rows[len(rows)-1].BuildDurMs, rs.P50Ms, rs.P99Ms, ns.P50Ms, ns.P99Ms, rows[len(rows)-1].AvgMatches)
			if err := idx.Close(); err != nil {
				return err
			}
		}
	}
	return writeReports(ctx, opts, "bench_report_stage_a_", rows)
}
