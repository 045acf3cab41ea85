package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ic-timon/kdindex/bench/gen"
	"github.com/ic-timon/kdindex/bench/metrics"
	"github.com/ic-timon/kdindex/internal/logging"
	"github.com/ic-timon/kdindex/kdtree"
)

// runStageB 规模扩展：构建 -> 持久化 -> mmap 加载 -> 检索
func runStageB(ctx context.Context, opts stageOpts) error {
	const searchRuns = 500

	logger := logging.FromContext(ctx)
	scales := []int{100_000, 500_000, 1_000_000, 2_000_000}

	var rows []metrics.StageBRow
	for _, n := range scales {
		logger.Infow("阶段 B", "points", n)

		data := gen.ClusteredPoints(n, opts.dim, 64, 1000, 5, int64(n))
		queries := gen.Queries(data, opts.dim, searchRuns, 1, int64(n)+1)

		metrics.GC()
		t0 := time.Now()
		idx, err := kdtree.BuildIndex(data, opts.dim, opts.kind, opts.cfg)
		if err != nil {
			return err
		}
		buildDur := time.Since(t0)

		tmp := opts.cfg.PersistPath
		if tmp == "" {
			tmp = filepath.Join(os.TempDir(), fmt.Sprintf("kdindex-stage-b-%d.kdt", n))
		}
		if err := idx.SaveToAtomic(tmp); err != nil {
			return err
		}
		_ = idx.Close()
		fi, err := os.Stat(tmp)
		if err != nil {
			return err
		}

		t1 := time.Now()
		loaded, err := kdtree.OpenIndex(tmp, opts.cfg)
		if err != nil {
			return err
		}
		loadDur := time.Since(t1)

		durations := make([]time.Duration, searchRuns)
		for i, q := range queries {
			t2 := time.Now()
			if _, err := loaded.Nearest(q, 0); err != nil {
				return err
			}
			durations[i] = time.Since(t2)
		}
		stats := metrics.LatencyStatsFromDurations(durations)
		_ = loaded.Close()
		_ = os.Remove(tmp)

		after := metrics.Take()
		rows = append(rows, metrics.StageBRow{
			PointCount: n,
			BuildDurMs: float64(buildDur.Nanoseconds()) / 1e6,
			FileMB:     float64(fi.Size()) / 1024 / 1024,
			LoadDurMs:  float64(loadDur.Nanoseconds()) / 1e6,
			NearestP50: stats.P50Ms,
			NearestP99: stats.P99Ms,
			HeapSysMB:  float64(after.HeapSys) / 1024 / 1024,
		})
		fmt.Printf("  Build=%.0fms File=%.1fMB Load=%.2fms NearestP50=%.3fms P99=%.3fms HeapSys=%.1fMB\n",
			rows[len(rows)-1].BuildDurMs, rows[len(rows)-1].FileMB, rows[len(rows)-1].LoadDurMs,
			stats.P50Ms, stats.P99Ms, rows[len(rows)-1].HeapSysMB)
	}
	return writeReports(ctx, opts, "bench_report_stage_b_", rows)
}
