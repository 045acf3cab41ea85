// 阶段 D: 对比纯内存、mmap 持久化加载与压缩镜像加载的检索性能（单棵树）
package main

import (
	"bytes"
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

func runStageD(ctx context.Context, opts stageOpts) error {
	const pointCount = 500_000
	const totalRequests = 2000
	const concurrency = 16
	const runs = 5 // 多轮取平均

	logger := logging.FromContext(ctx)
	data := gen.ClusteredPoints(pointCount, opts.dim, 32, 100, 2, 777)
	queries := gen.Queries(data, opts.dim, totalRequests, 0.5, 778)

	idxMem, err := kdtree.BuildIndex(data, opts.dim, opts.kind, opts.cfg)
	if err != nil {
		return err
	}
	defer idxMem.Close()

	var rows []metrics.StageDRow
	measure := func(mode string, idx kdtree.Index, size int64, loadDur time.Duration) error {
		var sumQps, sumP50, sumP99 float64
		for r := 0; r < runs; r++ {
			t0 := time.Now()
			if _, err := idx.NearestBatch(ctx, queries, 0, concurrency); err != nil {
				return err
			}
			elapsed := time.Since(t0)
			// 批量接口不给单次耗时，抽样逐条补测延迟分布
			durations := make([]time.Duration, len(queries)/4)
			for i, q := range queries[:len(durations)] {
				t1 := time.Now()
				if _, err := idx.Nearest(q, 0); err != nil {
					return err
				}
				durations[i] = time.Since(t1)
			}
			stats := metrics.LatencyStatsFromDurations(durations)
			sumQps += float64(len(queries)) / elapsed.Seconds()
			sumP50 += stats.P50Ms
			sumP99 += stats.P99Ms
		}
		row := metrics.StageDRow{
			Mode:      mode,
			Bytes:     size,
			LoadDurMs: float64(loadDur.Nanoseconds()) / 1e6,
			QPS:       sumQps / runs,
			P50Ms:     sumP50 / runs,
			P99Ms:     sumP99 / runs,
		}
		rows = append(rows, row)
		fmt.Printf("  %s Bytes=%d Load=%.2fms QPS=%.0f P50=%.3fms P99=%.3fms (avg of %d runs)\n",
			mode, size, row.LoadDurMs, row.QPS, row.P50Ms, row.P99Ms, runs)
		return nil
	}

	// 1. 纯内存
	logger.Infow("阶段 D: 纯内存模式")
	if err := measure("memory", idxMem, 0, 0); err != nil {
		return err
	}

	// 2. mmap：SaveToAtomic -> OpenIndex
	logger.Infow("阶段 D: mmap 持久化模式")
	tmpPath := filepath.Join(os.TempDir(), "kdindex-stage-d-index.kdt")
	if err := idxMem.SaveToAtomic(tmpPath); err != nil {
		return err
	}
	defer os.Remove(tmpPath)
	fi, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	t0 := time.Now()
	idxMmap, err := kdtree.OpenIndex(tmpPath, opts.cfg)
	if err != nil {
		return err
	}
	loadDur := time.Since(t0)
	if err := measure("mmap", idxMmap, fi.Size(), loadDur); err != nil {
		return err
	}
	_ = idxMmap.Close()

	// 3. 压缩镜像：zstd / lz4
	for _, codec := range []kdtree.Codec{kdtree.CodecZstd, kdtree.CodecLZ4} {
		logger.Infow("阶段 D: 压缩镜像模式", "codec", codec.String())
		var buf bytes.Buffer
		if err := idxMem.SaveCompressed(&buf, codec); err != nil {
			return err
		}
		size := int64(buf.Len())
		t1 := time.Now()
		idxZ, err := kdtree.LoadCompressedIndex(&buf, opts.cfg)
		if err != nil {
			return err
		}
		if err := measure(codec.String(), idxZ, size, time.Since(t1)); err != nil {
			return err
		}
		_ = idxZ.Close()
	}
	return writeReports(ctx, opts, "bench_report_stage_d_", rows)
}
