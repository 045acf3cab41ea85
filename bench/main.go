// 压测入口：-stage a|b|c|d
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/ic-timon/kdindex/bench/metrics"
	"github.com/ic-timon/kdindex/internal/logging"
	"github.com/ic-timon/kdindex/kdtree"
)

type stageOpts struct {
	kind    kdtree.Kind
	cfg     *kdtree.Config
	dim     int
	jsonOut bool
}

func main() {
	stage := flag.String("stage", "", "压测阶段: a(参数寻优) | b(规模扩展) | c(高并发) | d(内存 vs mmap vs 压缩)")
	kind := flag.String("kind", "float64", "存储类型: float64 | float32 | uint32 | uint16")
	geometry := flag.String("geometry", "", "内部节点几何: bbox | split（默认取环境变量 KDINDEX_GEOMETRY）")
	pool := flag.Int("pool", -1, "常驻检索 worker 数，>0 时查询走 worker 池（默认取 KDINDEX_SEARCH_POOL_WORKERS）")
	dim := flag.Int("dim", 3, "点的维度")
	level := flag.String("log-level", "info", "日志级别")
	dev := flag.Bool("dev", false, "开发模式日志（console 编码）")
	jsonOut := flag.Bool("json", false, "同时输出 JSON 报告")
	flag.Parse()

	logger := logging.NewLogger(*level, *dev)
	defer func() { _ = logger.Sync() }()
	ctx := logging.WithLogger(context.Background(), logger)

	cfg, err := kdtree.ConfigFromEnv("")
	if err != nil {
		logger.Fatalw("读取配置失败", "error", err)
	}
	cfg.Logger = logger.Named("kdtree")
	if *geometry != "" {
		if err := cfg.Geometry.UnmarshalText([]byte(*geometry)); err != nil {
			logger.Fatalw("参数错误", "geometry", *geometry, "error", err)
		}
	}
	if *pool >= 0 {
		cfg.SearchPoolWorkers = *pool
	}
	k, err := parseKind(*kind)
	if err != nil {
		logger.Fatalw("参数错误", "kind", *kind, "error", err)
	}
	if *dim <= 0 || *dim > kdtree.MaxDims {
		logger.Fatalw("参数错误", "dim", *dim, "max", kdtree.MaxDims)
	}
	opts := stageOpts{kind: k, cfg: cfg, dim: *dim, jsonOut: *jsonOut}
	logger.Infow("压测开始", "stage", *stage, "kind", k.String(), "geometry", cfg.Geometry.String(), "dim", *dim, "pool", cfg.SearchPoolWorkers)

	switch *stage {
	case "a":
		err = runStageA(ctx, opts)
	case "b":
		err = runStageB(ctx, opts)
	case "c":
		err = runStageC(ctx, opts)
	case "d":
		err = runStageD(ctx, opts)
	default:
		fmt.Fprintln(os.Stderr, "请指定 -stage a|b|c|d")
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalw("压测失败", "stage", *stage, "error", err)
	}
	fmt.Println("压测完成")
}

func parseKind(s string) (kdtree.Kind, error) {
	for _, k := range []kdtree.Kind{kdtree.KindFloat64, kdtree.KindFloat32, kdtree.KindUint32, kdtree.KindUint16} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// withCfg 复制一份配置，供各阶段按需修改
func withCfg(cfg *kdtree.Config, fn func(c *kdtree.Config)) *kdtree.Config {
	c := *cfg
	if fn != nil {
		fn(&c)
	}
	return &c
}

// radiusFor 估算单位立方体内均匀分布 n 个点时，平均命中 want 个点所需的半径平方
func radiusFor(n, dim, want int) float64 {
	// 近似：用超立方体体积代替超球体积，足够用于压测
	side := math.Pow(float64(want)/float64(n), 1/float64(dim))
	return side * side / 4
}

func writeReports[R metrics.Row](ctx context.Context, opts stageOpts, prefix string, rows []R) error {
	path := metrics.ReportPath(prefix, ".csv")
	if err := metrics.WriteCSV(rows, path); err != nil {
		return err
	}
	logging.FromContext(ctx).Infow("报告已写入", "path", path)
	if opts.jsonOut {
		jp := metrics.ReportPath(prefix, ".json")
		if err := metrics.WriteJSON(rows, jp); err != nil {
			return err
		}
		logging.FromContext(ctx).Infow("报告已写入", "path", jp)
	}
	return nil
}
