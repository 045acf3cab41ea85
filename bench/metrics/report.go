// Package metrics 采集运行时指标并输出各阶段报告（CSV / JSON）
package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats 延迟统计
type LatencyStats struct {
	P50Ms float64
	P95Ms float64
	P99Ms float64
	AvgMs float64
	N     int
}

// Row 报告中的一行，Header 与 Record 一一对应
type Row interface {
	Header() []string
	Record() []string
}

// StageARow 阶段 A 单行数据（参数寻优）
type StageARow struct {
	Kind        string
	Geometry    string
	LeafSize    int
	PointCount  int
	Dim         int
	BuildDurMs  float64
	RangeP50Ms  float64
	RangeP99Ms  float64
	NearestP50  float64
	NearestP99  float64
	AvgMatches  float64
	HeapAllocMB float64
	AllocMB     float64 // 构建加检索期间累计分配
	GCs         uint32
}

func (StageARow) Header() []string {
	return []string{"Kind", "Geometry", "LeafSize", "PointCount", "Dim", "BuildDurMs", "RangeP50Ms", "RangeP99Ms", "NearestP50Ms", "NearestP99Ms", "AvgMatches", "HeapAllocMB", "AllocMB", "GCs"}
}

func (r StageARow) Record() []string {
	return []string{
		r.Kind,
		r.Geometry,
		fmt.Sprintf("%d", r.LeafSize),
		fmt.Sprintf("%d", r.PointCount),
		fmt.Sprintf("%d", r.Dim),
		fmt.Sprintf("%.2f", r.BuildDurMs),
		fmt.Sprintf("%.4f", r.RangeP50Ms),
		fmt.Sprintf("%.4f", r.RangeP99Ms),
		fmt.Sprintf("%.4f", r.NearestP50),
		fmt.Sprintf("%.4f", r.NearestP99),
		fmt.Sprintf("%.1f", r.AvgMatches),
		fmt.Sprintf("%.2f", r.HeapAllocMB),
		fmt.Sprintf("%.2f", r.AllocMB),
		fmt.Sprintf("%d", r.GCs),
	}
}

// StageBRow 阶段 B 单行数据（规模扩展）
type StageBRow struct {
	PointCount int
	BuildDurMs float64
	FileMB     float64
	LoadDurMs  float64
	NearestP50 float64
	NearestP99 float64
	HeapSysMB  float64
}

func (StageBRow) Header() []string {
	return []string{"PointCount", "BuildDurMs", "FileMB", "LoadDurMs", "NearestP50Ms", "NearestP99Ms", "HeapSysMB"}
}

func (r StageBRow) Record() []string {
	return []string{
		fmt.Sprintf("%d", r.PointCount),
		fmt.Sprintf("%.2f", r.BuildDurMs),
		fmt.Sprintf("%.2f", r.FileMB),
		fmt.Sprintf("%.2f", r.LoadDurMs),
		fmt.Sprintf("%.4f", r.NearestP50),
		fmt.Sprintf("%.4f", r.NearestP99),
		fmt.Sprintf("%.2f", r.HeapSysMB),
	}
}

// StageCRow 阶段 C 单行数据（并发）
type StageCRow struct {
	Concurrency  int
	PointCount   int
	QPS          float64 // 范围与最近邻混合负载
	BatchQPS     float64 // NearestBatch
	SearchP50Ms  float64
	SearchP99Ms  float64
	NumGoroutine int
	P99P50Ratio  float64
}

// TailRatio 返回 P99/P50，P50 为 0 时返回 1
func (r StageCRow) TailRatio() float64 {
	if r.SearchP50Ms <= 0 {
		return 1
	}
	return r.SearchP99Ms / r.SearchP50Ms
}

func (StageCRow) Header() []string {
	return []string{"Concurrency", "PointCount", "MixedQPS", "BatchQPS", "SearchP50Ms", "SearchP99Ms", "NumGoroutine", "P99P50Ratio"}
}

func (r StageCRow) Record() []string {
	return []string{
		strconv.Itoa(r.Concurrency),
		strconv.Itoa(r.PointCount),
		strconv.FormatFloat(r.QPS, 'f', 2, 64),
		strconv.FormatFloat(r.BatchQPS, 'f', 2, 64),
		strconv.FormatFloat(r.SearchP50Ms, 'f', 4, 64),
		strconv.FormatFloat(r.SearchP99Ms, 'f', 4, 64),
		strconv.Itoa(r.NumGoroutine),
		strconv.FormatFloat(r.P99P50Ratio, 'f', 2, 64),
	}
}

// StageDRow 阶段 D 单行数据（内存 / mmap / 压缩加载对比）
type StageDRow struct {
	Mode      string
	Bytes     int64
	LoadDurMs float64
	QPS       float64
	P50Ms     float64
	P99Ms     float64
}

func (StageDRow) Header() []string {
	return []string{"Mode", "Bytes", "LoadDurMs", "QPS", "P50Ms", "P99Ms"}
}

func (r StageDRow) Record() []string {
	return []string{
		r.Mode,
		fmt.Sprintf("%d", r.Bytes),
		fmt.Sprintf("%.2f", r.LoadDurMs),
		fmt.Sprintf("%.2f", r.QPS),
		fmt.Sprintf("%.4f", r.P50Ms),
		fmt.Sprintf("%.4f", r.P99Ms),
	}
}

// LatencyStatsFromDurations 从耗时列表计算 P50/P95/P99（经验分位数）
func LatencyStatsFromDurations(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	ms := make([]float64, len(durations))
	for i, d := range durations {
		ms[i] = float64(d.Nanoseconds()) / 1e6
	}
	sort.Float64s(ms)
	return LatencyStats{
		P50Ms: stat.Quantile(0.50, stat.Empirical, ms, nil),
		P95Ms: stat.Quantile(0.95, stat.Empirical, ms, nil),
		P99Ms: stat.Quantile(0.99, stat.Empirical, ms, nil),
		AvgMs: stat.Mean(ms, nil),
		N:     len(ms),
	}
}

// WriteCSV 写入报告，表头取自第一行
func WriteCSV[R Row](rows []R, path string) error {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	var zero R
	if err := w.Write(zero.Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r.Record()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReportDir 报告输出目录
const ReportDir = "report"

// ReportPath 生成 report/ 目录下带日期的报告路径
func ReportPath(prefix, ext string) string {
	return filepath.Join(ReportDir, prefix+time.Now().Format("20060102")+ext)
}

// WriteJSON 写入 JSON 报告（通用）
func WriteJSON(v interface{}, path string) error {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
