package metrics

import (
	"runtime"
	"runtime/debug"
	"time"
)

// Snapshot 运行时指标快照
type Snapshot struct {
	TS           time.Time
	HeapAlloc    uint64
	HeapSys      uint64
	TotalAlloc   uint64
	Mallocs      uint64
	NumGC        uint32
	PauseTotal   time.Duration
	NumGoroutine int
}

// Take 采集当前运行时指标
func Take() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Snapshot{
		TS:           time.Now(),
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		TotalAlloc:   m.TotalAlloc,
		Mallocs:      m.Mallocs,
		NumGC:        m.NumGC,
		PauseTotal:   time.Duration(m.PauseTotalNs),
		NumGoroutine: runtime.NumGoroutine(),
	}
}

// GC 触发 GC 并释放回 OS
func GC() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Delta 两次快照之间的差值
type Delta struct {
	Elapsed    time.Duration
	AllocBytes uint64 // 累计分配字节，不受 GC 影响
	Allocs     uint64
	GCs        uint32
	GCPause    time.Duration
}

// AllocRate 返回分配速率（bytes/s）
func (d Delta) AllocRate() float64 {
	if d.Elapsed <= 0 {
		return 0
	}
	return float64(d.AllocBytes) / d.Elapsed.Seconds()
}

// Diff 计算 before 到 after 之间的分配量、GC 次数与停顿
func Diff(before, after Snapshot) Delta {
	d := Delta{Elapsed: after.TS.Sub(before.TS)}
	if after.TotalAlloc >= before.TotalAlloc {
		d.AllocBytes = after.TotalAlloc - before.TotalAlloc
	}
	if after.Mallocs >= before.Mallocs {
		d.Allocs = after.Mallocs - before.Mallocs
	}
	if after.NumGC >= before.NumGC {
		d.GCs = after.NumGC - before.NumGC
	}
	if after.PauseTotal >= before.PauseTotal {
		d.GCPause = after.PauseTotal - before.PauseTotal
	}
	return d
}
