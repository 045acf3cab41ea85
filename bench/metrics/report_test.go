package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyStats(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := LatencyStatsFromDurations(ds)
	assert.Equal(t, 100, s.N)
	assert.InDelta(t, 50, s.P50Ms, 1e-9)
	assert.InDelta(t, 99, s.P99Ms, 1)
	assert.InDelta(t, 50.5, s.AvgMs, 1e-9)

	assert.Zero(t, LatencyStatsFromDurations(nil).N)
}

func TestDiff(t *testing.T) {
	before := Snapshot{TS: time.Unix(10, 0), TotalAlloc: 1000, NumGC: 3}
	after := Snapshot{TS: time.Unix(12, 0), TotalAlloc: 5000, NumGC: 5, PauseTotal: time.Millisecond}
	d := Diff(before, after)
	assert.EqualValues(t, 4000, d.AllocBytes)
	assert.EqualValues(t, 2, d.GCs)
	assert.Equal(t, time.Millisecond, d.GCPause)
	assert.InDelta(t, 2000, d.AllocRate(), 1e-9)
	assert.Zero(t, Diff(after, after).AllocRate())
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.csv")
	rows := []StageCRow{{Concurrency: 4, PointCount: 10, SearchP50Ms: 2, SearchP99Ms: 5}}
	rows[0].P99P50Ratio = rows[0].TailRatio()
	require.NoError(t, WriteCSV(rows, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, StageCRow{}.Header(), recs[0])
	assert.Equal(t, "4", recs[1][0])
	assert.Equal(t, "2.50", recs[1][7])
}
