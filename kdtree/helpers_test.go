package kdtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomPoints(n, dim int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n*dim)
	for i := range out {
		out[i] = rng.Float64()*200 - 100
	}
	return out
}

// gridPoints draws coordinates from a few integer values so splits see many ties.
func gridPoints(n, dim, values int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n*dim)
	for i := range out {
		out[i] = float64(rng.Intn(values))
	}
	return out
}

// storedData returns the tree's points as float64 in original input order, the
// data set the tree answers queries for.
func storedData[S Scalar](tr *Tree[S]) []float64 {
	out := make([]float64, tr.Len()*tr.Dim())
	buf := make([]float64, 0, tr.Dim())
	for pos := 0; pos < tr.Len(); pos++ {
		p := tr.Point(pos, buf)
		copy(out[int(tr.Index(pos))*tr.Dim():], p)
	}
	return out
}

func testConfig(leaf int, geom Geometry, pack bool) *Config {
	cfg := DefaultConfig()
	cfg.LeafSize = leaf
	cfg.Geometry = geom
	cfg.PackSplitDims = pack
	return cfg
}

// forEachKind runs fn once per storage kind.
func forEachKind(t *testing.T, fn func(t *testing.T, kind Kind)) {
	for _, k := range []Kind{KindFloat64, KindFloat32, KindUint32, KindUint16} {
		t.Run(k.String(), func(t *testing.T) { fn(t, k) })
	}
}

// buildAny builds a tree of the given kind and returns it with the data set it stores.
func buildAny(t *testing.T, data []float64, ndim int, kind Kind, cfg *Config) (Index, []float64) {
	t.Helper()
	switch kind {
	case KindFloat64:
		tr, err := Build[float64](data, ndim, cfg)
		require.NoError(t, err)
		return tr, storedData(tr)
	case KindFloat32:
		tr, err := Build[float32](data, ndim, cfg)
		require.NoError(t, err)
		return tr, storedData(tr)
	case KindUint32:
		tr, err := Build[uint32](data, ndim, cfg)
		require.NoError(t, err)
		return tr, storedData(tr)
	default:
		tr, err := Build[uint16](data, ndim, cfg)
		require.NoError(t, err)
		return tr, storedData(tr)
	}
}
