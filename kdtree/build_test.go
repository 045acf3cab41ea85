package kdtree

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioData = []float64{5, 9, 84, 7, 56, 4, 8, 4, 33, 120}

func TestBuildScenario(t *testing.T) {
	tr, err := Build[float64](scenarioData, 1, testConfig(2, GeometryBoundingBox, false))
	require.NoError(t, err)
	require.NoError(t, tr.Check())
	assert.Equal(t, 10, tr.Len())
	assert.Equal(t, 3, tr.Levels())

	// leaves partition the sorted data; order inside a leaf is free
	buf := make([]float64, 0, 1)
	var sorted []float64
	for k := 0; k < tr.Layout().NBottom; k++ {
		lo, hi := tr.Layout().LeafRange(k)
		var leaf []float64
		for pos := lo; pos <= hi; pos++ {
			leaf = append(leaf, tr.Point(pos, buf)[0])
		}
		sort.Float64s(leaf)
		sorted = append(sorted, leaf...)
	}
	assert.Equal(t, []float64{4, 4, 5, 7, 8, 9, 33, 56, 84, 120}, sorted)

	res, err := tr.RangeSearch([]float64{33}, 9.2, RangeOptions{ComputeDistances: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, uint32(8), res.Indices[0])
	assert.Equal(t, 0.0, res.Distances[0])
}

func TestBuildScenarioAllKinds(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind Kind) {
		for _, geom := range []Geometry{GeometryBoundingBox, GeometrySplitPlane} {
			idx, _ := buildAny(t, scenarioData, 1, kind, testConfig(2, geom, false))
			require.NoError(t, idx.Check())
			res, err := idx.RangeSearch([]float64{33}, 9.2, RangeOptions{})
			require.NoError(t, err)
			require.Equal(t, 1, res.Len(), geom.String())
			assert.Equal(t, uint32(8), res.Indices[0])

			nb, err := idx.Nearest([]float64{30}, 0)
			require.NoError(t, err)
			require.True(t, nb.Found)
			assert.Equal(t, uint32(8), nb.Index)
		}
	})
}

func TestBuildErrors(t *testing.T) {
	_, err := Build[float64](nil, 2, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Build[float64]([]float64{1, 2, 3}, 2, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	cfg := DefaultConfig()
	cfg.Levels = 9
	_, err = Build[float64](scenarioData, 1, cfg)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	_, err = Build[float64](make([]float64, 17*2), 17, nil)
	assert.ErrorIs(t, err, ErrAllocationFailed)

	_, err = Build[float32](scenarioData, 1, testConfig(2, GeometrySplitPlane, true))
	assert.Error(t, err)
}

func TestBuildStrictQuantization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuantMin = []float64{0}
	cfg.QuantMax = []float64{50}
	cfg.StrictQuantization = true
	_, err := Build[uint16](scenarioData, 1, cfg)
	assert.ErrorIs(t, err, ErrQuantizationOverflow)

	cfg.StrictQuantization = false
	tr, err := Build[uint16](scenarioData, 1, cfg)
	require.NoError(t, err)
	// 56, 84 and 120 are clamped to the top of the range
	assert.Equal(t, 3, tr.Clamped())
	require.NoError(t, tr.Check())
}

func TestBuildNonFiniteQuantized(t *testing.T) {
	data := []float64{0, 1, 2, 3, 4, 5, 6, math.Inf(1), math.NaN(), math.Inf(-1)}
	for _, kind := range []Kind{KindUint16, KindUint32} {
		t.Run(kind.String(), func(t *testing.T) {
			idx, stored := buildAny(t, data, 1, kind, testConfig(2, GeometryBoundingBox, false))
			tr := idx.(interface{ Clamped() int })
			assert.Equal(t, 3, tr.Clamped())
			require.NoError(t, idx.Check())
			for _, v := range stored {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
			// +Inf lands on the top of the range, NaN and -Inf on the bottom
			assert.Equal(t, 6.0, stored[7])
			assert.Equal(t, 0.0, stored[8])
			assert.Equal(t, 0.0, stored[9])

			nb, err := idx.Nearest([]float64{3}, 0)
			require.NoError(t, err)
			assert.True(t, nb.Found)
			assert.EqualValues(t, 3, nb.Index)
			assert.InDelta(t, 0, nb.Dist2, 1e-6)
		})
	}

	cfg := testConfig(2, GeometryBoundingBox, false)
	cfg.StrictQuantization = true
	_, err := Build[uint16](data, 1, cfg)
	assert.ErrorIs(t, err, ErrQuantizationOverflow)

	// no finite value at all in dimension 1
	_, err = Build[uint32]([]float64{0, math.Inf(1), 1, math.NaN(), 2, math.Inf(-1)}, 2, nil)
	assert.ErrorIs(t, err, ErrQuantizationOverflow)

	// a finite range too wide for float64 arithmetic
	_, err = Build[uint16]([]float64{-math.MaxFloat64, math.MaxFloat64, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrQuantizationOverflow)

	cfg = DefaultConfig()
	cfg.QuantMin = []float64{math.Inf(-1)}
	cfg.QuantMax = []float64{10}
	_, err = Build[uint16]([]float64{1, 2, 3}, 1, cfg)
	assert.ErrorIs(t, err, ErrQuantizationOverflow)
}

func TestBuildPermutation(t *testing.T) {
	data := randomPoints(500, 3, 7)
	tr, err := Build[float64](data, 3, nil)
	require.NoError(t, err)
	buf := make([]float64, 0, 3)
	for pos := 0; pos < tr.Len(); pos++ {
		i := int(tr.Index(pos))
		assert.Equal(t, data[i*3:i*3+3], tr.Point(pos, buf))
	}
}

func TestBuildInPlace(t *testing.T) {
	data := randomPoints(300, 2, 9)
	orig := append([]float64(nil), data...)
	cfg := DefaultConfig()
	cfg.InPlace = true
	tr, err := Build[float64](data, 2, cfg)
	require.NoError(t, err)
	assert.True(t, tr.Borrowed())
	assert.NotEqual(t, orig, data, "in-place build reorders the caller's slice")
	require.NoError(t, tr.Check())

	// a copy leaves the input alone
	data2 := append([]float64(nil), orig...)
	tr2, err := Build[float64](data2, 2, nil)
	require.NoError(t, err)
	assert.False(t, tr2.Borrowed())
	assert.Equal(t, orig, data2)
}

func TestBuildDuplicates(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind Kind) {
		for _, geom := range []Geometry{GeometryBoundingBox, GeometrySplitPlane} {
			data := gridPoints(1000, 2, 3, 11)
			idx, _ := buildAny(t, data, 2, kind, testConfig(4, geom, false))
			require.NoError(t, idx.Check())
		}
		// every coordinate identical
		same := make([]float64, 64*3)
		idx, _ := buildAny(t, same, 3, kind, testConfig(2, GeometrySplitPlane, false))
		require.NoError(t, idx.Check())
		res, err := idx.RangeSearch([]float64{0, 0, 0}, 0, RangeOptions{})
		require.NoError(t, err)
		assert.Equal(t, 64, res.Len())
	})
}

func TestLevelsFor(t *testing.T) {
	assert.Equal(t, 1, levelsFor(1, 16))
	assert.Equal(t, 1, levelsFor(16, 16))
	assert.Equal(t, 1, levelsFor(17, 16))
	assert.Equal(t, 2, levelsFor(33, 16))
	assert.Equal(t, 3, levelsFor(10, 2))
}
