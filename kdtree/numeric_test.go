package kdtree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindFloat64, KindOf[float64]())
	assert.Equal(t, KindFloat32, KindOf[float32]())
	assert.Equal(t, KindUint32, KindOf[uint32]())
	assert.Equal(t, KindUint16, KindOf[uint16]())
	assert.True(t, KindUint16.IsInteger())
	assert.False(t, KindFloat32.IsInteger())
	assert.Equal(t, 2, KindUint16.Size())
	assert.Equal(t, "uint32", KindUint32.String())
}

func TestQuantizationSingleScale(t *testing.T) {
	q := newQuantization([]float64{0, -10}, []float64{100, 10}, math.MaxUint16)
	// the widest range (100) sets the scale for every dimension
	assert.InDelta(t, math.MaxUint16/100.0, q.Scale, 1e-9)
	assert.InDelta(t, 100.0/math.MaxUint16, q.Resolution(), 1e-12)

	flat := newQuantization([]float64{3}, []float64{3}, math.MaxUint16)
	assert.Equal(t, 1.0, flat.Scale)
}

func TestQuantizationRoundTrip(t *testing.T) {
	q := newQuantization([]float64{-5}, []float64{5}, math.MaxUint16)
	for _, v := range []float64{-5, -4.2, 0, 1e-3, 3.3333, 5} {
		s, clamped := toStorage[uint16](q, 0, v, RoundNearest)
		require.False(t, clamped)
		assert.InDelta(t, v, fromStorage(q, 0, s), q.Resolution()/2+1e-12)
	}
}

func TestQuantizationRounding(t *testing.T) {
	q := &Quantization{Min: []float64{0}, Max: []float64{10}, Scale: 1}
	lo, _ := toStorage[uint16](q, 0, 2.5, RoundFloor)
	hi, _ := toStorage[uint16](q, 0, 2.5, RoundCeil)
	assert.Equal(t, uint16(2), lo)
	assert.Equal(t, uint16(3), hi)

	s, clamped := toStorage[uint16](q, 0, -1, RoundNearest)
	assert.True(t, clamped)
	assert.Equal(t, uint16(0), s)
	s, clamped = toStorage[uint16](q, 0, 1e6, RoundNearest)
	assert.True(t, clamped)
	assert.Equal(t, uint16(math.MaxUint16), s)
}

func TestFloat32Clamp(t *testing.T) {
	s, clamped := toStorage[float32](nil, 0, -1e300, RoundNearest)
	assert.True(t, clamped)
	assert.Equal(t, float32(-math.MaxFloat32), s)

	s, clamped = toStorage[float32](nil, 0, 1.5, RoundNearest)
	assert.False(t, clamped)
	assert.Equal(t, float32(1.5), s)
}
