package kdtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultGrowth(t *testing.T) {
	r := NewResult(0, 2, true, true)
	for i := 0; i < 40; i++ {
		r.Push(uint32(i), float64(i), []float64{float64(i), -float64(i)})
	}
	assert.Equal(t, 40, r.Len())
	assert.Equal(t, 64, cap(r.Indices))
	assert.Equal(t, []float64{7, -7}, r.Point(7))
	assert.Equal(t, 39.0, r.Distances[39])

	r.ShrinkToFit()
	assert.Equal(t, 40, cap(r.Indices))
	assert.Equal(t, 40, cap(r.Distances))
	assert.Equal(t, 80, cap(r.Points))
}

func TestResultWithoutExtras(t *testing.T) {
	r := NewResult(4, 3, false, false)
	r.Push(5, 1.5, nil)
	assert.Equal(t, []uint32{5}, r.Indices)
	assert.Nil(t, r.Distances)
	assert.Nil(t, r.Points)
	assert.Nil(t, r.Point(0))
}

func TestResultSortIsStable(t *testing.T) {
	r := NewResult(0, 1, true, true)
	for i, d := range []float64{3, 1, 2, 1, 0} {
		r.Push(uint32(i), d, []float64{float64(10 * i)})
	}
	r.sortByDistance()
	assert.Equal(t, []uint32{4, 1, 3, 2, 0}, r.Indices)
	assert.Equal(t, []float64{0, 1, 1, 2, 3}, r.Distances)
	assert.Equal(t, []float64{40, 10, 30, 20, 0}, r.Points)
}
