package kdtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutCounts(t *testing.T) {
	for nlevels := 1; nlevels <= 10; nlevels++ {
		l := newLayout(nlevels, make([]uint32, 1<<(nlevels-1)))
		assert.Equal(t, l.NNodes, l.NInterior+l.NBottom)
		assert.Equal(t, 1<<nlevels-1, l.NNodes)
		assert.Equal(t, l.NBottom, l.leavesBelow(0))
		assert.Equal(t, 1, l.leavesBelow(nlevels-1))
	}
}

func TestLayoutAddressing(t *testing.T) {
	assert.Equal(t, 0, Level(0))
	assert.Equal(t, 1, Level(1))
	assert.Equal(t, 1, Level(2))
	assert.Equal(t, 2, Level(6))
	assert.Equal(t, 3, Level(7))

	l, r := Children(2)
	assert.Equal(t, 5, l)
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, Parent(5))
	assert.Equal(t, 2, Parent(6))
}

func TestNodeRange(t *testing.T) {
	// 4 leaves over 10 points: [0,1] [2,4] [5,6] [7,9]
	l := newLayout(3, []uint32{1, 4, 6, 9})
	require.True(t, l.IsLeaf(3))
	require.False(t, l.IsLeaf(2))

	cases := []struct {
		id     int
		lo, hi int
	}{
		{0, 0, 9},
		{1, 0, 4},
		{2, 5, 9},
		{3, 0, 1},
		{4, 2, 4},
		{5, 5, 6},
		{6, 7, 9},
	}
	for _, c := range cases {
		lo, hi := l.NodeRange(c.id)
		assert.Equal(t, c.lo, lo, "node %d", c.id)
		assert.Equal(t, c.hi, hi, "node %d", c.id)
	}
	lo, hi := l.LeafRange(2)
	assert.Equal(t, 5, lo)
	assert.Equal(t, 6, hi)
}
