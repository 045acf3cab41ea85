package kdtree

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRandomConfigs(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	kinds := []Kind{KindFloat64, KindFloat32, KindUint32, KindUint16}
	for i := 0; i < 120; i++ {
		n := 1 + rng.Intn(3000)
		dim := 1 + rng.Intn(6)
		leaf := 2 + rng.Intn(40)
		kind := kinds[rng.Intn(len(kinds))]
		geom := Geometry(rng.Intn(2))
		pack := geom == GeometrySplitPlane && kind.IsInteger() && rng.Intn(2) == 0

		var data []float64
		if rng.Intn(3) == 0 {
			data = gridPoints(n, dim, 1+rng.Intn(5), int64(i))
		} else {
			data = randomPoints(n, dim, int64(i))
		}
		cfg := testConfig(leaf, geom, pack)
		cfg.SelfCheck = true
		idx, err := BuildIndex(data, dim, kind, cfg)
		require.NoError(t, err, "n=%d dim=%d leaf=%d kind=%s geom=%s pack=%v", n, dim, leaf, kind, geom, pack)
		require.NoError(t, idx.Check())
	}
}

func requireCheckKind(t *testing.T, err, kind error) *CheckError {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var ce *CheckError
	require.True(t, errors.As(err, &ce))
	return ce
}

func TestCheckDetectsPermutation(t *testing.T) {
	tr, err := Build[float64](randomPoints(200, 2, 1), 2, testConfig(4, GeometryBoundingBox, false))
	require.NoError(t, err)
	tr.perm[5] = tr.perm[6]
	ce := requireCheckKind(t, tr.Check(), ErrPermutationNotBijective)
	assert.Equal(t, tr.leafOf(6), ce.Node)

	tr.perm[5] = 1000
	requireCheckKind(t, tr.Check(), ErrPermutationNotBijective)
}

func TestCheckDetectsBounds(t *testing.T) {
	tr, err := Build[float64](randomPoints(200, 2, 2), 2, testConfig(4, GeometryBoundingBox, false))
	require.NoError(t, err)
	lb := tr.layout.LeafBounds
	lb[3] = lb[2] // empty leaf
	ce := requireCheckKind(t, tr.Check(), ErrBoundsViolation)
	assert.Equal(t, tr.layout.NInterior+3, ce.Node)
}

func TestCheckDetectsBoxes(t *testing.T) {
	tr, err := Build[float32](randomPoints(300, 3, 3), 3, testConfig(4, GeometryBoundingBox, false))
	require.NoError(t, err)

	// a child box poking out of its parent
	child := 4
	hi := tr.boxHi(child)
	saved := hi[1]
	hi[1] = tr.boxHi(Parent(child))[1] + 1
	ce := requireCheckKind(t, tr.Check(), ErrBoundingBoxNotNested)
	assert.Equal(t, child, ce.Node)
	hi[1] = saved
	require.NoError(t, tr.Check())

	// a point outside the box of its deepest interior ancestor
	last := tr.layout.NInterior - 1
	lo, _ := tr.layout.NodeRange(last)
	tr.row(lo)[0] = tr.boxHi(last)[0] + 1
	ce = requireCheckKind(t, tr.Check(), ErrBoundsViolation)
	assert.True(t, tr.layout.IsLeaf(ce.Node))
}

func TestCheckDetectsSplits(t *testing.T) {
	tr, err := Build[float64](randomPoints(300, 2, 4), 2, testConfig(4, GeometrySplitPlane, false))
	require.NoError(t, err)
	dim, _, _ := tr.split(0)
	left, _ := Children(0)
	lo, _ := tr.layout.NodeRange(left)
	tr.row(lo)[dim] = 1e9
	ce := requireCheckKind(t, tr.Check(), ErrSplitPlaneViolation)
	assert.Equal(t, 0, ce.Node)
}

func TestCheckDetectsPackedDim(t *testing.T) {
	tr, err := Build[uint16](randomPoints(300, 3, 5), 3, testConfig(4, GeometrySplitPlane, true))
	require.NoError(t, err)
	require.NoError(t, tr.Check())
	// dimension 3 does not exist in a 3-d tree but fits the 2 packed bits
	tr.splits[2] = tr.splits[2]&^uint16(tr.splitMask) | 3
	ce := requireCheckKind(t, tr.Check(), ErrSplitPlaneViolation)
	assert.Equal(t, 2, ce.Node)
}
