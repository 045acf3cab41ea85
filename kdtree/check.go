package kdtree

import "github.com/RoaringBitmap/roaring/v2"

// Check walks the whole tree and verifies its structural invariants:
// non-empty node ranges covering [0, ndata), a bijective permutation, nested
// bounding boxes containing their points, and points on the correct side of
// every split plane. It returns a *CheckError naming the first bad node.
func (t *Tree[S]) Check() error {
	raw := t.Raw()
	if err := raw.validate(); err != nil {
		return err
	}
	if err := t.checkBounds(); err != nil {
		return err
	}
	if err := t.checkPermutation(); err != nil {
		return err
	}
	switch t.geometry {
	case GeometryBoundingBox:
		return t.checkBoxes()
	case GeometrySplitPlane:
		return t.checkSplits()
	}
	return nil
}

// checkBounds verifies interior node ranges; validate has already checked
// the leaf bounds.
func (t *Tree[S]) checkBounds() error {
	l := &t.layout
	for id := 0; id < l.NInterior; id++ {
		lo, hi := l.NodeRange(id)
		if lo > hi || hi >= t.ndata {
			return checkErr(ErrBoundsViolation, id, "range [%d, %d]", lo, hi)
		}
	}
	return nil
}

func (t *Tree[S]) checkPermutation() error {
	if t.perm == nil {
		return nil
	}
	seen := roaring.New()
	for pos, idx := range t.perm {
		if !seen.CheckedAdd(idx) {
			return checkErr(ErrPermutationNotBijective, t.leafOf(pos), "position %d maps to %d", pos, idx)
		}
	}
	if seen.GetCardinality() != uint64(t.ndata) {
		return checkErr(ErrPermutationNotBijective, 0, "%d distinct indices, want %d", seen.GetCardinality(), t.ndata)
	}
	return nil
}

// leafOf returns the node id of the leaf owning tree position pos.
func (t *Tree[S]) leafOf(pos int) int {
	return leafNode(t.layout.LeafBounds, t.layout.NInterior, pos)
}

func (t *Tree[S]) checkBoxes() error {
	l := &t.layout
	for id := 0; id < l.NInterior; id++ {
		lo, hi := t.boxLo(id), t.boxHi(id)
		for d := range lo {
			if lo[d] > hi[d] {
				return checkErr(ErrBoundingBoxNotNested, id, "dimension %d: low %v > high %v", d, lo[d], hi[d])
			}
		}
		if id > 0 {
			plo, phi := t.boxLo(Parent(id)), t.boxHi(Parent(id))
			for d := range lo {
				if lo[d] < plo[d] || hi[d] > phi[d] {
					return checkErr(ErrBoundingBoxNotNested, id, "dimension %d: [%v, %v] outside parent [%v, %v]", d, lo[d], hi[d], plo[d], phi[d])
				}
			}
		}
		// nesting makes the deepest interior box the tightest ancestor box of a leaf
		left, _ := Children(id)
		if !l.IsLeaf(left) {
			continue
		}
		plo, phi := l.NodeRange(id)
		for pos := plo; pos <= phi; pos++ {
			for d, v := range t.row(pos) {
				if v < lo[d] || v > hi[d] {
					return checkErr(ErrBoundsViolation, t.leafOf(pos), "point %d dimension %d value %v outside [%v, %v]", pos, d, v, lo[d], hi[d])
				}
			}
		}
	}
	return nil
}

func (t *Tree[S]) checkSplits() error {
	l := &t.layout
	for id := 0; id < l.NInterior; id++ {
		dim, slo, shi := t.split(id)
		if dim >= t.ndim {
			return checkErr(ErrSplitPlaneViolation, id, "split dimension %d of %d", dim, t.ndim)
		}
		left, right := Children(id)
		llo, lhi := l.NodeRange(left)
		for pos := llo; pos <= lhi; pos++ {
			if v := t.row(pos)[dim]; v > shi {
				return checkErr(ErrSplitPlaneViolation, id, "left point %d: %v > %v", pos, v, shi)
			}
		}
		rlo, rhi := l.NodeRange(right)
		for pos := rlo; pos <= rhi; pos++ {
			if v := t.row(pos)[dim]; v < slo {
				return checkErr(ErrSplitPlaneViolation, id, "right point %d: %v < %v", pos, v, slo)
			}
		}
	}
	return nil
}
