package kdtree

import "math/bits"

// Layout is the implicit complete-binary-tree addressing shared by every tree
// with the same depth. Node 0 is the root, children of i are 2i+1 and 2i+2,
// and leaf k (node id ninterior+k) owns points leafBounds[k-1]+1 ..= leafBounds[k].
type Layout struct {
	NLevels    int
	NNodes     int
	NInterior  int
	NBottom    int
	LeafBounds []uint32
}

func newLayout(nlevels int, leafBounds []uint32) Layout {
	return Layout{
		NLevels:    nlevels,
		NNodes:     1<<nlevels - 1,
		NInterior:  1<<(nlevels-1) - 1,
		NBottom:    1 << (nlevels - 1),
		LeafBounds: leafBounds,
	}
}

// IsLeaf reports whether node id is on the bottom level.
func (l *Layout) IsLeaf(id int) bool { return id >= l.NInterior }

// Level returns the depth of node id; the root is level 0.
func Level(id int) int { return bits.Len(uint(id+1)) - 1 }

// Children returns the child ids of an interior node.
func Children(id int) (left, right int) { return 2*id + 1, 2*id + 2 }

// Parent returns the parent id of a non-root node.
func Parent(id int) int { return (id - 1) / 2 }

// LeafRange returns the inclusive point range owned by leaf index k.
func (l *Layout) LeafRange(k int) (lo, hi int) {
	hi = int(l.LeafBounds[k])
	if k > 0 {
		lo = int(l.LeafBounds[k-1]) + 1
	}
	return lo, hi
}

// NodeRange returns the inclusive point range owned by node id, derived from
// its leftmost and rightmost descendant leaves.
func (l *Layout) NodeRange(id int) (lo, hi int) {
	dlevel := l.NLevels - 1 - Level(id)
	span := 1<<dlevel - 1
	leftmost := id<<dlevel + span - l.NInterior
	rightmost := id<<dlevel + 2*span - l.NInterior
	lo, _ = l.LeafRange(leftmost)
	_, hi = l.LeafRange(rightmost)
	return lo, hi
}

// leavesBelow returns the number of leaves in the subtree rooted at a node of the given level.
func (l *Layout) leavesBelow(level int) int { return 1 << (l.NLevels - 1 - level) }
