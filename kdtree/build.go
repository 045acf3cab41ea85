package kdtree

import (
	"fmt"
	"math"
	"sort"
)

// Build constructs a tree over n = len(data)/ndim points stored row-major in data.
// S selects the storage: float64 and float32 keep coordinates as floats, uint32
// and uint16 quantize them with a single global scale.
//
// With cfg.InPlace and float64 storage the tree reorders and keeps data itself;
// otherwise data is left untouched and the tree owns a converted copy.
func Build[S Scalar](data []float64, ndim int, cfg *Config) (*Tree[S], error) {
	cfg = cfg.OrDefault()
	if len(data) == 0 || ndim <= 0 || len(data)%ndim != 0 {
		return nil, fmt.Errorf("%w: %d values, dimension %d", ErrEmptyInput, len(data), ndim)
	}
	n := len(data) / ndim
	if ndim > MaxDims || n > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d points of dimension %d (max dimension %d)", ErrAllocationFailed, n, ndim, MaxDims)
	}
	nlevels := cfg.Levels
	if nlevels == 0 {
		nlevels = levelsFor(n, cfg.LeafSize)
	}
	if nlevels > maxLevels {
		return nil, fmt.Errorf("%w: %d levels", ErrAllocationFailed, nlevels)
	}
	if 1<<nlevels-1 > n {
		return nil, fmt.Errorf("%w: %d levels need %d points, have %d", ErrInsufficientPoints, nlevels, 1<<nlevels-1, n)
	}
	kind := KindOf[S]()
	if cfg.PackSplitDims && cfg.Geometry == GeometrySplitPlane && !kind.IsInteger() {
		return nil, fmt.Errorf("kdtree: packed split dimensions need integer storage, have %s", kind)
	}

	t := &Tree[S]{
		cfg:      cfg,
		layout:   newLayout(nlevels, make([]uint32, 1<<(nlevels-1))),
		ndata:    n,
		ndim:     ndim,
		geometry: cfg.Geometry,
		perm:     make([]uint32, n),
	}
	for i := range t.perm {
		t.perm[i] = uint32(i)
	}
	if err := t.loadPoints(data); err != nil {
		return nil, err
	}

	ninterior := t.layout.NInterior
	switch cfg.Geometry {
	case GeometryBoundingBox:
		t.bboxes = make([]S, ninterior*2*ndim)
	case GeometrySplitPlane:
		t.splits = make([]S, ninterior)
		if cfg.PackSplitDims {
			t.splitBits = splitBitsFor(ndim)
			t.splitMask = 1<<t.splitBits - 1
		} else {
			t.splitDims = make([]uint8, ninterior)
		}
	default:
		return nil, fmt.Errorf("kdtree: unknown geometry %d", cfg.Geometry)
	}

	b := builder[S]{t: t, lo: make([]S, ndim), hi: make([]S, ndim)}
	b.run()

	cfg.Logger.Debugw("kdtree built",
		"kind", kind.String(),
		"geometry", cfg.Geometry.String(),
		"points", n,
		"dim", ndim,
		"levels", nlevels,
		"clamped", t.clamped,
	)
	if cfg.SelfCheck {
		if err := t.Check(); err != nil {
			return nil, err
		}
	}
	t.startSearchPool()
	return t, nil
}

// levelsFor derives the depth so that leaves hold about leafSize points.
func levelsFor(n, leafSize int) int {
	if leafSize <= 0 {
		leafSize = 1
	}
	l := int(math.Ceil(math.Log2(float64(n) / float64(leafSize))))
	if l < 1 {
		l = 1
	}
	return l
}

// loadPoints fills t.points from data, quantizing for integer storage.
func (t *Tree[S]) loadPoints(data []float64) error {
	cfg := t.cfg
	kind := KindOf[S]()
	if !kind.IsInteger() {
		if own, ok := any(data).([]S); ok && cfg.InPlace {
			t.points = own
			t.borrowed = true
			return nil
		}
		t.points = make([]S, len(data))
		for i, v := range data {
			s, clamped := toStorage[S](nil, 0, v, RoundNearest)
			if clamped {
				if err := t.reportClamp(i/t.ndim, i%t.ndim, v); err != nil {
					return err
				}
			}
			t.points[i] = s
		}
		return nil
	}

	lo, hi := cfg.QuantMin, cfg.QuantMax
	if lo == nil || hi == nil {
		lo, hi = dataBounds(data, t.ndim)
	}
	if len(lo) != t.ndim || len(hi) != t.ndim {
		return fmt.Errorf("kdtree: quantization bounds have %d/%d dims, want %d", len(lo), len(hi), t.ndim)
	}
	for d := range lo {
		if !isFinite(lo[d]) || !isFinite(hi[d]) || lo[d] > hi[d] {
			return fmt.Errorf("%w: dimension %d has no finite range [%g, %g]", ErrQuantizationOverflow, d, lo[d], hi[d])
		}
	}
	t.quant = newQuantization(lo, hi, kind.MaxValue())
	if s := t.quant.Scale; !(s > 0) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: scale %g", ErrQuantizationOverflow, s)
	}
	t.points = make([]S, len(data))
	for i, v := range data {
		d := i % t.ndim
		s, clamped := toStorage[S](t.quant, d, v, RoundNearest)
		if clamped {
			if err := t.reportClamp(i/t.ndim, d, v); err != nil {
				return err
			}
		}
		t.points[i] = s
	}
	return nil
}

func (t *Tree[S]) reportClamp(point, dim int, v float64) error {
	t.clamped++
	if t.cfg.StrictQuantization {
		return fmt.Errorf("%w: point %d dimension %d value %g", ErrQuantizationOverflow, point, dim, v)
	}
	t.cfg.Logger.Warnw("kdtree: coordinate clamped into storage range",
		"point", point,
		"dim", dim,
		"value", v,
		"kind", KindOf[S]().String(),
	)
	return nil
}

func isFinite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }

// dataBounds returns the per-dimension range of the finite values of data.
// Non-finite values are clamped later when they are stored.
func dataBounds(data []float64, ndim int) (lo, hi []float64) {
	lo = make([]float64, ndim)
	hi = make([]float64, ndim)
	for d := 0; d < ndim; d++ {
		lo[d] = math.Inf(1)
		hi[d] = math.Inf(-1)
	}
	for i, v := range data {
		d := i % ndim
		if !isFinite(v) {
			continue
		}
		if v < lo[d] {
			lo[d] = v
		}
		if v > hi[d] {
			hi[d] = v
		}
	}
	return lo, hi
}

// builder holds the scratch box of the node being split.
type builder[S Scalar] struct {
	t      *Tree[S]
	lo, hi []S
}

// run splits interior nodes in id order, which is level order.
//
// leafBounds doubles as the frontier: while level l is processed, its right
// bounds occupy the last 2^l slots. Node j of the level reads slot off+j and
// writes its children into slots off'+2j and off'+2j+1 with off' = off-2^l,
// which never reaches an unprocessed slot. When the children are leaves off'
// is zero, so the frontier becomes the final leaf array in place.
func (b *builder[S]) run() {
	t := b.t
	lb := t.layout.LeafBounds
	nbottom := t.layout.NBottom
	lb[nbottom-1] = uint32(t.ndata - 1)

	for level := 0; level < t.layout.NLevels-1; level++ {
		width := 1 << level
		off := nbottom - width
		next := off - width
		first := width - 1
		childLeaves := t.layout.leavesBelow(level + 1)
		for j := 0; j < width; j++ {
			left := 0
			if j > 0 {
				left = int(lb[off+j-1]) + 1
			}
			right := int(lb[off+j])
			m := b.splitNode(first+j, left, right, childLeaves)
			lb[next+2*j] = uint32(m - 1)
			lb[next+2*j+1] = uint32(right)
		}
	}
}

// splitNode partitions rows [left, right] of node id and returns the first row
// of the right child. Each child keeps at least childLeaves rows.
func (b *builder[S]) splitNode(id, left, right, childLeaves int) int {
	t := b.t
	b.bounds(left, right)
	dim := 0
	var widest float64 = -1
	for d := 0; d < t.ndim; d++ {
		if r := float64(b.hi[d]) - float64(b.lo[d]); r > widest {
			widest = r
			dim = d
		}
	}
	if t.geometry == GeometryBoundingBox {
		copy(t.boxLo(id), b.lo)
		copy(t.boxHi(id), b.hi)
	}

	m := (left + right + 1) / 2
	minCut := left + childLeaves
	var split S
	if KindOf[S]().IsInteger() {
		m, split = b.sortedCut(left, right, m, minCut, dim)
	} else {
		m, split = b.selectCut(left, right, m, minCut, dim)
	}

	if t.geometry == GeometrySplitPlane {
		if t.splitDims != nil {
			t.splits[id] = split
			t.splitDims[id] = uint8(dim)
		} else {
			t.splits[id] = S(uint64(split) | uint64(dim))
		}
	}
	return m
}

// bounds computes the box of rows [left, right] into b.lo and b.hi.
func (b *builder[S]) bounds(left, right int) {
	copy(b.lo, b.t.row(left))
	copy(b.hi, b.t.row(left))
	for i := left + 1; i <= right; i++ {
		for d, v := range b.t.row(i) {
			if v < b.lo[d] {
				b.lo[d] = v
			}
			if v > b.hi[d] {
				b.hi[d] = v
			}
		}
	}
}

// selectCut places the median at m with quickselect, then moves rows equal to
// the split value from the left part to the right part while the left child
// keeps at least minCut-left rows.
func (b *builder[S]) selectCut(left, right, m, minCut, dim int) (int, S) {
	b.selectNth(left, right, m, dim)
	split := b.coord(m, dim)
	// gather rows equal to split at the tail of [left, m)
	tail := m
	for i := m - 1; i >= left; i-- {
		if b.coord(i, dim) == split {
			tail--
			b.swap(i, tail)
		}
	}
	if tail < minCut {
		tail = minCut
	}
	return tail, split
}

// sortedCut fully sorts [left, right] along dim. The split threshold is the
// median coordinate (with the low bits cleared when dimensions are packed) and
// the cut slides left so that coordinates >= threshold go right.
func (b *builder[S]) sortedCut(left, right, m, minCut, dim int) (int, S) {
	sort.Sort(rowSorter[S]{t: b.t, off: left, n: right - left + 1, dim: dim})
	split := b.coord(m, dim)
	if b.t.geometry == GeometrySplitPlane && b.t.splitDims == nil {
		split = S(uint64(split) &^ b.t.splitMask)
	}
	for m > minCut && b.coord(m-1, dim) >= split {
		m--
	}
	return m, split
}

func (b *builder[S]) coord(row, dim int) S { return b.t.points[row*b.t.ndim+dim] }

func (b *builder[S]) swap(i, j int) { b.t.swapRows(i, j) }

func (t *Tree[S]) swapRows(i, j int) {
	if i == j {
		return
	}
	ri, rj := t.row(i), t.row(j)
	for d := range ri {
		ri[d], rj[d] = rj[d], ri[d]
	}
	t.perm[i], t.perm[j] = t.perm[j], t.perm[i]
}

// selectNth rearranges rows [lo, hi] so that row k holds the k-th smallest
// coordinate along dim, smaller or equal rows before it and larger or equal after.
func (b *builder[S]) selectNth(lo, hi, k, dim int) {
	for hi > lo {
		mid := lo + (hi-lo)/2
		pivot := medianOf3(b.coord(lo, dim), b.coord(mid, dim), b.coord(hi, dim))
		i, j := lo, hi
		for i <= j {
			for b.coord(i, dim) < pivot {
				i++
			}
			for b.coord(j, dim) > pivot {
				j--
			}
			if i <= j {
				b.swap(i, j)
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return
		}
	}
}

func medianOf3[S Scalar](a, b, c S) S {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

// rowSorter sorts n rows starting at off along one dimension, moving whole rows
// and their permutation entries.
type rowSorter[S Scalar] struct {
	t   *Tree[S]
	off int
	n   int
	dim int
}

func (s rowSorter[S]) Len() int { return s.n }
func (s rowSorter[S]) Less(i, j int) bool {
	nd := s.t.ndim
	return s.t.points[(s.off+i)*nd+s.dim] < s.t.points[(s.off+j)*nd+s.dim]
}
func (s rowSorter[S]) Swap(i, j int) {
	s.t.swapRows(s.off+i, s.off+j)
}
