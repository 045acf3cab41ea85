package kdtree

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"
)

// MaxDims bounds the dimension so per-query buffers can live on the stack.
const MaxDims = 16

// maxLevels keeps node ids and leaf bounds inside uint32.
const maxLevels = 31

// Tree is an immutable k-d tree whose coordinates are stored as S.
type Tree[S Scalar] struct {
	cfg    *Config
	layout Layout
	ndata  int
	ndim   int

	geometry  Geometry
	points    []S      // ndata*ndim, tree order
	perm      []uint32 // tree position -> original index; nil means identity
	bboxes    []S      // ninterior * 2*ndim: low corner then high corner
	splits    []S      // ninterior split values
	splitDims []uint8  // ninterior split dimensions; nil when packed into splits
	splitBits uint
	splitMask uint64
	quant     *Quantization

	clamped    int
	borrowed   bool
	closed     atomic.Bool
	searchPool *searchPool[S]
	persisted  interface{ Close() error } // set by loadFrom, released by ClosePersisted
}

// Kind returns the storage kind.
func (t *Tree[S]) Kind() Kind { return KindOf[S]() }

// Geometry returns the interior node geometry.
func (t *Tree[S]) Geometry() Geometry { return t.geometry }

// Len returns the number of points.
func (t *Tree[S]) Len() int { return t.ndata }

// Dim returns the point dimension.
func (t *Tree[S]) Dim() int { return t.ndim }

// Levels returns the tree depth.
func (t *Tree[S]) Levels() int { return t.layout.NLevels }

// Layout returns the node addressing of the tree.
func (t *Tree[S]) Layout() *Layout { return &t.layout }

// Quantization returns the storage mapping, or nil for floating storage.
func (t *Tree[S]) Quantization() *Quantization { return t.quant }

// Clamped returns how many coordinates were clamped while quantizing.
func (t *Tree[S]) Clamped() int { return t.clamped }

// Borrowed reports whether the point and index arrays belong to someone else
// (the caller's slice, a FromRaw caller, or a memory-mapped file).
func (t *Tree[S]) Borrowed() bool { return t.borrowed }

// Config returns the configuration the tree was built or loaded with.
func (t *Tree[S]) Config() *Config { return t.cfg }

// ToStorage converts an external coordinate of dimension d to the storage type.
func (t *Tree[S]) ToStorage(d int, v float64, mode RoundMode) (S, bool) {
	return toStorage[S](t.quant, d, v, mode)
}

// FromStorage converts a stored coordinate of dimension d to float64.
func (t *Tree[S]) FromStorage(d int, v S) float64 {
	return fromStorage(t.quant, d, v)
}

// Index maps a tree position to the original input index.
func (t *Tree[S]) Index(pos int) uint32 {
	if t.perm == nil {
		return uint32(pos)
	}
	return t.perm[pos]
}

// Point writes the external coordinates of the point at tree position pos into dst.
func (t *Tree[S]) Point(pos int, dst []float64) []float64 {
	dst = dst[:0]
	for d, v := range t.row(pos) {
		dst = append(dst, fromStorage(t.quant, d, v))
	}
	return dst
}

func (t *Tree[S]) row(pos int) []S {
	return t.points[pos*t.ndim : (pos+1)*t.ndim]
}

func (t *Tree[S]) boxLo(node int) []S {
	base := node * 2 * t.ndim
	return t.bboxes[base : base+t.ndim]
}

func (t *Tree[S]) boxHi(node int) []S {
	base := node*2*t.ndim + t.ndim
	return t.bboxes[base : base+t.ndim]
}

// split returns the split dimension and the stored bounds of interior node id:
// points of the left child are <= hi and points of the right child are >= lo.
func (t *Tree[S]) split(id int) (dim int, lo, hi S) {
	v := t.splits[id]
	if t.splitDims != nil {
		return int(t.splitDims[id]), v, v
	}
	u := uint64(v)
	return int(u & t.splitMask), S(u &^ t.splitMask), S(u | t.splitMask)
}

// splitBitsFor returns the number of low bits needed to hold a dimension index.
func splitBitsFor(ndim int) uint {
	if ndim <= 1 {
		return 0
	}
	return uint(bits.Len(uint(ndim - 1)))
}

// Raw is the tree's in-memory layout, which is also its serialization unit.
type Raw[S Scalar] struct {
	NData           int
	NDim            int
	NLevels         int
	Geometry        Geometry
	PackedSplitDims bool
	Points          []S
	Permutation     []uint32
	LeafBounds      []uint32
	BBoxes          []S
	Splits          []S
	SplitDims       []uint8
	Quantization    *Quantization
}

// Raw returns the tree arrays without copying. Callers must not modify them.
func (t *Tree[S]) Raw() Raw[S] {
	return Raw[S]{
		NData:           t.ndata,
		NDim:            t.ndim,
		NLevels:         t.layout.NLevels,
		Geometry:        t.geometry,
		PackedSplitDims: t.geometry == GeometrySplitPlane && t.splitDims == nil,
		Points:          t.points,
		Permutation:     t.perm,
		LeafBounds:      t.layout.LeafBounds,
		BBoxes:          t.bboxes,
		Splits:          t.splits,
		SplitDims:       t.splitDims,
		Quantization:    t.quant,
	}
}

// FromRaw reconstructs a tree from its arrays without re-running the builder.
// The arrays are borrowed: the tree never modifies them.
func FromRaw[S Scalar](raw Raw[S], cfg *Config) (*Tree[S], error) {
	cfg = cfg.OrDefault()
	if err := raw.validate(); err != nil {
		return nil, err
	}
	t := &Tree[S]{
		cfg:       cfg,
		layout:    newLayout(raw.NLevels, raw.LeafBounds),
		ndata:     raw.NData,
		ndim:      raw.NDim,
		geometry:  raw.Geometry,
		points:    raw.Points,
		perm:      raw.Permutation,
		bboxes:    raw.BBoxes,
		splits:    raw.Splits,
		splitDims: raw.SplitDims,
		quant:     raw.Quantization,
		borrowed:  true,
	}
	if raw.PackedSplitDims {
		t.splitBits = splitBitsFor(raw.NDim)
		t.splitMask = 1<<t.splitBits - 1
	}
	if cfg.SelfCheck {
		if err := t.Check(); err != nil {
			return nil, err
		}
	}
	t.startSearchPool()
	return t, nil
}

// validate checks the array lengths against the metadata and every value a
// query uses as an index, so a tree that passes can be queried without
// going out of bounds. Geometric invariants are left to Check.
func (raw *Raw[S]) validate() error {
	if raw.NData <= 0 || raw.NDim <= 0 {
		return ErrEmptyInput
	}
	if raw.NDim > MaxDims || raw.NData > math.MaxUint32 || raw.NLevels < 1 || raw.NLevels > maxLevels {
		return fmt.Errorf("%w: ndata=%d ndim=%d nlevels=%d", ErrInvalidLayout, raw.NData, raw.NDim, raw.NLevels)
	}
	ninterior := 1<<(raw.NLevels-1) - 1
	nbottom := 1 << (raw.NLevels - 1)
	if 1<<raw.NLevels-1 > raw.NData {
		return fmt.Errorf("%w: %d levels need more than %d points", ErrInsufficientPoints, raw.NLevels, raw.NData)
	}
	switch {
	case len(raw.Points) != raw.NData*raw.NDim:
		return fmt.Errorf("%w: points has %d values, want %d", ErrInvalidLayout, len(raw.Points), raw.NData*raw.NDim)
	case raw.Permutation != nil && len(raw.Permutation) != raw.NData:
		return fmt.Errorf("%w: permutation has %d entries, want %d", ErrInvalidLayout, len(raw.Permutation), raw.NData)
	case len(raw.LeafBounds) != nbottom:
		return fmt.Errorf("%w: leaf bounds has %d entries, want %d", ErrInvalidLayout, len(raw.LeafBounds), nbottom)
	}
	switch raw.Geometry {
	case GeometryBoundingBox:
		if len(raw.BBoxes) != ninterior*2*raw.NDim {
			return fmt.Errorf("%w: bboxes has %d values, want %d", ErrInvalidLayout, len(raw.BBoxes), ninterior*2*raw.NDim)
		}
	case GeometrySplitPlane:
		if len(raw.Splits) != ninterior {
			return fmt.Errorf("%w: splits has %d values, want %d", ErrInvalidLayout, len(raw.Splits), ninterior)
		}
		if raw.PackedSplitDims {
			if !KindOf[S]().IsInteger() {
				return fmt.Errorf("%w: packed split dims need integer storage", ErrInvalidLayout)
			}
		} else if len(raw.SplitDims) != ninterior {
			return fmt.Errorf("%w: split dims has %d entries, want %d", ErrInvalidLayout, len(raw.SplitDims), ninterior)
		}
	default:
		return fmt.Errorf("%w: unknown geometry %d", ErrInvalidLayout, raw.Geometry)
	}
	q := raw.Quantization
	if KindOf[S]().IsInteger() {
		if q == nil || len(q.Min) != raw.NDim || len(q.Max) != raw.NDim || !(q.Scale > 0) || math.IsInf(q.Scale, 0) {
			return fmt.Errorf("%w: integer storage needs a quantization with %d dims", ErrInvalidLayout, raw.NDim)
		}
		for d := range q.Min {
			if !isFinite(q.Min[d]) || !isFinite(q.Max[d]) {
				return fmt.Errorf("%w: quantization range [%g, %g] in dimension %d", ErrInvalidLayout, q.Min[d], q.Max[d], d)
			}
		}
	} else if q != nil {
		return fmt.Errorf("%w: floating storage cannot be quantized", ErrInvalidLayout)
	}
	return raw.validateIndices(ninterior)
}

// validateIndices checks every stored value that queries use as an array
// index: leaf bounds, permutation entries and split dimensions.
func (raw *Raw[S]) validateIndices(ninterior int) error {
	prev := -1
	for k, b := range raw.LeafBounds {
		if int(b) <= prev || int(b) >= raw.NData {
			return checkErr(ErrBoundsViolation, ninterior+k, "leaf range [%d, %d] of %d points", prev+1, b, raw.NData)
		}
		prev = int(b)
	}
	if prev != raw.NData-1 {
		return checkErr(ErrBoundsViolation, ninterior+len(raw.LeafBounds)-1, "last leaf ends at %d, want %d", prev, raw.NData-1)
	}
	for pos, idx := range raw.Permutation {
		if int(idx) >= raw.NData {
			return checkErr(ErrPermutationNotBijective, leafNode(raw.LeafBounds, ninterior, pos), "position %d maps to %d", pos, idx)
		}
	}
	if raw.Geometry != GeometrySplitPlane {
		return nil
	}
	if raw.PackedSplitDims {
		mask := uint64(1)<<splitBitsFor(raw.NDim) - 1
		for id, v := range raw.Splits {
			if dim := uint64(v) & mask; dim >= uint64(raw.NDim) {
				return checkErr(ErrSplitPlaneViolation, id, "split dimension %d of %d", dim, raw.NDim)
			}
		}
		return nil
	}
	for id, dim := range raw.SplitDims {
		if int(dim) >= raw.NDim {
			return checkErr(ErrSplitPlaneViolation, id, "split dimension %d of %d", dim, raw.NDim)
		}
	}
	return nil
}

// leafNode returns the node id of the leaf owning tree position pos.
func leafNode(leafBounds []uint32, ninterior, pos int) int {
	k := 0
	for k < len(leafBounds)-1 && int(leafBounds[k]) < pos {
		k++
	}
	return ninterior + k
}

// Close stops the search pool and releases any memory-mapped backing.
// The tree must not be queried afterwards.
func (t *Tree[S]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.searchPool != nil {
		t.searchPool.Close()
	}
	return t.ClosePersisted()
}
