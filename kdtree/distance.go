package kdtree

import (
	"math"
)

// pointDist2 returns the squared distance between query q and the point at
// tree position pos, computed on dequantized coordinates. It stops as soon as
// the partial sum exceeds limit and then reports false.
func (t *Tree[S]) pointDist2(pos int, q []float64, limit float64) (float64, bool) {
	row := t.row(pos)
	var sum float64
	if t.quant == nil {
		for d, v := range row {
			diff := float64(v) - q[d]
			sum += diff * diff
			if sum > limit {
				return sum, false
			}
		}
		return sum, true
	}
	qt := t.quant
	for d, v := range row {
		diff := qt.fromStorage(d, float64(v)) - q[d]
		sum += diff * diff
		if sum > limit {
			return sum, false
		}
	}
	return sum, true
}

// boxMinDist2 is the squared distance from q to the box of interior node id.
// It stops early once the sum exceeds limit.
func (t *Tree[S]) boxMinDist2(id int, q []float64, limit float64) float64 {
	lo, hi := t.boxLo(id), t.boxHi(id)
	var sum float64
	for d := range lo {
		l, h := fromStorage(t.quant, d, lo[d]), fromStorage(t.quant, d, hi[d])
		var gap float64
		switch {
		case q[d] < l:
			gap = l - q[d]
		case q[d] > h:
			gap = q[d] - h
		default:
			continue
		}
		sum += gap * gap
		if sum > limit {
			return sum
		}
	}
	return sum
}

// boxMaxDist2 is the squared distance from q to the farthest corner of the
// box of interior node id. It stops early once the sum exceeds limit.
func (t *Tree[S]) boxMaxDist2(id int, q []float64, limit float64) float64 {
	lo, hi := t.boxLo(id), t.boxHi(id)
	var sum float64
	for d := range lo {
		l, h := fromStorage(t.quant, d, lo[d]), fromStorage(t.quant, d, hi[d])
		far := math.Max(math.Abs(q[d]-l), math.Abs(h-q[d]))
		sum += far * far
		if sum > limit {
			return sum
		}
	}
	return sum
}

// accWidth selects the accumulator of the integer box kernels.
type accWidth uint8

const (
	accFloat  accWidth = iota // integer pruning disabled
	accNarrow                 // uint32 for uint16 storage, uint64 for uint32 storage
	accWide                   // uint64 for uint16 storage
)

// intQuery holds a query rounded into storage units for box pruning on
// quantized trees. qlo and qhi bracket the exact storage-unit coordinate.
type intQuery struct {
	qlo, qhi [MaxDims]int64
	ok       bool
	scale2   float64
	errUnits float64 // bound on rounding error of one coordinate, in storage units
	ndim     int
	wideOK   bool

	width  accWidth
	slack  float64
	thr    uint64
	gapMax uint64
}

// prepare rounds q into storage units. Integer pruning stays disabled when the
// tree is not quantized or q falls outside the storage range.
func (iq *intQuery) prepare(qt *Quantization, kind Kind, q []float64) {
	iq.ok = false
	iq.width = accFloat
	if qt == nil || !kind.IsInteger() {
		return
	}
	top := kind.MaxValue()
	var mag float64
	for d, v := range q {
		s := (v - qt.Min[d]) * qt.Scale
		lo, hi := math.Floor(s), math.Ceil(s)
		if !(lo >= 0) || !(hi <= top) {
			return
		}
		iq.qlo[d], iq.qhi[d] = int64(lo), int64(hi)
		mag = math.Max(mag, math.Max(math.Abs(v), math.Max(math.Abs(qt.Min[d]), math.Abs(qt.Max[d]))))
	}
	iq.ok = true
	iq.ndim = len(q)
	iq.scale2 = qt.Scale * qt.Scale
	iq.errUnits = mag*qt.Scale*0x1p-48 + 1e-9
	iq.wideOK = kind == KindUint16
}

// setThreshold derives the integer prune threshold for a float squared radius.
// It widens the accumulator, or falls back to float, when the threshold would
// not fit with room for one more term.
func (iq *intQuery) setThreshold(maxD2 float64) {
	iq.width = accFloat
	if !iq.ok || math.IsInf(maxD2, 1) || math.IsNaN(maxD2) {
		return
	}
	T := maxD2 * iq.scale2
	e := iq.errUnits
	iq.slack = 1 + 1e-9*T + 4*float64(iq.ndim)*e*(math.Sqrt(T)+e)
	thr := math.Floor(T + iq.slack)
	switch {
	case !iq.wideOK && thr < math.MaxUint64/2:
		iq.width = accNarrow
	case iq.wideOK && thr <= math.MaxUint32/2:
		iq.width = accNarrow
	case iq.wideOK && thr < math.MaxUint64/2:
		iq.width = accWide
	default:
		return
	}
	iq.thr = uint64(thr)
	iq.gapMax = isqrt(iq.thr)
}

// lowerBound converts an integer gap sum into a squared distance no larger
// than the true one.
func (iq *intQuery) lowerBound(sum uint64) float64 {
	lb := float64(sum) - iq.slack
	if lb <= 0 {
		return 0
	}
	return lb / iq.scale2
}

func isqrt(x uint64) uint64 {
	g := uint64(math.Sqrt(float64(x)))
	for g > 0 && g*g > x {
		g--
	}
	for (g+1)*(g+1) <= x {
		g++
	}
	return g
}

// boxGapSum sums squared per-dimension gaps between a box and the bracketed
// query, near gaps when far is false and far gaps otherwise. It returns true
// once the sum exceeds thr. thr must be at most half the range of A and
// gapMax*gapMax at most thr, which keeps every step free of overflow.
func boxGapSum[S Scalar, A uint32 | uint64](lo, hi []S, qlo, qhi *[MaxDims]int64, gapMax, thr A, far bool) (A, bool) {
	var sum A
	for d := range lo {
		l, h := int64(lo[d]), int64(hi[d])
		var g int64
		switch {
		case far:
			g = h - qlo[d]
			if o := qhi[d] - l; o > g {
				g = o
			}
		case qhi[d] < l:
			g = l - qhi[d]
		case qlo[d] > h:
			g = qlo[d] - h
		default:
			continue
		}
		if uint64(g) > uint64(gapMax) {
			return sum, true
		}
		ga := A(g)
		sum += ga * ga
		if sum > thr {
			return sum, true
		}
	}
	return sum, false
}

// intBoxGap runs boxGapSum at the width chosen by setThreshold.
func (t *Tree[S]) intBoxGap(iq *intQuery, id int, far bool) (uint64, bool) {
	lo, hi := t.boxLo(id), t.boxHi(id)
	if iq.width == accNarrow && KindOf[S]() == KindUint16 {
		s, over := boxGapSum[S, uint32](lo, hi, &iq.qlo, &iq.qhi, uint32(iq.gapMax), uint32(iq.thr), far)
		return uint64(s), over
	}
	return boxGapSum[S, uint64](lo, hi, &iq.qlo, &iq.qhi, iq.gapMax, iq.thr, far)
}

// nodeMinDist2 returns a lower bound of the squared distance from q to any
// point under interior node id, or +Inf when it certainly exceeds limit.
// The integer kernel is used when iq carries a threshold for limit.
func (t *Tree[S]) nodeMinDist2(iq *intQuery, id int, q []float64, limit float64) float64 {
	if iq.width != accFloat {
		sum, over := t.intBoxGap(iq, id, false)
		if over {
			return math.Inf(1)
		}
		return iq.lowerBound(sum)
	}
	d := t.boxMinDist2(id, q, limit)
	if d > limit {
		return math.Inf(1)
	}
	return d
}

// nodeInside reports whether every point under interior node id is within
// limit of q. An integer pass filters candidates before the exact float check.
func (t *Tree[S]) nodeInside(iq *intQuery, id int, q []float64, limit float64) bool {
	if iq.width != accFloat {
		if _, over := t.intBoxGap(iq, id, true); over {
			return false
		}
	}
	return t.boxMaxDist2(id, q, limit) <= limit
}
