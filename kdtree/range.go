package kdtree

import "math"

// RangeOptions controls what a range search returns.
type RangeOptions struct {
	ComputeDistances bool // fill Result.Distances
	SortByDistance   bool // order matches by distance; implies ComputeDistances
	SmallRadius      bool // skip the whole-node accept test, cheaper when few nodes fit inside the radius
	ReturnPoints     bool // fill Result.Points with dequantized coordinates
}

// stackEntry is a node waiting to be visited with a lower bound of its squared distance.
type stackEntry struct {
	node int
	mind float64
}

// Depth-first traversal pops one node and pushes at most two, so the stack
// never holds more than one entry per level plus one.
const stackCap = maxLevels + 2

// RangeSearch returns every point p with |p - query|² <= maxD2, measured on
// the stored coordinates. Without SortByDistance the order is unspecified.
func (t *Tree[S]) RangeSearch(query []float64, maxD2 float64, opts RangeOptions) (*Result, error) {
	if err := t.checkQuery(query); err != nil {
		return nil, err
	}
	if p := t.searchPool; p != nil {
		return p.rangeSearch(query, maxD2, opts)
	}
	return t.rangeSearch(query, maxD2, opts), nil
}

func (t *Tree[S]) checkQuery(query []float64) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if len(query) != t.ndim {
		return &DimensionMismatchError{Expected: t.ndim, Actual: len(query)}
	}
	return nil
}

func (t *Tree[S]) rangeSearch(q []float64, maxD2 float64, opts RangeOptions) *Result {
	withDist := opts.ComputeDistances || opts.SortByDistance
	res := NewResult(16, t.ndim, withDist, opts.ReturnPoints)
	if !(maxD2 >= 0) {
		return res
	}
	c := collector[S]{t: t, q: q, res: res, withDist: withDist, withPoints: opts.ReturnPoints}

	var iq intQuery
	bbox := t.geometry == GeometryBoundingBox
	if bbox {
		iq.prepare(t.quant, KindOf[S](), q)
		iq.setThreshold(maxD2)
	}
	ninterior := t.layout.NInterior

	var stack [stackCap]stackEntry
	stack[0] = stackEntry{node: 0}
	sp := 1
	for sp > 0 {
		sp--
		e := stack[sp]
		if e.mind > maxD2 {
			continue
		}
		if e.node >= ninterior {
			lo, hi := t.layout.LeafRange(e.node - ninterior)
			c.scan(lo, hi, maxD2)
			continue
		}
		left, right := Children(e.node)
		if bbox {
			md := t.nodeMinDist2(&iq, e.node, q, maxD2)
			if md > maxD2 {
				continue
			}
			if !opts.SmallRadius && t.nodeInside(&iq, e.node, q, maxD2) {
				lo, hi := t.layout.NodeRange(e.node)
				c.acceptAll(lo, hi)
				continue
			}
			stack[sp] = stackEntry{node: right, mind: md}
			stack[sp+1] = stackEntry{node: left, mind: md}
			sp += 2
			continue
		}
		lm, rm := t.planeBounds(e.node, q, e.mind)
		if rm <= maxD2 {
			stack[sp] = stackEntry{node: right, mind: rm}
			sp++
		}
		if lm <= maxD2 {
			stack[sp] = stackEntry{node: left, mind: lm}
			sp++
		}
	}
	if opts.SortByDistance {
		res.sortByDistance()
	}
	return res
}

// planeBounds returns lower bounds of the squared distance from q to the left
// and right children of split node id, given the bound mind of the node itself.
func (t *Tree[S]) planeBounds(id int, q []float64, mind float64) (lm, rm float64) {
	dim, lo, hi := t.split(id)
	x := q[dim]
	lm, rm = mind, mind
	if h := fromStorage(t.quant, dim, hi); x > h {
		lm = math.Max(lm, (x-h)*(x-h))
	}
	if l := fromStorage(t.quant, dim, lo); x < l {
		rm = math.Max(rm, (l-x)*(l-x))
	}
	return lm, rm
}

// collector appends leaf points to a Result.
type collector[S Scalar] struct {
	t          *Tree[S]
	q          []float64
	res        *Result
	withDist   bool
	withPoints bool
	buf        [MaxDims]float64
}

// scan tests the points at tree positions [lo, hi] against maxD2.
func (c *collector[S]) scan(lo, hi int, maxD2 float64) {
	for pos := lo; pos <= hi; pos++ {
		d2, ok := c.t.pointDist2(pos, c.q, maxD2)
		if ok {
			c.push(pos, d2)
		}
	}
}

// acceptAll adds the points at [lo, hi], all known to be inside the radius.
func (c *collector[S]) acceptAll(lo, hi int) {
	inf := math.Inf(1)
	for pos := lo; pos <= hi; pos++ {
		var d2 float64
		if c.withDist {
			d2, _ = c.t.pointDist2(pos, c.q, inf)
		}
		c.push(pos, d2)
	}
}

func (c *collector[S]) push(pos int, d2 float64) {
	var p []float64
	if c.withPoints {
		p = c.t.Point(pos, c.buf[:0])
	}
	c.res.Push(c.t.Index(pos), d2, p)
}
