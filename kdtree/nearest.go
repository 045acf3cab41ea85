package kdtree

import "math"

// Neighbor is the outcome of a nearest-neighbor query. Found is false when no
// point lies within the cap; Index and Dist2 are then meaningless.
type Neighbor struct {
	Index uint32
	Dist2 float64
	Found bool
}

// Nearest returns the point closest to query with squared distance at most
// maxD2. maxD2 <= 0 or +Inf means no cap.
func (t *Tree[S]) Nearest(query []float64, maxD2 float64) (Neighbor, error) {
	if err := t.checkQuery(query); err != nil {
		return Neighbor{}, err
	}
	if p := t.searchPool; p != nil {
		return p.nearest(query, maxD2)
	}
	return t.nearest(query, maxD2), nil
}

func (t *Tree[S]) nearest(q []float64, maxD2 float64) Neighbor {
	best := maxD2
	if !(best > 0) {
		best = math.Inf(1)
	}
	found := false
	bestPos := 0
	// Before the first hit the cap is inclusive; afterwards only strict improvements count.
	open := func(d float64) bool {
		if found {
			return d < best
		}
		return d <= best
	}

	var iq intQuery
	bbox := t.geometry == GeometryBoundingBox
	if bbox {
		iq.prepare(t.quant, KindOf[S](), q)
		iq.setThreshold(best)
	}
	ninterior := t.layout.NInterior

	var stack [stackCap]stackEntry
	stack[0] = stackEntry{node: 0}
	if bbox && ninterior > 0 {
		stack[0].mind = t.nodeMinDist2(&iq, 0, q, best)
	}
	sp := 1
	for sp > 0 {
		sp--
		e := stack[sp]
		if !open(e.mind) {
			continue
		}
		if e.node >= ninterior {
			lo, hi := t.layout.LeafRange(e.node - ninterior)
			for pos := lo; pos <= hi; pos++ {
				d2, ok := t.pointDist2(pos, q, best)
				if ok && open(d2) {
					best, bestPos, found = d2, pos, true
					if bbox {
						iq.setThreshold(best)
					}
				}
			}
			continue
		}

		left, right := Children(e.node)
		var lm, rm float64
		if bbox {
			lm, rm = e.mind, e.mind
			if left < ninterior {
				lm = t.nodeMinDist2(&iq, left, q, best)
				rm = t.nodeMinDist2(&iq, right, q, best)
			}
		} else {
			lm, rm = t.planeBounds(e.node, q, e.mind)
		}
		// push the farther child first so the nearer one is visited first
		near, far := stackEntry{left, lm}, stackEntry{right, rm}
		if rm < lm {
			near, far = far, near
		}
		if open(far.mind) {
			stack[sp] = far
			sp++
		}
		if open(near.mind) {
			stack[sp] = near
			sp++
		}
	}
	if !found {
		return Neighbor{Dist2: math.Inf(1)}
	}
	return Neighbor{Index: t.Index(bestPos), Dist2: best, Found: true}
}
