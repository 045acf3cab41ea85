package kdtree

import (
	"fmt"
	"math"
)

// BruteRange scans every point of data (row-major, ndim per point) and returns
// the indices with squared distance to query at most maxD2, in input order.
// It is the reference the tree queries are tested against.
func BruteRange(data []float64, ndim int, query []float64, maxD2 float64) ([]uint32, []float64, error) {
	if err := bruteArgs(data, ndim, query); err != nil {
		return nil, nil, err
	}
	var idx []uint32
	var dist []float64
	for i := 0; i*ndim < len(data); i++ {
		if d2 := sqDist(data[i*ndim:(i+1)*ndim], query); d2 <= maxD2 {
			idx = append(idx, uint32(i))
			dist = append(dist, d2)
		}
	}
	return idx, dist, nil
}

// BruteNearest returns the first point of data with the smallest squared
// distance to query, capped at maxD2 as in Tree.Nearest.
func BruteNearest(data []float64, ndim int, query []float64, maxD2 float64) (Neighbor, error) {
	if err := bruteArgs(data, ndim, query); err != nil {
		return Neighbor{}, err
	}
	best := maxD2
	if !(best > 0) {
		best = math.Inf(1)
	}
	nb := Neighbor{Dist2: math.Inf(1)}
	for i := 0; i*ndim < len(data); i++ {
		d2 := sqDist(data[i*ndim:(i+1)*ndim], query)
		if d2 < best || (!nb.Found && d2 == best) {
			best = d2
			nb = Neighbor{Index: uint32(i), Dist2: d2, Found: true}
		}
	}
	return nb, nil
}

func bruteArgs(data []float64, ndim int, query []float64) error {
	if ndim <= 0 || len(data)%ndim != 0 {
		return fmt.Errorf("%w: %d values, dimension %d", ErrEmptyInput, len(data), ndim)
	}
	if len(query) != ndim {
		return &DimensionMismatchError{Expected: ndim, Actual: len(query)}
	}
	return nil
}

func sqDist(p, q []float64) float64 {
	var sum float64
	for d := range p {
		diff := p[d] - q[d]
		sum += diff * diff
	}
	return sum
}
