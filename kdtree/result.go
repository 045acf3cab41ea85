package kdtree

import "sort"

// Result collects the matches of a range search. Distances and Points are
// filled only when requested; Points holds Dim coordinates per match.
type Result struct {
	Indices   []uint32
	Distances []float64
	Points    []float64
	Dim       int

	withDist   bool
	withPoints bool
}

// NewResult returns an empty result with room for capacity matches.
func NewResult(capacity, dim int, withDist, withPoints bool) *Result {
	if capacity < 0 {
		capacity = 0
	}
	r := &Result{
		Indices:    make([]uint32, 0, capacity),
		Dim:        dim,
		withDist:   withDist,
		withPoints: withPoints,
	}
	if withDist {
		r.Distances = make([]float64, 0, capacity)
	}
	if withPoints {
		r.Points = make([]float64, 0, capacity*dim)
	}
	return r
}

// Len returns the number of matches.
func (r *Result) Len() int { return len(r.Indices) }

// Push appends a match, doubling the arrays when they are full.
func (r *Result) Push(index uint32, d2 float64, point []float64) {
	if len(r.Indices) == cap(r.Indices) {
		r.grow()
	}
	r.Indices = append(r.Indices, index)
	if r.withDist {
		r.Distances = append(r.Distances, d2)
	}
	if r.withPoints {
		r.Points = append(r.Points, point[:r.Dim]...)
	}
}

func (r *Result) grow() {
	n := 2 * cap(r.Indices)
	if n < 16 {
		n = 16
	}
	idx := make([]uint32, len(r.Indices), n)
	copy(idx, r.Indices)
	r.Indices = idx
	if r.withDist {
		d := make([]float64, len(r.Distances), n)
		copy(d, r.Distances)
		r.Distances = d
	}
	if r.withPoints {
		p := make([]float64, len(r.Points), n*r.Dim)
		copy(p, r.Points)
		r.Points = p
	}
}

// ShrinkToFit releases unused capacity.
func (r *Result) ShrinkToFit() {
	r.Indices = clipped(r.Indices)
	if r.withDist {
		r.Distances = clipped(r.Distances)
	}
	if r.withPoints {
		r.Points = clipped(r.Points)
	}
}

func clipped[T any](s []T) []T {
	if cap(s) == len(s) {
		return s
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Point returns the coordinates of match i, or nil when points were not requested.
func (r *Result) Point(i int) []float64 {
	if !r.withPoints {
		return nil
	}
	return r.Points[i*r.Dim : (i+1)*r.Dim]
}

// sortByDistance orders matches by ascending distance, keeping the collection
// order among equal distances. Indices and points move with their distance.
func (r *Result) sortByDistance() {
	sort.Stable(byDistance{r})
}

type byDistance struct{ r *Result }

func (s byDistance) Len() int           { return len(s.r.Indices) }
func (s byDistance) Less(i, j int) bool { return s.r.Distances[i] < s.r.Distances[j] }
func (s byDistance) Swap(i, j int) {
	r := s.r
	r.Indices[i], r.Indices[j] = r.Indices[j], r.Indices[i]
	r.Distances[i], r.Distances[j] = r.Distances[j], r.Distances[i]
	if r.withPoints {
		pi, pj := r.Point(i), r.Point(j)
		for d := range pi {
			pi[d], pj[d] = pj[d], pi[d]
		}
	}
}
