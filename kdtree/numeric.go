package kdtree

import (
	"fmt"
	"math"
)

// Scalar is the set of storage types a tree can hold its coordinates in.
type Scalar interface {
	float64 | float32 | uint32 | uint16
}

// Kind identifies a storage type at runtime.
type Kind uint8

const (
	KindFloat64 Kind = iota + 1
	KindFloat32
	KindUint32
	KindUint16
)

// KindOf returns the Kind of storage type S.
func KindOf[S Scalar]() Kind {
	var zero S
	switch any(zero).(type) {
	case float64:
		return KindFloat64
	case float32:
		return KindFloat32
	case uint32:
		return KindUint32
	default:
		return KindUint16
	}
}

func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindFloat32:
		return "float32"
	case KindUint32:
		return "uint32"
	case KindUint16:
		return "uint16"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsInteger reports whether the kind is a quantized integer type.
func (k Kind) IsInteger() bool { return k == KindUint32 || k == KindUint16 }

// Size returns the size in bytes of one stored value.
func (k Kind) Size() int {
	switch k {
	case KindFloat64:
		return 8
	case KindFloat32, KindUint32:
		return 4
	case KindUint16:
		return 2
	default:
		return 0
	}
}

// MaxValue returns the largest representable storage value.
func (k Kind) MaxValue() float64 {
	switch k {
	case KindFloat32:
		return math.MaxFloat32
	case KindUint32:
		return math.MaxUint32
	case KindUint16:
		return math.MaxUint16
	default:
		return math.MaxFloat64
	}
}

// RoundMode selects how an external value is rounded into integer storage.
type RoundMode uint8

const (
	RoundNearest RoundMode = iota
	RoundFloor
	RoundCeil
)

// Quantization is the affine map between external coordinates and integer storage:
// stored = (external - Min[d]) * Scale.
type Quantization struct {
	Min   []float64
	Max   []float64
	Scale float64
}

// newQuantization uses one scale for all dimensions, derived from the widest range.
func newQuantization(lo, hi []float64, storageMax float64) *Quantization {
	q := &Quantization{
		Min: append([]float64(nil), lo...),
		Max: append([]float64(nil), hi...),
	}
	var maxRange float64
	for d := range lo {
		if r := hi[d] - lo[d]; r > maxRange {
			maxRange = r
		}
	}
	if maxRange > 0 {
		q.Scale = storageMax / maxRange
	} else {
		q.Scale = 1
	}
	return q
}

// Resolution returns the width of one storage unit in external coordinates.
func (q *Quantization) Resolution() float64 { return 1 / q.Scale }

// toStorage maps v into the integer domain of a kind, clamping to [0, max].
func (q *Quantization) toStorage(d int, v float64, mode RoundMode, max float64) (float64, bool) {
	s := (v - q.Min[d]) * q.Scale
	switch mode {
	case RoundFloor:
		s = math.Floor(s)
	case RoundCeil:
		s = math.Ceil(s)
	default:
		s = math.Round(s)
	}
	switch {
	case s < 0 || math.IsNaN(s):
		return 0, true
	case s > max:
		return max, true
	}
	return s, false
}

func (q *Quantization) fromStorage(d int, s float64) float64 {
	return q.Min[d] + s/q.Scale
}

// toStorage converts an external coordinate of dimension d to storage type S.
// The second result reports whether the value had to be clamped.
func toStorage[S Scalar](q *Quantization, d int, v float64, mode RoundMode) (S, bool) {
	kind := KindOf[S]()
	if q == nil {
		if kind == KindFloat32 && math.Abs(v) > math.MaxFloat32 {
			return S(math.Copysign(math.MaxFloat32, v)), true
		}
		return S(v), false
	}
	s, clamped := q.toStorage(d, v, mode, kind.MaxValue())
	return S(s), clamped
}

// fromStorage converts a stored coordinate of dimension d back to float64.
func fromStorage[S Scalar](q *Quantization, d int, v S) float64 {
	if q == nil {
		return float64(v)
	}
	return q.fromStorage(d, float64(v))
}
