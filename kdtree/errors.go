package kdtree

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the point array is empty or the dimension is zero.
	ErrEmptyInput = errors.New("kdtree: empty input")

	// ErrInsufficientPoints is returned when the requested depth needs more points than provided.
	ErrInsufficientPoints = errors.New("kdtree: insufficient points for tree depth")

	// ErrAllocationFailed is returned when the tree arrays cannot be sized or allocated.
	ErrAllocationFailed = errors.New("kdtree: allocation failed")

	// ErrQuantizationOverflow reports that a coordinate was clamped into the storage range,
	// or that a dimension has no finite range to quantize.
	ErrQuantizationOverflow = errors.New("kdtree: quantization overflow")

	// ErrKindMismatch is returned when a persisted tree has a different storage kind.
	ErrKindMismatch = errors.New("kdtree: storage kind mismatch")

	// ErrInvalidLayout is returned when raw arrays do not match the tree metadata.
	ErrInvalidLayout = errors.New("kdtree: invalid layout")

	// ErrClosed is returned by queries on a tree whose persisted backing was released.
	ErrClosed = errors.New("kdtree: tree closed")
)

// Self-check failure kinds. A *CheckError matches the sentinel of its kind via errors.Is.
var (
	ErrBoundsViolation         = errors.New("kdtree: node bounds violation")
	ErrPermutationNotBijective = errors.New("kdtree: permutation is not a bijection")
	ErrBoundingBoxNotNested    = errors.New("kdtree: bounding box not nested")
	ErrSplitPlaneViolation     = errors.New("kdtree: split plane violation")
)

// CheckError identifies the node at which a tree invariant failed.
type CheckError struct {
	Kind   error // one of the Err*Violation / ErrPermutationNotBijective / ErrBoundingBoxNotNested sentinels
	Node   int
	Detail string
}

func (e *CheckError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v at node %d", e.Kind, e.Node)
	}
	return fmt.Sprintf("%v at node %d: %s", e.Kind, e.Node, e.Detail)
}

func (e *CheckError) Unwrap() error { return e.Kind }

func checkErr(kind error, node int, format string, args ...any) error {
	return &CheckError{Kind: kind, Node: node, Detail: fmt.Sprintf(format, args...)}
}

// DimensionMismatchError indicates a query whose length differs from the tree dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("kdtree: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
