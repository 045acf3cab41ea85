package kdtree

import (
	"context"
	"fmt"
	"io"

	"github.com/ic-timon/kdindex/kdtree/store"
)

// Index is the storage-independent view of a tree, for callers that choose the
// storage kind at run time.
type Index interface {
	Kind() Kind
	Geometry() Geometry
	Len() int
	Dim() int
	Levels() int
	RangeSearch(query []float64, maxD2 float64, opts RangeOptions) (*Result, error)
	Nearest(query []float64, maxD2 float64) (Neighbor, error)
	RangeSearchBatch(ctx context.Context, queries [][]float64, maxD2 float64, opts RangeOptions, workers int) ([]*Result, error)
	NearestBatch(ctx context.Context, queries [][]float64, maxD2 float64, workers int) ([]Neighbor, error)
	Check() error
	SaveTo(path string) error
	SaveToAtomic(path string) error
	SaveCompressed(w io.Writer, codec Codec) error
	Close() error
}

var (
	_ Index = (*Tree[float64])(nil)
	_ Index = (*Tree[float32])(nil)
	_ Index = (*Tree[uint32])(nil)
	_ Index = (*Tree[uint16])(nil)
)

// BuildIndex builds a tree with the storage kind chosen at run time.
// Integer kinds quantize the input.
func BuildIndex(data []float64, ndim int, kind Kind, cfg *Config) (Index, error) {
	switch kind {
	case KindFloat64:
		return asIndex[float64](Build[float64](data, ndim, cfg))
	case KindFloat32:
		return asIndex[float32](Build[float32](data, ndim, cfg))
	case KindUint32:
		return asIndex[uint32](Build[uint32](data, ndim, cfg))
	case KindUint16:
		return asIndex[uint16](Build[uint16](data, ndim, cfg))
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrKindMismatch, kind)
}

// OpenIndex loads an index file of any storage kind.
func OpenIndex(path string, cfg *Config) (Index, error) {
	h, err := store.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	switch Kind(h.Kind) {
	case KindFloat64:
		return asIndex[float64](NewTreeFromFile[float64](path, cfg))
	case KindFloat32:
		return asIndex[float32](NewTreeFromFile[float32](path, cfg))
	case KindUint32:
		return asIndex[uint32](NewTreeFromFile[uint32](path, cfg))
	case KindUint16:
		return asIndex[uint16](NewTreeFromFile[uint16](path, cfg))
	}
	return nil, fmt.Errorf("%w: file kind %d", ErrKindMismatch, h.Kind)
}

// asIndex keeps a failed build from returning a non-nil Index holding a nil tree.
func asIndex[S Scalar](t *Tree[S], err error) (Index, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
