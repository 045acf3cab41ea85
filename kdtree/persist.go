package kdtree

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/ic-timon/kdindex/kdtree/store"
)

// WriteTo writes the tree image (header, section table, sections) to w.
func (t *Tree[S]) WriteTo(w io.Writer) (int64, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	raw := t.Raw()
	sections := make([]any, store.NumSections)
	sections[store.SectionPoints] = raw.Points
	sections[store.SectionLeafBounds] = raw.LeafBounds
	if raw.Permutation != nil {
		sections[store.SectionPermutation] = raw.Permutation
	}
	if raw.BBoxes != nil {
		sections[store.SectionBBoxes] = raw.BBoxes
	}
	if raw.Splits != nil {
		sections[store.SectionSplits] = raw.Splits
	}
	if raw.SplitDims != nil {
		sections[store.SectionSplitDims] = raw.SplitDims
	}

	h := &store.Header{
		Kind:        uint8(KindOf[S]()),
		Geometry:    uint8(raw.Geometry),
		NData:       uint64(raw.NData),
		NDim:        uint32(raw.NDim),
		NLevels:     uint32(raw.NLevels),
		TableOffset: store.HeaderSize,
		NumSections: uint32(store.NumSections),
	}
	if raw.PackedSplitDims {
		h.Flags |= store.FlagPackedSplitDims
	}
	if raw.Permutation != nil {
		h.Flags |= store.FlagPermutation
	}
	if q := raw.Quantization; q != nil {
		h.Flags |= store.FlagQuantized
		h.Scale = q.Scale
		sections[store.SectionQuantMin] = q.Min
		sections[store.SectionQuantMax] = q.Max
	}

	lengths := make([]uint64, len(sections))
	for i, s := range sections {
		if s != nil {
			lengths[i] = uint64(binary.Size(s))
		}
	}
	table, _ := store.PlanSections(lengths)

	headerBytes, err := store.EncodeHeader(h)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: w}
	if _, err := cw.Write(headerBytes); err != nil {
		return cw.n, err
	}
	if _, err := cw.Write(store.EncodeTable(table)); err != nil {
		return cw.n, err
	}
	for i, s := range sections {
		if s == nil {
			continue
		}
		if err := cw.pad(int64(table[i].Offset)); err != nil {
			return cw.n, err
		}
		if err := binary.Write(cw, binary.LittleEndian, s); err != nil {
			return cw.n, fmt.Errorf("kdtree: write section %s: %w", store.Section(i), err)
		}
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// pad writes zeros up to offset off.
func (c *countingWriter) pad(off int64) error {
	if off < c.n {
		return fmt.Errorf("kdtree: section offset %d behind write position %d", off, c.n)
	}
	_, err := c.Write(make([]byte, off-c.n))
	return err
}

// SaveTo writes the tree to a file.
func (t *Tree[S]) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriterSize(f, 1<<20)
	if _, err := t.WriteTo(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	t.cfg.Logger.Debugw("kdtree saved", "path", path, "points", t.ndata, "kind", KindOf[S]().String())
	return f.Close()
}

// SaveToAtomic writes the tree to a file atomically (write to path+".tmp", then rename).
// On Windows, the target must not exist for Rename to succeed; remove it first.
func (t *Tree[S]) SaveToAtomic(path string) error {
	tmp := path + ".tmp"
	if err := t.SaveTo(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = os.Remove(path) // ignore error if not exists
	return os.Rename(tmp, path)
}

// NewTreeFromFile loads a tree from an index file through a read-only memory
// mapping. On little-endian hosts the tree arrays are views of the mapping;
// call Close (or ClosePersisted) when done. cfg may be nil.
func NewTreeFromFile[S Scalar](path string, cfg *Config) (*Tree[S], error) {
	cfg = cfg.OrDefault()
	ms, err := store.OpenMmap(path)
	if err != nil {
		return nil, err
	}
	t, views, err := decodeImage[S](ms.Bytes(), cfg)
	if err != nil {
		ms.Close()
		return nil, fmt.Errorf("kdtree: load %s: %w", path, err)
	}
	if views {
		t.persisted = ms
	} else if err := ms.Close(); err != nil {
		return nil, err
	}
	cfg.Logger.Debugw("kdtree loaded",
		"path", path,
		"kind", KindOf[S]().String(),
		"points", t.ndata,
		"zero_copy", views,
	)
	return t, nil
}

// LoadFrom is NewTreeFromFile.
func LoadFrom[S Scalar](path string, cfg *Config) (*Tree[S], error) {
	return NewTreeFromFile[S](path, cfg)
}

// ClosePersisted releases the mapping of a tree loaded from a file. Queries on
// the tree return ErrClosed afterwards. No-op for trees not backed by a mapping.
func (t *Tree[S]) ClosePersisted() error {
	if t.persisted == nil {
		return nil
	}
	t.closed.Store(true)
	err := t.persisted.Close()
	t.persisted = nil
	return err
}

// decodeImage rebuilds a tree from a file image. views reports whether any
// tree array aliases image.
func decodeImage[S Scalar](image []byte, cfg *Config) (t *Tree[S], views bool, err error) {
	h, err := store.DecodeHeader(image)
	if err != nil {
		return nil, false, err
	}
	if Kind(h.Kind) != KindOf[S]() {
		return nil, false, fmt.Errorf("%w: file holds %s, want %s", ErrKindMismatch, Kind(h.Kind), KindOf[S]())
	}
	if h.NumSections < uint32(store.NumSections) {
		return nil, false, fmt.Errorf("%w: %d sections", ErrInvalidLayout, h.NumSections)
	}
	table, err := store.DecodeTable(h, image)
	if err != nil {
		return nil, false, err
	}
	sec := func(s store.Section) []byte {
		e := table[s]
		return image[e.Offset : e.Offset+e.Length]
	}

	raw := Raw[S]{
		NData:           int(h.NData),
		NDim:            int(h.NDim),
		NLevels:         int(h.NLevels),
		Geometry:        Geometry(h.Geometry),
		PackedSplitDims: h.Flags&store.FlagPackedSplitDims != 0,
	}
	var v [5]bool
	raw.Points, v[0], err = viewOf[S](sec(store.SectionPoints))
	if err == nil {
		raw.LeafBounds, v[1], err = viewOf[uint32](sec(store.SectionLeafBounds))
	}
	if err == nil && h.Flags&store.FlagPermutation != 0 {
		raw.Permutation, v[2], err = viewOf[uint32](sec(store.SectionPermutation))
	}
	if err == nil && raw.Geometry == GeometryBoundingBox {
		raw.BBoxes, v[3], err = viewOf[S](sec(store.SectionBBoxes))
	}
	if err == nil && raw.Geometry == GeometrySplitPlane {
		raw.Splits, v[4], err = viewOf[S](sec(store.SectionSplits))
		if err == nil && !raw.PackedSplitDims {
			raw.SplitDims = append([]uint8(nil), sec(store.SectionSplitDims)...)
		}
	}
	if err == nil && h.Flags&store.FlagQuantized != 0 {
		q := &Quantization{Scale: h.Scale}
		if q.Min, err = copyOf[float64](sec(store.SectionQuantMin)); err == nil {
			q.Max, err = copyOf[float64](sec(store.SectionQuantMax))
		}
		raw.Quantization = q
	}
	if err != nil {
		return nil, false, err
	}
	t, err = FromRaw(raw, cfg)
	if err != nil {
		return nil, false, err
	}
	return t, v[0] || v[1] || v[2] || v[3] || v[4], nil
}

type fixedSize interface {
	Scalar | uint8
}

// viewOf interprets b as a little-endian []T, aliasing b when the host is
// little-endian and b is suitably aligned, copying otherwise.
func viewOf[T fixedSize](b []byte) ([]T, bool, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b)%size != 0 {
		return nil, false, fmt.Errorf("%w: section of %d bytes for %d-byte values", ErrInvalidLayout, len(b), size)
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	if hostLittleEndian && uintptr(unsafe.Pointer(&b[0]))%uintptr(size) == 0 {
		return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size), true, nil
	}
	out, err := copyOf[T](b)
	return out, false, err
}

// copyOf decodes b as a little-endian []T into fresh memory.
func copyOf[T fixedSize](b []byte) ([]T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%w: section of %d bytes for %d-byte values", ErrInvalidLayout, len(b), size)
	}
	out := make([]T, len(b)/size)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()
