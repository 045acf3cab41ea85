package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// HeaderSize is the fixed header size.
	HeaderSize = 64

	// Magic identifies a kdtree index file.
	Magic = "KDTR"

	// FormatVersion is the current file format version.
	FormatVersion uint16 = 1

	// PageAlign is the alignment of the first section.
	PageAlign = 4096

	// SectionAlign is the alignment of every section.
	SectionAlign = 64

	sectionEntrySize = 16
)

// Header flags.
const (
	FlagPackedSplitDims uint32 = 1 << iota
	FlagPermutation
	FlagQuantized
)

var (
	ErrBadMagic   = errors.New("store: invalid magic")
	ErrBadVersion = errors.New("store: unsupported format version")
	ErrTruncated  = errors.New("store: index file truncated")
)

// Section names one array of the tree image.
type Section int

const (
	SectionPoints Section = iota
	SectionPermutation
	SectionLeafBounds
	SectionBBoxes
	SectionSplits
	SectionSplitDims
	SectionQuantMin
	SectionQuantMax
	NumSections
)

func (s Section) String() string {
	switch s {
	case SectionPoints:
		return "points"
	case SectionPermutation:
		return "permutation"
	case SectionLeafBounds:
		return "leaf_bounds"
	case SectionBBoxes:
		return "bboxes"
	case SectionSplits:
		return "splits"
	case SectionSplitDims:
		return "split_dims"
	case SectionQuantMin:
		return "quant_min"
	case SectionQuantMax:
		return "quant_max"
	default:
		return fmt.Sprintf("section(%d)", int(s))
	}
}

// Header holds the persisted tree metadata.
type Header struct {
	Magic       [4]byte
	Version     uint16
	Kind        uint8
	Geometry    uint8
	Flags       uint32
	NData       uint64
	NDim        uint32
	NLevels     uint32
	Scale       float64
	TableOffset uint64
	NumSections uint32
	Reserved    [16]byte // pad to 64 bytes
}

// SectionEntry locates one section in the file. Length is in bytes; zero means absent.
type SectionEntry struct {
	Offset uint64
	Length uint64
}

// EncodeHeader writes the header to a byte slice of HeaderSize bytes.
func EncodeHeader(h *Header) ([]byte, error) {
	if h == nil {
		return nil, errors.New("store: header is nil")
	}
	copy(h.Magic[:], Magic)
	h.Version = FormatVersion
	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeHeader reads the header from src. Returns error if magic/version invalid.
func DecodeHeader(src []byte) (*Header, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: header has %d bytes", ErrTruncated, len(src))
	}
	var h Header
	if err := binary.Read(bytes.NewReader(src[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if string(h.Magic[:]) != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	return &h, nil
}

// ReadHeader reads only the header of the index file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return DecodeHeader(buf)
}

// AlignUp rounds x up to a multiple of align.
func AlignUp(x, align uint64) uint64 {
	if x%align == 0 {
		return x
	}
	return (x/align + 1) * align
}

// PlanSections lays out sections of the given byte lengths after the header
// and table. It returns the table and the total file size.
func PlanSections(lengths []uint64) ([]SectionEntry, uint64) {
	table := make([]SectionEntry, len(lengths))
	off := AlignUp(HeaderSize+uint64(len(lengths))*sectionEntrySize, PageAlign)
	for i, n := range lengths {
		if n == 0 {
			continue
		}
		off = AlignUp(off, SectionAlign)
		table[i] = SectionEntry{Offset: off, Length: n}
		off += n
	}
	return table, off
}

// EncodeTable serializes the section table.
func EncodeTable(table []SectionEntry) []byte {
	b := make([]byte, len(table)*sectionEntrySize)
	for i, e := range table {
		binary.LittleEndian.PutUint64(b[i*sectionEntrySize:], e.Offset)
		binary.LittleEndian.PutUint64(b[i*sectionEntrySize+8:], e.Length)
	}
	return b
}

// DecodeTable reads the section table described by h from the file image
// and checks that every section lies inside it.
func DecodeTable(h *Header, image []byte) ([]SectionEntry, error) {
	n := uint64(h.NumSections)
	end := h.TableOffset + n*sectionEntrySize
	if h.TableOffset < HeaderSize || end > uint64(len(image)) {
		return nil, fmt.Errorf("%w: section table at %d", ErrTruncated, h.TableOffset)
	}
	table := make([]SectionEntry, n)
	for i := range table {
		b := image[h.TableOffset+uint64(i)*sectionEntrySize:]
		table[i] = SectionEntry{
			Offset: binary.LittleEndian.Uint64(b),
			Length: binary.LittleEndian.Uint64(b[8:]),
		}
		if e := table[i]; e.Length > 0 && (e.Offset > uint64(len(image)) || e.Length > uint64(len(image))-e.Offset) {
			return nil, fmt.Errorf("%w: section %s [%d, +%d) of %d bytes", ErrTruncated, Section(i), e.Offset, e.Length, len(image))
		}
	}
	return table, nil
}
