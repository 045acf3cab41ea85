package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Kind:        2,
		Geometry:    1,
		Flags:       FlagQuantized | FlagPermutation,
		NData:       123456,
		NDim:        3,
		NLevels:     12,
		Scale:       0.125,
		TableOffset: HeaderSize,
		NumSections: uint32(NumSections),
	}
	b, err := EncodeHeader(h)
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)

	got, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, Magic, string(got.Magic[:]))
	assert.Equal(t, FormatVersion, got.Version)
}

func TestDecodeHeaderErrors(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeHeader(make([]byte, HeaderSize))
	assert.ErrorIs(t, err, ErrBadMagic)

	b, err := EncodeHeader(&Header{})
	require.NoError(t, err)
	b[4] = 9
	_, err = DecodeHeader(b)
	assert.ErrorIs(t, err, ErrBadVersion)

	_, err = EncodeHeader(nil)
	assert.Error(t, err)
}

func TestPlanSections(t *testing.T) {
	table, size := PlanSections([]uint64{100, 0, 8, 64})
	assert.Equal(t, SectionEntry{Offset: PageAlign, Length: 100}, table[0])
	assert.Equal(t, SectionEntry{}, table[1])
	assert.Equal(t, SectionEntry{Offset: PageAlign + 128, Length: 8}, table[2])
	assert.Equal(t, SectionEntry{Offset: PageAlign + 192, Length: 64}, table[3])
	assert.Equal(t, uint64(PageAlign+256), size)

	assert.Equal(t, uint64(64), AlignUp(1, 64))
	assert.Equal(t, uint64(128), AlignUp(128, 64))
}

func TestTableRoundTrip(t *testing.T) {
	lengths := make([]uint64, NumSections)
	lengths[SectionPoints] = 400
	lengths[SectionLeafBounds] = 16
	table, size := PlanSections(lengths)

	image := make([]byte, size)
	h := &Header{TableOffset: HeaderSize, NumSections: uint32(NumSections)}
	copy(image[HeaderSize:], EncodeTable(table))
	got, err := DecodeTable(h, image)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	_, err = DecodeTable(h, image[:size-1])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeTable(&Header{TableOffset: 8, NumSections: 1}, image)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadHeaderAndMmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.kdt")
	b, err := EncodeHeader(&Header{NData: 7, TableOffset: HeaderSize})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(b, 1, 2, 3), 0o644))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, h.NData)

	ms, err := OpenMmap(path)
	require.NoError(t, err)
	assert.Len(t, ms.Bytes(), HeaderSize+3)
	assert.Equal(t, byte(3), ms.Bytes()[HeaderSize+2])
	require.NoError(t, ms.Close())
	require.NoError(t, ms.Close())

	short := filepath.Join(t.TempDir(), "short.kdt")
	require.NoError(t, os.WriteFile(short, b[:20], 0o644))
	_, err = ReadHeader(short)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSectionString(t *testing.T) {
	assert.Equal(t, "points", SectionPoints.String())
	assert.Equal(t, "quant_max", SectionQuantMax.String())
	assert.Equal(t, "section(42)", Section(42).String())
}
