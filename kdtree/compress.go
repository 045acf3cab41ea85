package kdtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ic-timon/kdindex/kdtree/store"
)

// Codec selects the compression of a tree image written by SaveCompressed.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps "none", "zstd" or "lz4" to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return 0, fmt.Errorf("kdtree: unknown codec %q", s)
}

// Compressed frame: [magic "KDTZ"][codec u8][3 reserved][raw length u64][payload length u64][payload].
// A payload length of 0 means the image is stored as is.
const (
	frameMagic      = "KDTZ"
	frameHeaderSize = 24
)

// errShortImage is returned when a frame decodes to fewer bytes than announced.
var errShortImage = errors.New("kdtree: short tree image")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// SaveCompressed writes the tree image to w compressed with codec.
func (t *Tree[S]) SaveCompressed(w io.Writer, codec Codec) error {
	var img bytes.Buffer
	if _, err := t.WriteTo(&img); err != nil {
		return err
	}
	data := img.Bytes()

	var payload []byte
	switch codec {
	case CodecNone:
	case CodecZstd:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return fmt.Errorf("kdtree: lz4: %w", err)
		}
		payload = buf[:n] // n == 0 means incompressible
	default:
		return fmt.Errorf("kdtree: unknown codec %d", codec)
	}

	hdr := make([]byte, frameHeaderSize)
	copy(hdr, frameMagic)
	hdr[4] = byte(codec)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(len(data)))
	binary.LittleEndian.PutUint64(hdr[16:], uint64(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		payload = data
	}
	_, err := w.Write(payload)
	if err == nil {
		t.cfg.Logger.Debugw("kdtree compressed",
			"codec", codec.String(),
			"raw_bytes", len(data),
			"stored_bytes", len(payload),
		)
	}
	return err
}

// LoadCompressed reads a tree written by SaveCompressed. The tree arrays live
// in the decompressed buffer on the heap; no file stays open.
func LoadCompressed[S Scalar](r io.Reader, cfg *Config) (*Tree[S], error) {
	data, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	t, _, err := decodeImage[S](data, cfg.OrDefault())
	return t, err
}

// LoadCompressedIndex is LoadCompressed for a storage kind read from the image.
func LoadCompressedIndex(r io.Reader, cfg *Config) (Index, error) {
	data, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	h, err := store.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	cfg = cfg.OrDefault()
	switch Kind(h.Kind) {
	case KindFloat64:
		return asIndex[float64](decodeTree[float64](data, cfg))
	case KindFloat32:
		return asIndex[float32](decodeTree[float32](data, cfg))
	case KindUint32:
		return asIndex[uint32](decodeTree[uint32](data, cfg))
	case KindUint16:
		return asIndex[uint16](decodeTree[uint16](data, cfg))
	}
	return nil, fmt.Errorf("%w: image kind %d", ErrKindMismatch, h.Kind)
}

func decodeTree[S Scalar](data []byte, cfg *Config) (*Tree[S], error) {
	t, _, err := decodeImage[S](data, cfg)
	return t, err
}

// lz4MaxRatio bounds the expansion of an LZ4 block, which stores at most 255
// bytes of match length per extra length byte.
const lz4MaxRatio = 255

// readFrame reads one compressed frame and returns the decoded tree image.
// Lengths from the frame header are checked against the payload before any
// buffer is sized from them.
func readFrame(r io.Reader) ([]byte, error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("kdtree: read frame header: %w", err)
	}
	if string(hdr[:4]) != frameMagic {
		return nil, errors.New("kdtree: not a compressed tree image")
	}
	codec := Codec(hdr[4])
	rawLen := binary.LittleEndian.Uint64(hdr[8:])
	payloadLen := binary.LittleEndian.Uint64(hdr[16:])
	if payloadLen == 0 {
		payloadLen = rawLen
		codec = CodecNone
	}
	if payloadLen > math.MaxInt64 {
		return nil, fmt.Errorf("%w: payload of %d bytes", errShortImage, payloadLen)
	}
	payload, err := io.ReadAll(io.LimitReader(r, int64(payloadLen)))
	if err != nil {
		return nil, fmt.Errorf("kdtree: read payload: %w", err)
	}
	if uint64(len(payload)) != payloadLen {
		return nil, fmt.Errorf("%w: payload has %d of %d bytes", errShortImage, len(payload), payloadLen)
	}

	var data []byte
	switch codec {
	case CodecNone:
		data = payload
	case CodecZstd:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, nil)
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("kdtree: zstd: %w", err)
		}
		data = out
	case CodecLZ4:
		if rawLen > lz4MaxRatio*uint64(len(payload)) {
			return nil, fmt.Errorf("kdtree: lz4: %d bytes cannot expand to %d", len(payload), rawLen)
		}
		data = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("kdtree: lz4: %w", err)
		}
		data = data[:n]
	default:
		return nil, fmt.Errorf("kdtree: unknown codec %d", codec)
	}
	if uint64(len(data)) != rawLen {
		return nil, fmt.Errorf("%w: %d of %d bytes", errShortImage, len(data), rawLen)
	}
	return data, nil
}
