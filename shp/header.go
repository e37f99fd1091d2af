package shp

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/Silvesterrr/shapekit/errs"
)

// Format constants shared by .shp and .shx files.
const (
	FileCode         = 9994
	Version          = 1000
	HeaderSize       = 100
	RecordHeaderSize = 8
	IndexRecordSize  = 8
)

// Header is the 100-byte header of a .shp or .shx file.
type Header struct {
	FileLength int32 // in 16-bit words
	ShapeType  ShapeType
	Bounds     BoundsZ
}

// ByteLength returns the file length in bytes.
func (h Header) ByteLength() int64 {
	return int64(h.FileLength) * 2
}

// DecodeHeader parses a header from the first 100 bytes of buf. A wrong
// file code or version stops parsing immediately.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.New(errs.KindInvalidFormat, "header needs %d bytes, got %d", HeaderSize, len(buf))
	}

	if code := int32(binary.BigEndian.Uint32(buf[0:4])); code != FileCode {
		return Header{}, errs.New(errs.KindInvalidHeader, "file code %d, want %d", code, FileCode)
	}
	if version := int32(binary.LittleEndian.Uint32(buf[28:32])); version != Version {
		return Header{}, errs.New(errs.KindInvalidHeader, "version %d, want %d", version, Version)
	}

	id := int32(binary.LittleEndian.Uint32(buf[32:36]))
	t, ok := ShapeTypeFromID(id)
	if !ok {
		return Header{}, errs.New(errs.KindUnsupportedType, "shape type id %d", id).With("id", id)
	}

	f := func(off int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	}
	return Header{
		FileLength: int32(binary.BigEndian.Uint32(buf[24:28])),
		ShapeType:  t,
		Bounds: BoundsZ{
			Bounds: Bounds{MinX: f(36), MinY: f(44), MaxX: f(52), MaxY: f(60)},
			Z:      Range{Min: f(68), Max: f(76)},
			M:      &Range{Min: f(84), Max: f(92)},
		},
	}, nil
}

// Encode writes h into the first 100 bytes of buf. An absent M range is
// written as zeros.
func (h Header) Encode(buf []byte) {
	clear(buf[:HeaderSize])
	binary.BigEndian.PutUint32(buf[0:4], uint32(FileCode))
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.FileLength))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(Version))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.ShapeType.ID()))

	f := func(off int, v float64) {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	}
	f(36, h.Bounds.MinX)
	f(44, h.Bounds.MinY)
	f(52, h.Bounds.MaxX)
	f(60, h.Bounds.MaxY)
	f(68, h.Bounds.Z.Min)
	f(76, h.Bounds.Z.Max)
	if h.Bounds.M != nil {
		f(84, h.Bounds.M.Min)
		f(92, h.Bounds.M.Max)
	}
}

// ReadHeader reads and decodes a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, readErr(err, "header")
	}
	return DecodeHeader(buf)
}

func writeHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	if _, err := w.Write(buf); err != nil {
		return errs.Wrap(errs.KindIO, err, "write header")
	}
	return nil
}

// readErr classifies a short read as a format problem and anything else
// as an I/O failure.
func readErr(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.Wrap(errs.KindInvalidFormat, err, "file truncated reading %s", what)
	}
	return errs.Wrap(errs.KindIO, err, "read %s", what)
}
