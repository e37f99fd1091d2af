package shp

import (
	"encoding/binary"
	"io"

	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/chunk"
)

// Offset locates one record of the geometry stream. Offset is the byte
// position of the record header; Length is the content length in bytes.
// Offsets are positional: the i-th offset belongs to the i-th record.
type Offset struct {
	Offset int64
	Length int
}

// ReadIndex reads a whole .shx file. The returned order is the
// authoritative record order of the geometry stream.
func ReadIndex(r io.Reader) (Header, []Offset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, errs.Wrap(errs.KindIO, err, "read index")
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}

	size := h.ByteLength()
	if size < HeaderSize || size > int64(len(data)) {
		return h, nil, errs.New(errs.KindCorruptedData, "index declares %d bytes, file has %d", size, len(data))
	}
	n := int((size - HeaderSize) / IndexRecordSize)

	offsets := make([]Offset, n)
	for i := range offsets {
		rec := data[HeaderSize+i*IndexRecordSize:]
		offsets[i] = Offset{
			Offset: int64(int32(binary.BigEndian.Uint32(rec[0:4]))) * 2,
			Length: int(int32(binary.BigEndian.Uint32(rec[4:8]))) * 2,
		}
		if offsets[i].Offset < HeaderSize || offsets[i].Length < 0 {
			return h, nil, errs.New(errs.KindCorruptedData, "invalid index entry").
				With("record", i+1).With("offset", offsets[i].Offset).With("length", offsets[i].Length)
		}
	}
	return h, offsets, nil
}

// IndexLength returns the .shx file length in bytes for n records.
func IndexLength(n int) int64 {
	return HeaderSize + int64(n)*IndexRecordSize
}

// WriteIndex writes a .shx file: the header, with its file length computed
// from the record count, then the offsets in batches of at most maxBuffer
// bytes.
func WriteIndex(w io.Writer, h Header, offsets []Offset, maxBuffer int) error {
	h.FileLength = int32(IndexLength(len(offsets)) / 2)
	if err := writeHeader(w, h); err != nil {
		return err
	}

	spans := chunk.Uniform(len(offsets), IndexRecordSize, maxBuffer)
	buf := make([]byte, chunk.MaxBytes(spans))
	for _, s := range spans {
		pos := 0
		for _, o := range offsets[s.Start:s.End] {
			binary.BigEndian.PutUint32(buf[pos:], uint32(o.Offset/2))
			binary.BigEndian.PutUint32(buf[pos+4:], uint32(o.Length/2))
			pos += IndexRecordSize
		}
		if _, err := w.Write(buf[:s.Bytes]); err != nil {
			return errs.Wrap(errs.KindIO, err, "write index records %d-%d", s.Start+1, s.End)
		}
	}
	return nil
}
