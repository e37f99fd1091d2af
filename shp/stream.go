package shp

import (
	"encoding/binary"
	"io"

	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/chunk"
)

// Layout is the result of analyzing a record set before writing it.
type Layout struct {
	Offsets    []Offset
	FileLength int64 // .shp length in bytes
}

// Analyze computes the offset index and file length for records declared
// as type t, without any I/O. Every record must be of type t or null.
func Analyze(t ShapeType, bounds Bounds, records []Shape) (Layout, error) {
	if !t.Valid() {
		return Layout{}, errs.New(errs.KindInvalidHeader, "shape type not set")
	}
	if bounds.IsZero() {
		return Layout{}, errs.New(errs.KindInvalidBounds, "bounding box not set")
	}

	layout := Layout{Offsets: make([]Offset, len(records))}
	pos := int64(HeaderSize)
	for i, s := range records {
		if s == nil {
			return Layout{}, errs.New(errs.KindCorruptedData, "nil record").With("record", i+1)
		}
		if rt := s.Type(); rt != t && rt != TypeNull {
			return Layout{}, errs.New(errs.KindCorruptedData, "record type %v in a %v file", rt, t).
				With("record", i+1)
		}
		if err := Validate(s); err != nil {
			if e, ok := err.(*errs.Error); ok {
				return Layout{}, e.With("record", i+1)
			}
			return Layout{}, err
		}

		n := ContentLength(s)
		layout.Offsets[i] = Offset{Offset: pos, Length: n}
		pos += RecordHeaderSize + int64(n)
	}
	layout.FileLength = pos
	return layout, nil
}

// WriteRecords writes a .shp file laid out by Analyze. Records are grouped
// into writes of at most maxBuffer bytes; a record is never split, so a
// record larger than maxBuffer is written on its own.
func WriteRecords(w io.Writer, h Header, records []Shape, layout Layout, maxBuffer int) error {
	if len(layout.Offsets) != len(records) {
		return errs.New(errs.KindCorruptedData, "layout has %d offsets for %d records", len(layout.Offsets), len(records))
	}
	h.FileLength = int32(layout.FileLength / 2)
	if err := writeHeader(w, h); err != nil {
		return err
	}

	lengths := make([]int, len(records))
	for i, o := range layout.Offsets {
		lengths[i] = RecordHeaderSize + o.Length
	}
	spans := chunk.Plan(lengths, maxBuffer)
	buf := make([]byte, chunk.MaxBytes(spans))

	for _, s := range spans {
		pos := 0
		for i := s.Start; i < s.End; i++ {
			binary.BigEndian.PutUint32(buf[pos:], uint32(i+1))
			binary.BigEndian.PutUint32(buf[pos+4:], uint32(layout.Offsets[i].Length/2))
			n, err := Encode(buf, pos+RecordHeaderSize, records[i])
			if err != nil {
				return err
			}
			pos += RecordHeaderSize + n
		}
		if _, err := w.Write(buf[:s.Bytes]); err != nil {
			return errs.Wrap(errs.KindIO, err, "write records %d-%d", s.Start+1, s.End)
		}
	}
	return nil
}

// ReadRecords reads a .shp file using offsets as the record table. Reads
// are batched to at most maxBuffer bytes, never splitting a record. On a
// decoding failure the records decoded so far are returned with the error.
func ReadRecords(r io.Reader, offsets []Offset, maxBuffer int) (Header, []Shape, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}

	// Each record's span covers any gap since the previous record.
	lengths := make([]int, len(offsets))
	gaps := make([]int, len(offsets))
	pos := int64(HeaderSize)
	for i, o := range offsets {
		if o.Offset < pos {
			return h, nil, errs.New(errs.KindCorruptedData, "record overlaps its predecessor").
				With("record", i+1).With("offset", o.Offset)
		}
		gaps[i] = int(o.Offset - pos)
		lengths[i] = gaps[i] + RecordHeaderSize + o.Length
		pos = o.Offset + RecordHeaderSize + int64(o.Length)
	}

	spans := chunk.Plan(lengths, maxBuffer)
	rd := chunk.NewReader(r)
	records := make([]Shape, 0, len(offsets))

	for _, s := range spans {
		buf, err := rd.Next(s.Bytes)
		if err != nil {
			return h, records, readErr(err, "records")
		}
		cur := 0
		for i := s.Start; i < s.End; i++ {
			cur += gaps[i] + RecordHeaderSize
			rec, err := Decode(buf, cur, offsets[i].Length, h.ShapeType)
			if err != nil {
				if e, ok := err.(*errs.Error); ok {
					err = e.With("record", i+1)
				}
				return h, records, err
			}
			records = append(records, rec)
			cur += offsets[i].Length
		}
	}
	return h, records, nil
}
