package dbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/chunk"
	"github.com/Silvesterrr/shapekit/internal/logging"
)

// Layout constants of the dBASE III file.
const (
	Version        = 0x03
	HeaderSize     = 32
	DescriptorSize = 32

	terminator = 0x0D
	eofMarker  = 0x1A
	active     = 0x20
	deleted    = 0x2A

	// maxPrealloc caps row slices sized from the header record count.
	maxPrealloc = 1 << 16
)

// Options control reading and writing of a table.
type Options struct {
	Encoding Encoding

	// MaxBufferSize caps the bytes handed to a single Read or Write call.
	// Rows are never split; zero means unbounded.
	MaxBufferSize int

	// LenientNumbers turns malformed N, F and D values into zero instead
	// of failing the read.
	LenientNumbers bool

	// ModTime is stored as the last-update date. Zero means now.
	ModTime time.Time

	Logger logging.Logger
}

func (o Options) logger() logging.Logger {
	if o.Logger == nil {
		return logging.Nop()
	}
	return o.Logger
}

// Table is a decoded attribute table. Rows[i][j] holds the value of
// Fields[j] for record i; Deleted[i] reports the record's deletion flag.
type Table struct {
	Fields  []Field
	Rows    [][]any
	Deleted []bool
	ModTime time.Time
}

// Header is the fixed 32-byte table header.
type Header struct {
	Version      byte
	ModTime      time.Time
	NumRecords   uint32
	HeaderLength uint16
	RecordLength uint16
}

// Widen returns a copy of fields in which every character field whose
// longest encoded value reaches its declared length is widened to that
// value's length plus one. Rows are checked against the field count.
func Widen(fields []Field, rows [][]any, enc Encoding) ([]Field, error) {
	out := make([]Field, len(fields))
	copy(out, fields)

	longest := make([]int, len(fields))
	for i, row := range rows {
		if len(row) != len(fields) {
			return nil, errs.New(errs.KindCorruptedData, "row has %d values for %d fields", len(row), len(fields)).
				With("row", i+1)
		}
		for j, v := range row {
			if fields[j].Type != Character || v == nil {
				continue
			}
			s, ok := stringValue(v)
			if !ok {
				return nil, typeMismatch(fields[j], v)
			}
			n, err := enc.EncodedLen(s)
			if err != nil {
				return nil, err
			}
			longest[j] = max(longest[j], n)
		}
	}

	for j, n := range longest {
		if n == 0 || n < out[j].Length {
			continue
		}
		if n+1 > MaxFieldLen {
			return nil, errs.New(errs.KindInvalidFormat, "text of %d bytes exceeds the %d byte field limit", n, MaxFieldLen).
				With("field", out[j].Name)
		}
		out[j].Length = n + 1
	}
	return out, nil
}

// RecordLength returns the byte width of one row, deletion flag included.
func RecordLength(fields []Field) int {
	n := 1
	for _, f := range fields {
		n += f.Length
	}
	return n
}

// HeaderLength returns the byte length of the header and descriptors,
// terminator included.
func HeaderLength(fields []Field) int {
	return HeaderSize + DescriptorSize*len(fields) + 1
}

// ValidateRows encodes every row against fields into a scratch record and
// reports the first value that Write would reject. fields must already be
// widened.
func ValidateRows(fields []Field, rows [][]any, enc Encoding) error {
	rec := make([]byte, RecordLength(fields))
	for i, row := range rows {
		if len(row) != len(fields) {
			return errs.New(errs.KindCorruptedData, "row has %d values for %d fields", len(row), len(fields)).
				With("row", i+1)
		}
		if err := encodeRow(rec, fields, row, enc); err != nil {
			return errs.With(err, "row", i+1)
		}
	}
	return nil
}

// Write widens the schema, then writes the header, the field descriptors,
// the rows and the end-of-file marker. It returns the schema as written.
func Write(w io.Writer, fields []Field, rows [][]any, opts Options) ([]Field, error) {
	fields, err := Widen(fields, rows, opts.Encoding)
	if err != nil {
		return nil, err
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}

	recLen := RecordLength(fields)
	hdrLen := HeaderLength(fields)
	if recLen > 0xFFFF || hdrLen > 0xFFFF {
		return nil, errs.New(errs.KindInvalidFormat, "table too wide: record %d bytes, header %d bytes", recLen, hdrLen)
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	head := make([]byte, hdrLen)
	Header{
		Version:      Version,
		ModTime:      modTime,
		NumRecords:   uint32(len(rows)),
		HeaderLength: uint16(hdrLen),
		RecordLength: uint16(recLen),
	}.encode(head)
	for i, f := range fields {
		if err := encodeDescriptor(head[HeaderSize+i*DescriptorSize:], f, opts.Encoding); err != nil {
			return nil, err
		}
	}
	head[hdrLen-1] = terminator
	if _, err := w.Write(head); err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "write table header")
	}

	spans := chunk.Uniform(len(rows), recLen, opts.MaxBufferSize)
	buf := make([]byte, chunk.MaxBytes(spans))
	for _, s := range spans {
		for i := s.Start; i < s.End; i++ {
			rec := buf[(i-s.Start)*recLen : (i-s.Start+1)*recLen]
			if err := encodeRow(rec, fields, rows[i], opts.Encoding); err != nil {
				if e, ok := err.(*errs.Error); ok {
					return nil, e.With("row", i+1)
				}
				return nil, err
			}
		}
		if _, err := w.Write(buf[:s.Bytes]); err != nil {
			return nil, errs.Wrap(errs.KindIO, err, "write rows %d-%d", s.Start+1, s.End)
		}
	}

	if _, err := w.Write([]byte{eofMarker}); err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "write end of file marker")
	}
	opts.logger().Debug("wrote attribute table", "fields", len(fields), "rows", len(rows), "chunks", len(spans))
	return fields, nil
}

func encodeRow(rec []byte, fields []Field, row []any, enc Encoding) error {
	for i := range rec {
		rec[i] = ' '
	}
	rec[0] = active
	pos := 1
	for j, f := range fields {
		if err := encodeValue(rec[pos:pos+f.Length], f, row[j], enc); err != nil {
			return err
		}
		pos += f.Length
	}
	return nil
}

// Read decodes a whole table. A missing end-of-file marker is tolerated.
func Read(r io.Reader, opts Options) (*Table, error) {
	log := opts.logger()

	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, readErr(err, "table header")
	}
	h, err := DecodeHeader(head)
	if err != nil {
		return nil, err
	}

	descs := make([]byte, int(h.HeaderLength)-HeaderSize)
	if _, err := io.ReadFull(r, descs); err != nil {
		return nil, readErr(err, "field descriptors")
	}
	fields, err := decodeDescriptors(descs, opts.Encoding)
	if err != nil {
		return nil, err
	}
	if want := RecordLength(fields); want != int(h.RecordLength) {
		return nil, errs.New(errs.KindCorruptedData, "record length %d, fields need %d", h.RecordLength, want)
	}

	n := int(h.NumRecords)
	t := &Table{
		Fields:  fields,
		Rows:    make([][]any, 0, min(n, maxPrealloc)),
		Deleted: make([]bool, 0, min(n, maxPrealloc)),
		ModTime: h.ModTime,
	}
	dec := &decoder{enc: opts.Encoding, lenient: opts.LenientNumbers, warn: log.Warn}
	recLen := int(h.RecordLength)

	// The record count is not trusted for sizing: spans are planned one at
	// a time and a short file surfaces as a truncation error.
	rd := chunk.NewReader(r)
	per := chunk.PerSpan(n, recLen, opts.MaxBufferSize)
	chunks := 0
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		buf, err := rd.Next((end - start) * recLen)
		if err != nil {
			return t, readErr(err, "rows")
		}
		chunks++
		for i := start; i < end; i++ {
			rec := buf[(i-start)*recLen : (i-start+1)*recLen]
			row, err := decodeRow(rec, fields, dec)
			if err != nil {
				if e, ok := err.(*errs.Error); ok {
					err = e.With("row", i+1)
				}
				return t, err
			}
			t.Rows = append(t.Rows, row)
			t.Deleted = append(t.Deleted, rec[0] == deleted)
			if rec[0] == deleted {
				log.Warn("row is flagged deleted", "row", i+1)
			}
		}
	}
	log.Debug("read attribute table", "fields", len(fields), "rows", len(t.Rows), "chunks", chunks)
	return t, nil
}

func decodeRow(rec []byte, fields []Field, dec *decoder) ([]any, error) {
	row := make([]any, len(fields))
	pos := 1
	for j, f := range fields {
		v, err := dec.decode(rec[pos:pos+f.Length], f)
		if err != nil {
			return nil, err
		}
		row[j] = v
		pos += f.Length
	}
	return row, nil
}

// DecodeHeader parses the fixed 32-byte header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.New(errs.KindInvalidFormat, "table header needs %d bytes, got %d", HeaderSize, len(buf))
	}
	h := Header{
		Version:      buf[0],
		NumRecords:   binary.LittleEndian.Uint32(buf[4:8]),
		HeaderLength: binary.LittleEndian.Uint16(buf[8:10]),
		RecordLength: binary.LittleEndian.Uint16(buf[10:12]),
	}
	// 0x83 marks a table with a memo file, which is ignored.
	if h.Version&0x7F != Version {
		return Header{}, errs.New(errs.KindInvalidHeader, "table version %#x", h.Version)
	}
	if int(h.HeaderLength) < HeaderSize+1 || h.RecordLength < 1 {
		return Header{}, errs.New(errs.KindInvalidHeader, "header length %d, record length %d", h.HeaderLength, h.RecordLength)
	}
	if buf[2] >= 1 && buf[2] <= 12 && buf[3] >= 1 && buf[3] <= 31 {
		h.ModTime = time.Date(1900+int(buf[1]), time.Month(buf[2]), int(buf[3]), 0, 0, 0, 0, time.UTC)
	}
	return h, nil
}

func (h Header) encode(buf []byte) {
	clear(buf[:HeaderSize])
	buf[0] = h.Version
	buf[1] = byte(h.ModTime.Year() - 1900)
	buf[2] = byte(h.ModTime.Month())
	buf[3] = byte(h.ModTime.Day())
	binary.LittleEndian.PutUint32(buf[4:8], h.NumRecords)
	binary.LittleEndian.PutUint16(buf[8:10], h.HeaderLength)
	binary.LittleEndian.PutUint16(buf[10:12], h.RecordLength)
}

func encodeDescriptor(buf []byte, f Field, enc Encoding) error {
	clear(buf[:DescriptorSize])
	name, err := enc.truncate(f.Name, MaxNameLen)
	if err != nil {
		return err
	}
	copy(buf[0:MaxNameLen], name)
	buf[11] = byte(f.Type)
	buf[16] = byte(f.Length)
	buf[17] = byte(f.Decimals)
	buf[20] = f.ID
	buf[23] = f.Flag
	return nil
}

// decodeDescriptors parses descriptors up to the terminator byte.
func decodeDescriptors(buf []byte, enc Encoding) ([]Field, error) {
	var fields []Field
	for pos := 0; ; pos += DescriptorSize {
		if pos < len(buf) && buf[pos] == terminator {
			return fields, nil
		}
		if pos+DescriptorSize > len(buf) {
			return nil, errs.New(errs.KindInvalidFormat, "field descriptors are not terminated")
		}
		d := buf[pos : pos+DescriptorSize]

		raw := d[:MaxNameLen]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		name, err := enc.Decode(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		f := Field{
			Name:     name,
			Type:     FieldType(d[11]),
			Length:   int(d[16]),
			Decimals: int(d[17]),
			ID:       d[20],
			Flag:     d[23],
		}
		if !f.Type.Valid() {
			return nil, errs.New(errs.KindUnsupportedType, "field type %v", f.Type).With("field", f.Name)
		}
		if f.Length == 0 {
			return nil, errs.New(errs.KindCorruptedData, "zero length field").With("field", f.Name)
		}
		fields = append(fields, f)
	}
}

func readErr(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.Wrap(errs.KindInvalidFormat, err, "file truncated reading %s", what)
	}
	return errs.Wrap(errs.KindIO, err, "read %s", what)
}
