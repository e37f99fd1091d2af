package dbf

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modTime = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

func cityFields() []Field {
	return []Field{
		CharacterField("NAME", 50),
		NumericField("POP", 10, 0),
		FloatField("AREA", 10, 2),
		LogicalField("CAPITAL"),
	}
}

func writeTable(t *testing.T, fields []Field, rows [][]any, opts Options) ([]byte, []Field) {
	t.Helper()
	if opts.ModTime.IsZero() {
		opts.ModTime = modTime
	}
	var buf bytes.Buffer
	written, err := Write(&buf, fields, rows, opts)
	require.NoError(t, err)
	return buf.Bytes(), written
}

func TestTable_AttributeFidelity(t *testing.T) {
	rows := [][]any{{"Seoul", 9776000, 605.21, true}}
	data, _ := writeTable(t, cityFields(), rows, Options{})

	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, "Seoul", strings.TrimSpace(row[0].(string)))
	assert.Equal(t, int64(9776000), row[1])
	assert.InDelta(t, 605.21, row[2].(float64), 0.01)
	assert.Equal(t, true, row[3])
	assert.Equal(t, []bool{false}, table.Deleted)
	assert.Equal(t, cityFields(), table.Fields)
}

func TestTable_Layout(t *testing.T) {
	rows := [][]any{{"Seoul", 9776000, 605.21, true}, {"Busan", 3400000, 770.0, false}}
	data, _ := writeTable(t, cityFields(), rows, Options{})

	hdrLen := HeaderSize + 4*DescriptorSize + 1
	recLen := 1 + 50 + 10 + 10 + 1
	require.Len(t, data, hdrLen+2*recLen+1)

	assert.Equal(t, byte(0x03), data[0])
	assert.Equal(t, []byte{124, 3, 15}, data[1:4])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, uint16(hdrLen), binary.LittleEndian.Uint16(data[8:]))
	assert.Equal(t, uint16(recLen), binary.LittleEndian.Uint16(data[10:]))
	assert.Equal(t, byte(0x0D), data[hdrLen-1])
	assert.Equal(t, byte(0x1A), data[len(data)-1])

	desc := data[HeaderSize+DescriptorSize:]
	assert.Equal(t, "POP\x00\x00\x00\x00\x00\x00\x00\x00", string(desc[:11]))
	assert.Equal(t, byte('N'), desc[11])
	assert.Equal(t, byte(10), desc[16])

	rec := data[hdrLen : hdrLen+recLen]
	assert.Equal(t, byte(' '), rec[0])
	assert.Equal(t, "9776000   ", string(rec[51:61]))
	assert.Equal(t, "605.21    ", string(rec[61:71]))
	assert.Equal(t, byte('T'), rec[71])
}

func TestTable_Widening(t *testing.T) {
	fields := []Field{CharacterField("CITY", 4)}
	data, written := writeTable(t, fields, [][]any{{"Seoul"}, {"Ulm"}}, Options{})
	assert.Equal(t, 6, written[0].Length)
	assert.Equal(t, 4, fields[0].Length, "input schema is not mutated")

	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, table.Fields[0].Length)
	assert.Equal(t, "Seoul", table.Rows[0][0])
	assert.Equal(t, "Ulm", table.Rows[1][0])
}

func TestWiden(t *testing.T) {
	tests := []struct {
		name   string
		length int
		value  any
		enc    Encoding
		want   int
	}{
		{"shorter", 10, "abc", ASCII, 10},
		{"equal", 3, "abc", ASCII, 4},
		{"longer", 2, "abcde", ASCII, 6},
		{"nil", 1, nil, ASCII, 1},
		{"utf8 multibyte", 4, "서울", UTF8, 7},
		{"cp949 multibyte", 4, "서울", CP949, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Widen([]Field{CharacterField("F", tt.length)}, [][]any{{tt.value}}, tt.enc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[0].Length)
		})
	}

	_, err := Widen([]Field{CharacterField("F", 10)}, [][]any{{strings.Repeat("x", 254)}}, ASCII)
	assert.ErrorIs(t, err, errs.ErrInvalidFormat)

	_, err = Widen([]Field{CharacterField("F", 10)}, [][]any{{"a", "b"}}, ASCII)
	assert.ErrorIs(t, err, errs.ErrCorruptedData)

	// Only character fields widen.
	got, err := Widen([]Field{NumericField("N", 2, 0)}, [][]any{{12345}}, ASCII)
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].Length)
}

func TestTable_Encodings(t *testing.T) {
	for _, enc := range []Encoding{UTF8, CP949} {
		t.Run(enc.String(), func(t *testing.T) {
			fields := []Field{CharacterField("이름", 20)}
			data, _ := writeTable(t, fields, [][]any{{"서울특별시"}}, Options{Encoding: enc})

			table, err := Read(bytes.NewReader(data), Options{Encoding: enc})
			require.NoError(t, err)
			assert.Equal(t, "이름", table.Fields[0].Name)
			assert.Equal(t, "서울특별시", table.Rows[0][0])
		})
	}

	n, err := CP949.EncodedLen("서울")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	b, err := ASCII.Encode("café")
	require.NoError(t, err)
	assert.Equal(t, "caf?", string(b))

	s, err := ASCII.Decode([]byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "caf?", s)
}

func TestTable_FieldNameTruncation(t *testing.T) {
	data, _ := writeTable(t, []Field{CharacterField("POPULATION_2020", 8)}, nil, Options{})
	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, "POPULATION_", table.Fields[0].Name)

	// Multibyte names are cut on a character boundary.
	data, _ = writeTable(t, []Field{CharacterField("서울특별시청", 8)}, nil, Options{Encoding: UTF8})
	table, err = Read(bytes.NewReader(data), Options{Encoding: UTF8})
	require.NoError(t, err)
	assert.Equal(t, "서울특", table.Fields[0].Name)
}

func TestTable_DescriptorBytesPreserved(t *testing.T) {
	f := CharacterField("NAME", 10)
	f.ID, f.Flag = 0x07, 0x01
	data, _ := writeTable(t, []Field{f}, [][]any{{"x"}}, Options{})

	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), table.Fields[0].ID)
	assert.Equal(t, byte(0x01), table.Fields[0].Flag)
}

func TestTable_DatesAndNulls(t *testing.T) {
	fields := []Field{DateField("SINCE"), NumericField("N", 6, 0), FloatField("F", 8, 3), LogicalField("L"), CharacterField("C", 5)}
	rows := [][]any{
		{time.Date(1998, time.July, 4, 0, 0, 0, 0, time.UTC), -42, float32(1.5), false, "abc"},
		{time.Time{}, nil, nil, nil, nil},
	}
	data, _ := writeTable(t, fields, rows, Options{})

	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)

	got := table.Rows[0]
	assert.True(t, time.Date(1998, time.July, 4, 0, 0, 0, 0, time.UTC).Equal(got[0].(time.Time)))
	assert.Equal(t, int64(-42), got[1])
	assert.Equal(t, 1.5, got[2])
	assert.Equal(t, false, got[3])

	blank := table.Rows[1]
	assert.True(t, blank[0].(time.Time).IsZero())
	assert.Nil(t, blank[1])
	assert.Nil(t, blank[2])
	assert.Nil(t, blank[3])
	assert.Equal(t, "", blank[4])

	recLen := RecordLength(fields)
	hdrLen := HeaderLength(fields)
	second := data[hdrLen+recLen : hdrLen+2*recLen]
	assert.Equal(t, "        ", string(second[1:9]))
	assert.Equal(t, byte('?'), second[1+8+6+8])
}

func TestTable_LogicalReadVariants(t *testing.T) {
	fields := []Field{LogicalField("L")}
	data, _ := writeTable(t, fields, [][]any{{true}, {true}, {true}, {true}}, Options{})
	hdrLen := HeaderLength(fields)
	for i, c := range []byte{'y', 'N', 'f', ' '} {
		data[hdrLen+i*2+1] = c
	}

	table, err := Read(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{true}, {false}, {false}, {nil}}, table.Rows)
}

func TestTable_MalformedNumbers(t *testing.T) {
	fields := []Field{NumericField("POP", 10, 0)}
	data, _ := writeTable(t, fields, [][]any{{123}}, Options{})
	slot := HeaderLength(fields) + 1
	copy(data[slot:], "12-3      ")

	_, err := Read(bytes.NewReader(data), Options{})
	assert.ErrorIs(t, err, errs.ErrCorruptedData)

	var logs bytes.Buffer
	table, err := Read(bytes.NewReader(data), Options{
		LenientNumbers: true,
		Logger:         logging.NewLogger(&logs, slog.LevelDebug),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), table.Rows[0][0])
	assert.Contains(t, logs.String(), "coercing malformed value to zero")
}

func TestTable_WriteErrors(t *testing.T) {
	var buf bytes.Buffer

	_, err := Write(&buf, []Field{NumericField("N", 3, 0)}, [][]any{{12345}}, Options{})
	assert.ErrorIs(t, err, errs.ErrCorruptedData)

	_, err = Write(&buf, []Field{NumericField("N", 3, 0)}, [][]any{{"12"}}, Options{})
	assert.ErrorIs(t, err, errs.ErrCorruptedData)

	_, err = Write(&buf, []Field{LogicalField("L")}, [][]any{{1}}, Options{})
	assert.ErrorIs(t, err, errs.ErrCorruptedData)

	_, err = Write(&buf, []Field{{Name: "X", Type: 'M', Length: 10}}, nil, Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidFormat)

	_, err = Write(&buf, []Field{{Name: "D", Type: Date, Length: 6}}, nil, Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidFormat)
}

func TestTable_Chunking(t *testing.T) {
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{"city", i * 1000, float64(i) / 4, i%2 == 0}
	}
	ref, _ := writeTable(t, cityFields(), rows, Options{})
	recLen := RecordLength(cityFields())

	for _, maxBuffer := range []int{1, recLen, 2 * recLen, 3*recLen - 1, 1 << 20} {
		data, _ := writeTable(t, cityFields(), rows, Options{MaxBufferSize: maxBuffer})
		assert.Equal(t, ref, data, "maxBuffer %d", maxBuffer)

		table, err := Read(bytes.NewReader(data), Options{MaxBufferSize: maxBuffer})
		require.NoError(t, err)
		require.Len(t, table.Rows, len(rows))
		assert.Equal(t, int64(24000), table.Rows[24][1])
	}
}

func TestRead_TolerantAndCorrupt(t *testing.T) {
	data, _ := writeTable(t, cityFields(), [][]any{{"Seoul", 1, 2.0, true}}, Options{})

	// Missing end-of-file marker.
	table, err := Read(bytes.NewReader(data[:len(data)-1]), Options{})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	// Deleted flag.
	flagged := append([]byte{}, data...)
	flagged[HeaderLength(cityFields())] = '*'
	table, err = Read(bytes.NewReader(flagged), Options{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, table.Deleted)

	// Truncated rows.
	_, err = Read(bytes.NewReader(data[:len(data)-10]), Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidFormat)

	// Wrong version byte.
	bad := append([]byte{}, data...)
	bad[0] = 0x30
	_, err = Read(bytes.NewReader(bad), Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidHeader)

	// Record length disagreeing with the descriptors.
	bad = append([]byte{}, data...)
	binary.LittleEndian.PutUint16(bad[10:], 99)
	_, err = Read(bytes.NewReader(bad), Options{})
	assert.ErrorIs(t, err, errs.ErrCorruptedData)
}

func TestValidateRows(t *testing.T) {
	fields := cityFields()
	require.NoError(t, ValidateRows(fields, [][]any{{"Seoul", 1, 2.0, true}, {nil, nil, nil, nil}}, ASCII))

	tests := []struct {
		name string
		row  []any
	}{
		{"string in numeric", []any{"Seoul", "many", 2.0, true}},
		{"numeric too wide", []any{"Seoul", int64(12345678901), 2.0, true}},
		{"string in logical", []any{"Seoul", 1, 2.0, "yes"}},
		{"short row", []any{"Seoul"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRows(fields, [][]any{{"Busan", 2, 3.0, false}, tt.row}, ASCII)
			assert.ErrorIs(t, err, errs.ErrCorruptedData)
			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 2, e.Details["row"])
		})
	}
}

func TestRead_RecordCountBeyondData(t *testing.T) {
	data, _ := writeTable(t, cityFields(), [][]any{{"Seoul", 1, 2.0, true}}, Options{})
	binary.LittleEndian.PutUint32(data[4:8], 0xFFFFFFFF)

	for _, maxBuffer := range []int{0, RecordLength(cityFields()), 1 << 20} {
		table, err := Read(bytes.NewReader(data), Options{MaxBufferSize: maxBuffer})
		assert.ErrorIs(t, err, errs.ErrInvalidFormat, "maxBuffer %d", maxBuffer)
		require.NotNil(t, table)
		assert.LessOrEqual(t, len(table.Rows), 1)
	}
}

func TestDecodeHeader_ModTime(t *testing.T) {
	data, _ := writeTable(t, cityFields(), nil, Options{})
	h, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.True(t, modTime.Equal(h.ModTime))
	assert.Equal(t, uint32(0), h.NumRecords)
}
