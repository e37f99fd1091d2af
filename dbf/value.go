package dbf

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Silvesterrr/shapekit/errs"
)

const dateLayout = "20060102"

// encodeValue writes v into slot, which is exactly f.Length bytes and
// already filled with spaces.
func encodeValue(slot []byte, f Field, v any, enc Encoding) error {
	if v == nil {
		if f.Type == Logical {
			slot[0] = '?'
		}
		return nil
	}

	var text []byte
	switch f.Type {
	case Character:
		s, ok := stringValue(v)
		if !ok {
			return typeMismatch(f, v)
		}
		b, err := enc.Encode(s)
		if err != nil {
			return err
		}
		text = b

	case Date:
		t, ok := v.(time.Time)
		if !ok {
			return typeMismatch(f, v)
		}
		if t.IsZero() {
			return nil
		}
		text = []byte(t.Format(dateLayout))

	case Numeric, Float:
		s, ok := formatNumber(v, f.Decimals)
		if !ok {
			return typeMismatch(f, v)
		}
		text = []byte(s)

	case Logical:
		b, ok := v.(bool)
		if !ok {
			return typeMismatch(f, v)
		}
		if b {
			text = []byte{'T'}
		} else {
			text = []byte{'F'}
		}
	}

	if len(text) > f.Length {
		return errs.New(errs.KindCorruptedData, "value %q wider than field", text).
			With("field", f.Name).With("length", f.Length)
	}
	copy(slot, text)
	return nil
}

func typeMismatch(f Field, v any) error {
	return errs.New(errs.KindCorruptedData, "%T value in %v field", v, f.Type).With("field", f.Name)
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

// formatNumber renders integers verbatim when decimals is zero and every
// other number with exactly decimals fraction digits.
func formatNumber(v any, decimals int) (string, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
		if decimals == 0 {
			return strconv.Itoa(n), true
		}
	case int8, int16, int32, int64:
		i := asInt64(n)
		if decimals == 0 {
			return strconv.FormatInt(i, 10), true
		}
		f = float64(i)
	case uint, uint8, uint16, uint32, uint64:
		u := asUint64(n)
		if decimals == 0 {
			return strconv.FormatUint(u, 10), true
		}
		f = float64(u)
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return "", false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', decimals, 64), true
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}

// decoder turns field slots back into Go values.
type decoder struct {
	enc     Encoding
	lenient bool
	warn    func(msg string, args ...any)
}

// decode returns string, time.Time, int64, float64, bool or nil depending
// on the field type.
func (d *decoder) decode(slot []byte, f Field) (any, error) {
	switch f.Type {
	case Character:
		return d.enc.Decode(bytes.TrimRight(slot, "\x00 \t\r\n"))

	case Date:
		s := string(bytes.Trim(slot, "\x00 "))
		if s == "" || s == "00000000" {
			return time.Time{}, nil
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return d.malformed(f, s, time.Time{}, err)
		}
		return t, nil

	case Numeric, Float:
		s := string(bytes.Trim(slot, "\x00 "))
		if s == "" {
			return nil, nil
		}
		if f.Type == Numeric && f.Decimals == 0 {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return d.malformed(f, s, int64(0), err)
			}
			return i, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return d.malformed(f, s, float64(0), err)
		}
		return v, nil

	case Logical:
		switch slot[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		}
		return nil, nil
	}
	return nil, errs.New(errs.KindUnsupportedType, "field type %v", f.Type).With("field", f.Name)
}

// malformed reports unparseable numeric or date text, or coerces it to
// zero in lenient mode.
func (d *decoder) malformed(f Field, text string, zero any, cause error) (any, error) {
	if d.lenient {
		d.warn("coercing malformed value to zero", "field", f.Name, "text", text)
		return zero, nil
	}
	return nil, errs.Wrap(errs.KindCorruptedData, cause, "malformed %v value %q", f.Type, text).With("field", f.Name)
}
