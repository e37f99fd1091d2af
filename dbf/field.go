// Package dbf reads and writes dBASE III attribute tables, the .dbf member
// of a shapefile dataset.
package dbf

import (
	"fmt"

	"github.com/Silvesterrr/shapekit/errs"
)

// FieldType is the one-letter dBASE column type.
type FieldType byte

const (
	Character FieldType = 'C'
	Date      FieldType = 'D'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
)

func (t FieldType) String() string {
	switch t {
	case Character, Date, Numeric, Float, Logical:
		return string(rune(t))
	default:
		return fmt.Sprintf("FieldType(%#x)", byte(t))
	}
}

// Valid reports whether t is one of the supported column types.
func (t FieldType) Valid() bool {
	switch t {
	case Character, Date, Numeric, Float, Logical:
		return true
	}
	return false
}

// MaxNameLen is the number of name bytes stored in a field descriptor.
// Longer names are cut silently.
const MaxNameLen = 11

// MaxFieldLen is the largest width a field descriptor can carry after
// widening.
const MaxFieldLen = 254

// Field describes one column of the attribute table. ID and Flag are the
// descriptor bytes at offsets 20 and 23; they are carried through a read
// and write unchanged and have no meaning to this package.
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int
	ID       byte
	Flag     byte
}

// CharacterField returns a text column of the given width.
func CharacterField(name string, length int) Field {
	return Field{Name: name, Type: Character, Length: length}
}

// NumericField returns a number column. Zero decimals reads back as int64.
func NumericField(name string, length, decimals int) Field {
	return Field{Name: name, Type: Numeric, Length: length, Decimals: decimals}
}

// FloatField returns a floating point column.
func FloatField(name string, length, decimals int) Field {
	return Field{Name: name, Type: Float, Length: length, Decimals: decimals}
}

// DateField returns a YYYYMMDD column.
func DateField(name string) Field {
	return Field{Name: name, Type: Date, Length: 8}
}

// LogicalField returns a one-byte boolean column.
func LogicalField(name string) Field {
	return Field{Name: name, Type: Logical, Length: 1}
}

// validate checks that f can be written to a descriptor.
func (f Field) validate() error {
	fail := func(format string, args ...any) error {
		return errs.New(errs.KindInvalidFormat, format, args...).With("field", f.Name)
	}
	switch {
	case f.Name == "":
		return fail("field name is empty")
	case !f.Type.Valid():
		return fail("unsupported field type %v", f.Type)
	case f.Length < 1 || f.Length > MaxFieldLen:
		return fail("field length %d out of range 1-%d", f.Length, MaxFieldLen)
	case f.Decimals < 0 || f.Decimals > 255:
		return fail("decimal count %d out of range", f.Decimals)
	case f.Type == Date && f.Length != 8:
		return fail("date field length %d, want 8", f.Length)
	case f.Type == Logical && f.Length != 1:
		return fail("logical field length %d, want 1", f.Length)
	case (f.Type == Numeric || f.Type == Float) && f.Decimals > 0 && f.Decimals >= f.Length:
		return fail("decimal count %d does not fit length %d", f.Decimals, f.Length)
	}
	return nil
}

// ValidateFields checks that every field fits a descriptor.
func ValidateFields(fields []Field) error {
	for _, f := range fields {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}
