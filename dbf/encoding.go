package dbf

import (
	"unicode/utf8"

	"github.com/Silvesterrr/shapekit/errs"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Encoding selects how character fields and field names are converted
// between Go strings and bytes.
type Encoding uint8

const (
	// ASCII keeps 7-bit characters and replaces everything else with '?'.
	ASCII Encoding = iota
	// UTF8 stores text as UTF-8 bytes.
	UTF8
	// CP949 is the Korean Unified Hangul Code page, a superset of EUC-KR.
	CP949
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ASCII"
	case UTF8:
		return "UTF-8"
	case CP949:
		return "CP949"
	default:
		return "Encoding(?)"
	}
}

// asciiOnly maps any rune outside 7-bit ASCII, including invalid input
// bytes, to '?'.
func asciiOnly() transform.Transformer {
	return runes.Map(func(r rune) rune {
		if r >= utf8.RuneSelf {
			return '?'
		}
		return r
	})
}

// Encode converts s to the on-disk byte form.
func (e Encoding) Encode(s string) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch e {
	case ASCII:
		out, _, err = transform.Bytes(asciiOnly(), []byte(s))
	case UTF8:
		out, err = unicode.UTF8.NewEncoder().Bytes([]byte(s))
	case CP949:
		out, err = encoding.ReplaceUnsupported(korean.EUCKR.NewEncoder()).Bytes([]byte(s))
	default:
		return nil, errs.New(errs.KindInvalidFormat, "unknown text encoding %d", uint8(e))
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptedData, err, "encode %q as %v", s, e)
	}
	return out, nil
}

// Decode converts on-disk bytes to a string.
func (e Encoding) Decode(b []byte) (string, error) {
	var (
		out []byte
		err error
	)
	switch e {
	case ASCII:
		out, _, err = transform.Bytes(asciiOnly(), b)
	case UTF8:
		out, err = unicode.UTF8.NewDecoder().Bytes(b)
	case CP949:
		out, err = korean.EUCKR.NewDecoder().Bytes(b)
	default:
		return "", errs.New(errs.KindInvalidFormat, "unknown text encoding %d", uint8(e))
	}
	if err != nil {
		return "", errs.Wrap(errs.KindCorruptedData, err, "decode text as %v", e)
	}
	return string(out), nil
}

// EncodedLen returns the number of bytes s occupies on disk.
func (e Encoding) EncodedLen(s string) (int, error) {
	b, err := e.Encode(s)
	return len(b), err
}

// truncate encodes s and cuts it to at most n bytes on a character
// boundary.
func (e Encoding) truncate(s string, n int) ([]byte, error) {
	b, err := e.Encode(s)
	if err != nil || len(b) <= n {
		return b, err
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		if b, err = e.Encode(string(r)); err != nil || len(b) <= n {
			return b, err
		}
	}
	return nil, nil
}
