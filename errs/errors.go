// Package errs defines the closed set of error kinds reported by the
// shapefile codecs.
//
// Every failure surfaced by shapekit is an *Error. Callers compare against
// the package sentinels with errors.Is:
//
//	if errors.Is(err, errs.ErrFileNotFound) {
//	    // ...
//	}
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFileNotFound
	KindInvalidFormat
	KindUnsupportedType
	KindInvalidHeader
	KindInvalidBounds
	KindCorruptedData
	KindIO
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindFileNotFound:    "file not found",
	KindInvalidFormat:   "invalid format",
	KindUnsupportedType: "unsupported type",
	KindInvalidHeader:   "invalid header",
	KindInvalidBounds:   "invalid bounds",
	KindCorruptedData:   "corrupted data",
	KindIO:              "i/o error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. A sentinel matches every *Error of its kind.
var (
	ErrFileNotFound    = &Error{Kind: KindFileNotFound}
	ErrInvalidFormat   = &Error{Kind: KindInvalidFormat}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrInvalidHeader   = &Error{Kind: KindInvalidHeader}
	ErrInvalidBounds   = &Error{Kind: KindInvalidBounds}
	ErrCorruptedData   = &Error{Kind: KindCorruptedData}
	ErrIO              = &Error{Kind: KindIO}
)

// Error is a codec failure.
type Error struct {
	Kind    Kind
	Path    string         // source file, when known
	Msg     string         // human-readable description
	Details map[string]any // structured context (record number, field name, ...)
	Err     error          // underlying cause
}

// New returns an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind caused by err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	c := *e
	c.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

// WithPath returns a copy of e attributed to path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// Error renders the kind, path, message and details.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("shapekit: ")
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AttachPath sets the path on the first *Error in err's chain when it has
// none. Other errors are returned unchanged.
func AttachPath(err error, path string) error {
	var e *Error
	if err == nil || !errors.As(err, &e) || e.Path != "" {
		return err
	}
	if e == err {
		return e.WithPath(path)
	}
	// Wrapped somewhere deeper: keep the chain, only annotate.
	e.Path = path
	return err
}

// With adds a detail to the first *Error in err's chain. Other errors are
// returned unchanged.
func With(err error, key string, value any) error {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return err
	}
	if e == err {
		return e.With(key, value)
	}
	e.Details = e.With(key, value).Details
	return err
}
