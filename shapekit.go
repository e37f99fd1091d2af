// Package shapekit reads and writes ESRI Shapefile datasets: the .shp
// geometry stream, its .shx offset index, the .dbf attribute table and the
// optional .prj projection. It also converts datasets to orb geometries,
// GeoJSON and FlatGeobuf.
package shapekit

import (
	"time"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/logging"
)

// Common errors returned by this package. Every error carries one of these
// kinds and matches it under errors.Is.
var (
	ErrFileNotFound    = errs.ErrFileNotFound
	ErrInvalidFormat   = errs.ErrInvalidFormat
	ErrUnsupportedType = errs.ErrUnsupportedType
	ErrInvalidHeader   = errs.ErrInvalidHeader
	ErrInvalidBounds   = errs.ErrInvalidBounds
	ErrCorruptedData   = errs.ErrCorruptedData
	ErrIO              = errs.ErrIO
)

// Logger receives debug and warning messages from the codecs.
type Logger = logging.Logger

// DefaultMaxBufferSize is the default cap on a single read or write.
const DefaultMaxBufferSize = 1 << 20

// Options configures reading and writing.
type Options struct {
	UseUTF8  bool // character fields are UTF-8
	UseCP949 bool // character fields are CP949 (Korean)

	// MaxBufferSize caps the bytes moved by one read or write call. A
	// record larger than the cap is still moved whole.
	MaxBufferSize int

	// LenientNumbers reads malformed numeric and date fields as zero
	// instead of failing.
	LenientNumbers bool

	ModTime time.Time // .dbf last-update date; zero means now
	Logger  Logger
}

// DefaultOptions returns ASCII text, a 1 MiB buffer and no logging.
func DefaultOptions() *Options {
	return &Options{
		MaxBufferSize: DefaultMaxBufferSize,
		Logger:        logging.Nop(),
	}
}

// encoding resolves the text encoding flags.
func (o *Options) encoding() (dbf.Encoding, error) {
	switch {
	case o.UseUTF8 && o.UseCP949:
		return dbf.ASCII, errs.New(errs.KindInvalidFormat, "UseUTF8 and UseCP949 are mutually exclusive")
	case o.UseUTF8:
		return dbf.UTF8, nil
	case o.UseCP949:
		return dbf.CP949, nil
	default:
		return dbf.ASCII, nil
	}
}

func (o *Options) tableOptions(enc dbf.Encoding) dbf.Options {
	return dbf.Options{
		Encoding:       enc,
		MaxBufferSize:  o.MaxBufferSize,
		LenientNumbers: o.LenientNumbers,
		ModTime:        o.ModTime,
		Logger:         o.Logger,
	}
}
