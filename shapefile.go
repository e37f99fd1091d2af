package shapekit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/internal/logging"
	"github.com/Silvesterrr/shapekit/prj"
	"github.com/Silvesterrr/shapekit/shp"
)

// Shapefile is an in-memory dataset. Records, Fields and Attributes may be
// replaced between a Read and a Write.
type Shapefile struct {
	ShapeType shp.ShapeType
	Bounds    shp.BoundsZ

	Records    []shp.Shape
	Fields     []dbf.Field
	Attributes [][]any // one row per record, one value per field
	Deleted    []bool  // deletion flags as read; never written

	Projection prj.Projection

	opts Options
	enc  dbf.Encoding
}

// Files names the members of a dataset.
type Files struct {
	Shp, Shx, Dbf, Prj string
}

// Paths returns the sibling files of a dataset. A trailing .shp (any case)
// is replaced; any other path is treated as the stem.
func Paths(path string) Files {
	stem := path
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		stem = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return Files{Shp: stem + ".shp", Shx: stem + ".shx", Dbf: stem + ".dbf", Prj: stem + ".prj"}
}

// New returns an empty dataset. A nil opts means DefaultOptions.
func New(opts *Options) (*Shapefile, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	enc, err := o.encoding()
	if err != nil {
		return nil, err
	}
	return &Shapefile{opts: o, enc: enc}, nil
}

// Open reads the dataset at path.
func Open(path string, opts *Options) (*Shapefile, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Read(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of records.
func (s *Shapefile) Len() int { return len(s.Records) }

// Feature returns record i and its attributes keyed by field name.
func (s *Shapefile) Feature(i int) (shp.Shape, map[string]any) {
	attrs := make(map[string]any, len(s.Fields))
	if i < len(s.Attributes) {
		for j, f := range s.Fields {
			if j < len(s.Attributes[i]) {
				attrs[f.Name] = s.Attributes[i][j]
			}
		}
	}
	return s.Records[i], attrs
}

// UpdateBounds recomputes the dataset extent from the records.
func (s *Shapefile) UpdateBounds() {
	s.Bounds = shp.ExtentOf(s.Records)
}

// Read loads the dataset at path. On a decoding failure the records read
// so far are kept and the error is returned.
func (s *Shapefile) Read(path string) error {
	files := Paths(path)
	return s.decode(dirSource{files: files}, files.Shp)
}

// Write stores the dataset at path. The records and attributes are
// validated before any file is created.
func (s *Shapefile) Write(path string) error {
	files := Paths(path)
	if err := s.encode(&dirSink{files: files}); err != nil {
		return err
	}
	if err := prj.WriteFile(files.Prj, s.Projection); err != nil {
		return err
	}
	if s.Projection == prj.None {
		// Drop a .prj left over from an earlier write.
		if err := os.Remove(files.Prj); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.KindIO, err, "remove projection").WithPath(files.Prj)
		}
	}
	return nil
}

// source opens dataset members by extension.
type source interface {
	open(ext string) (io.ReadCloser, string, error)
	projection() (prj.Projection, error)
}

// sink creates dataset members by extension, one at a time.
type sink interface {
	create(ext string) (io.WriteCloser, string, error)
}

type dirSource struct{ files Files }

func (d dirSource) path(ext string) string {
	switch ext {
	case ".shx":
		return d.files.Shx
	case ".dbf":
		return d.files.Dbf
	case ".prj":
		return d.files.Prj
	}
	return d.files.Shp
}

func (d dirSource) open(ext string) (io.ReadCloser, string, error) {
	path := d.path(ext)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, path, errs.Wrap(errs.KindFileNotFound, err, "missing %s file", ext).WithPath(path)
	}
	if err != nil {
		return nil, path, errs.Wrap(errs.KindIO, err, "open").WithPath(path)
	}
	return f, path, nil
}

func (d dirSource) projection() (prj.Projection, error) {
	return prj.ReadFile(d.files.Prj)
}

type dirSink struct{ files Files }

func (d *dirSink) create(ext string) (io.WriteCloser, string, error) {
	path := dirSource(*d).path(ext)
	f, err := os.Create(path)
	if err != nil {
		return nil, path, errs.Wrap(errs.KindIO, err, "create").WithPath(path)
	}
	return f, path, nil
}

// decode runs index, geometry stream, attribute table and projection in
// that order.
func (s *Shapefile) decode(src source, name string) error {
	log := s.opts.Logger

	var offsets []shp.Offset
	err := s.readMember(src, ".shx", func(r io.Reader) error {
		var err error
		_, offsets, err = shp.ReadIndex(r)
		return err
	})
	if err != nil {
		return err
	}
	log.Debug("read index", "dataset", name, "records", len(offsets))

	err = s.readMember(src, ".shp", func(r io.Reader) error {
		h, records, err := shp.ReadRecords(r, offsets, s.opts.MaxBufferSize)
		s.ShapeType, s.Bounds, s.Records = h.ShapeType, h.Bounds, records
		return err
	})
	if err != nil {
		return err
	}
	log.Debug("read geometry stream", "dataset", name, "type", s.ShapeType, "records", len(s.Records))

	err = s.readMember(src, ".dbf", func(r io.Reader) error {
		t, err := dbf.Read(r, s.opts.tableOptions(s.enc))
		if t != nil {
			s.Fields, s.Attributes, s.Deleted = t.Fields, t.Rows, t.Deleted
		}
		return err
	})
	if err != nil {
		return err
	}
	if len(s.Attributes) != len(s.Records) {
		return errs.New(errs.KindCorruptedData, "%d attribute rows for %d records", len(s.Attributes), len(s.Records)).
			WithPath(name)
	}

	s.Projection, err = src.projection()
	if err != nil {
		return err
	}
	log.Debug("read dataset", "dataset", name, "fields", len(s.Fields), "projection", s.Projection)
	return nil
}

func (s *Shapefile) readMember(src source, ext string, fn func(io.Reader) error) error {
	rc, path, err := src.open(ext)
	if err != nil {
		return err
	}
	defer rc.Close()
	return errs.AttachPath(fn(rc), path)
}

// encode validates everything, then writes index, geometry stream and
// attribute table.
func (s *Shapefile) encode(dst sink) error {
	log := s.opts.Logger

	layout, err := shp.Analyze(s.ShapeType, s.Bounds.Bounds, s.Records)
	if err != nil {
		return err
	}
	rows, err := s.rows()
	if err != nil {
		return err
	}
	widened, err := dbf.Widen(s.Fields, rows, s.enc)
	if err != nil {
		return err
	}
	if err := dbf.ValidateFields(widened); err != nil {
		return err
	}
	if err := dbf.ValidateRows(widened, rows, s.enc); err != nil {
		return err
	}

	h := shp.Header{ShapeType: s.ShapeType, Bounds: s.Bounds}
	err = s.writeMember(dst, ".shx", func(w io.Writer) error {
		return shp.WriteIndex(w, h, layout.Offsets, s.opts.MaxBufferSize)
	})
	if err != nil {
		return err
	}
	err = s.writeMember(dst, ".shp", func(w io.Writer) error {
		return shp.WriteRecords(w, h, s.Records, layout, s.opts.MaxBufferSize)
	})
	if err != nil {
		return err
	}
	log.Debug("wrote geometry stream", "type", s.ShapeType, "records", len(s.Records), "bytes", layout.FileLength)

	return s.writeMember(dst, ".dbf", func(w io.Writer) error {
		fields, err := dbf.Write(w, s.Fields, rows, s.opts.tableOptions(s.enc))
		if err == nil {
			s.Fields = fields
		}
		return err
	})
}

// rows returns the attribute rows to write, padding a dataset without
// attributes with empty rows.
func (s *Shapefile) rows() ([][]any, error) {
	if len(s.Fields) == 0 && len(s.Attributes) == 0 {
		return make([][]any, len(s.Records)), nil
	}
	if len(s.Attributes) != len(s.Records) {
		return nil, errs.New(errs.KindCorruptedData, "%d attribute rows for %d records", len(s.Attributes), len(s.Records))
	}
	return s.Attributes, nil
}

func (s *Shapefile) writeMember(dst sink, ext string, fn func(io.Writer) error) (err error) {
	wc, path, err := dst.create(ext)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = errs.Wrap(errs.KindIO, cerr, "close").WithPath(path)
		}
	}()
	return errs.AttachPath(fn(wc), path)
}

func (s *Shapefile) String() string {
	return fmt.Sprintf("Shapefile(%v, %d records, %d fields, %v)", s.ShapeType, len(s.Records), len(s.Fields), s.Projection)
}
