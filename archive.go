package shapekit

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/prj"
	"github.com/klauspost/compress/zip"
)

// WriteArchive writes the dataset as a zip archive holding stem.shx,
// stem.shp, stem.dbf and, for a known projection, stem.prj.
func (s *Shapefile) WriteArchive(w io.Writer, stem string) error {
	if stem == "" {
		stem = "data"
	}
	zw := zip.NewWriter(w)
	if err := s.encode(&zipSink{zw: zw, stem: stem}); err != nil {
		zw.Close()
		return err
	}

	if wkt := s.Projection.WKT(); wkt != "" {
		name := stem + ".prj"
		f, err := zw.Create(name)
		if err != nil {
			return errs.Wrap(errs.KindIO, err, "create archive member").WithPath(name)
		}
		if _, err := io.WriteString(f, wkt); err != nil {
			return errs.Wrap(errs.KindIO, err, "write archive member").WithPath(name)
		}
	}

	if err := zw.Close(); err != nil {
		return errs.Wrap(errs.KindIO, err, "close archive")
	}
	s.opts.Logger.Debug("wrote archive", "stem", stem, "records", len(s.Records))
	return nil
}

// ReadArchive reads a dataset from a zip archive. The first .shp member
// names the dataset; its siblings are matched by stem, ignoring case.
func ReadArchive(r io.ReaderAt, size int64, opts *Options) (*Shapefile, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidFormat, err, "open archive")
	}

	src := &zipSource{members: make(map[string]*zip.File)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		stem := strings.ToLower(strings.TrimSuffix(f.Name, path.Ext(f.Name)))
		if ext == ".shp" && src.stem == "" {
			src.stem = stem
		}
		src.members[stem+ext] = f
	}
	if src.stem == "" {
		return nil, errs.New(errs.KindFileNotFound, "archive has no .shp member")
	}

	if err := s.decode(src, src.members[src.stem+".shp"].Name); err != nil {
		return nil, err
	}
	return s, nil
}

type zipSource struct {
	stem    string
	members map[string]*zip.File
}

func (z *zipSource) open(ext string) (io.ReadCloser, string, error) {
	f, ok := z.members[z.stem+ext]
	if !ok {
		return nil, z.stem + ext, errs.New(errs.KindFileNotFound, "missing %s member", ext).WithPath(z.stem + ext)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, f.Name, errs.Wrap(errs.KindIO, err, "open archive member").WithPath(f.Name)
	}
	return rc, f.Name, nil
}

func (z *zipSource) projection() (prj.Projection, error) {
	f, ok := z.members[z.stem+".prj"]
	if !ok {
		return prj.None, nil
	}
	rc, err := f.Open()
	if err != nil {
		return prj.None, errs.Wrap(errs.KindIO, err, "open archive member").WithPath(f.Name)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return prj.None, errs.Wrap(errs.KindIO, err, "read archive member").WithPath(f.Name)
	}
	return prj.Parse(buf.String()), nil
}

// zipSink adds members in order; each must be fully written before the
// next is created.
type zipSink struct {
	zw   *zip.Writer
	stem string
}

func (z *zipSink) create(ext string) (io.WriteCloser, string, error) {
	name := z.stem + ext
	w, err := z.zw.Create(name)
	if err != nil {
		return nil, name, errs.Wrap(errs.KindIO, err, "create archive member").WithPath(name)
	}
	return nopCloser{w}, name, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
