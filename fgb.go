package shapekit

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/prj"
	"github.com/Silvesterrr/shapekit/shp"
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// FlatGeobufOptions configures FlatGeobuf export.
type FlatGeobufOptions struct {
	Name         string // layer name
	Description  string // layer description
	IncludeIndex bool   // write the packed Hilbert R-tree
}

// DefaultFlatGeobufOptions returns options that include the spatial index.
func DefaultFlatGeobufOptions() *FlatGeobufOptions {
	return &FlatGeobufOptions{IncludeIndex: true}
}

// WriteFlatGeobuf exports the dataset as a FlatGeobuf layer. Geometries
// are written in two dimensions and null records are skipped. Attribute
// fields become columns: C as String, N without decimals as Long, N with
// decimals and F as Double, L as Bool and D as DateTime.
func (s *Shapefile) WriteFlatGeobuf(w io.Writer, opts *FlatGeobufOptions) error {
	if opts == nil {
		opts = DefaultFlatGeobufOptions()
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(fgbGeometryType(s.ShapeType))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	types := make([]flattypes.ColumnType, len(s.Fields))
	if len(s.Fields) > 0 {
		columns := make([]*writer.Column, len(s.Fields))
		for j, f := range s.Fields {
			types[j] = columnType(f)
			col := writer.NewColumn(builder)
			col.SetName(f.Name)
			col.SetTitle(f.Name)
			col.SetType(types[j])
			col.SetNullable(true)
			columns[j] = col
		}
		header.SetColumns(columns)
	}

	if code := s.Projection.EPSG(); code > 0 {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(int32(code))
		crs.SetName(s.Projection.Name())
		crs.SetDescription(s.Projection.WKT())
		header.SetCrs(crs)
	}

	gen := &recordGenerator{s: s, types: types}
	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	if _, err := fgbWriter.Write(w); err != nil {
		return errs.Wrap(errs.KindIO, err, "write flatgeobuf")
	}
	if gen.err != nil {
		return gen.err
	}
	s.opts.Logger.Debug("wrote flatgeobuf", "features", gen.written, "columns", len(s.Fields), "index", opts.IncludeIndex)
	return nil
}

// recordGenerator feeds records to the FlatGeobuf writer.
type recordGenerator struct {
	s       *Shapefile
	types   []flattypes.ColumnType
	next    int
	written int
	err     error
}

func (g *recordGenerator) Generate() *writer.Feature {
	for g.err == nil && g.next < len(g.s.Records) {
		i := g.next
		g.next++

		builder := flatbuffers.NewBuilder(1024)
		geom := fgbGeometry(ToOrb(g.s.Records[i]), builder)
		if geom == nil {
			continue
		}
		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)

		if i < len(g.s.Attributes) && len(g.types) > 0 {
			props, err := encodeProperties(g.s.Attributes[i], g.types)
			if err != nil {
				g.err = errs.With(err, "record", i+1)
				return nil
			}
			if len(props) > 0 {
				feature.SetProperties(props)
			}
		}
		g.written++
		return feature
	}
	return nil
}

func fgbGeometryType(t shp.ShapeType) flattypes.GeometryType {
	switch t.Family() {
	case shp.FamilyPoint:
		return flattypes.GeometryTypePoint
	case shp.FamilyMultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case shp.FamilyMultiPatch:
		return flattypes.GeometryTypeMultiPolygon
	}
	// Single and multi part records share one layer.
	return flattypes.GeometryTypeUnknown
}

func columnType(f dbf.Field) flattypes.ColumnType {
	switch f.Type {
	case dbf.Numeric:
		if f.Decimals == 0 {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	case dbf.Float:
		return flattypes.ColumnTypeDouble
	case dbf.Logical:
		return flattypes.ColumnTypeBool
	case dbf.Date:
		return flattypes.ColumnTypeDateTime
	}
	return flattypes.ColumnTypeString
}

// fgbGeometry converts an orb geometry to a FlatGeobuf geometry.
func fgbGeometry(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(flatXY(v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(flatXY(v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		xy, ends := flatParts(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := flatParts(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := flatParts(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}
	return g
}

func flatXY[P ~[]orb.Point](points P) []float64 {
	xy := make([]float64, 0, len(points)*2)
	for _, p := range points {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flatParts flattens line strings or rings into one coordinate array and
// the cumulative end index of each part.
func flatParts[L ~[]P, P ~[]orb.Point](lines L) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(lines))
	for _, line := range lines {
		xy = append(xy, flatXY(line)...)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

// encodeProperties writes each non-null value as its little-endian column
// index followed by the value bytes.
func encodeProperties(row []any, types []flattypes.ColumnType) ([]byte, error) {
	var buf bytes.Buffer
	scratch := make([]byte, 8)
	for j, v := range row {
		if v == nil || j >= len(types) {
			continue
		}
		if t, ok := v.(time.Time); ok && t.IsZero() {
			continue
		}
		binary.LittleEndian.PutUint16(scratch, uint16(j))
		buf.Write(scratch[:2])

		switch types[j] {
		case flattypes.ColumnTypeBool:
			b, ok := v.(bool)
			if !ok {
				return nil, propertyMismatch(j, v)
			}
			if b {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}

		case flattypes.ColumnTypeLong:
			i, ok := v.(int64)
			if !ok {
				f, isNum := numberOf(v)
				if !isNum {
					return nil, propertyMismatch(j, v)
				}
				i = int64(f)
			}
			binary.LittleEndian.PutUint64(scratch, uint64(i))
			buf.Write(scratch)

		case flattypes.ColumnTypeDouble:
			f, ok := numberOf(v)
			if !ok {
				return nil, propertyMismatch(j, v)
			}
			binary.LittleEndian.PutUint64(scratch, math.Float64bits(f))
			buf.Write(scratch)

		case flattypes.ColumnTypeDateTime:
			t, ok := v.(time.Time)
			if !ok {
				return nil, propertyMismatch(j, v)
			}
			writeString(&buf, t.Format(time.DateOnly))

		default:
			str, ok := v.(string)
			if !ok {
				return nil, propertyMismatch(j, v)
			}
			writeString(&buf, str)
		}
	}
	return buf.Bytes(), nil
}

// writeString writes a u32 byte length followed by the UTF-8 bytes.
func writeString(buf *bytes.Buffer, s string) {
	n := make([]byte, 4)
	binary.LittleEndian.PutUint32(n, uint32(len(s)))
	buf.Write(n)
	buf.WriteString(s)
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toFloat(n), true
	}
	return 0, false
}

func propertyMismatch(column int, v any) error {
	return errs.New(errs.KindCorruptedData, "%T value does not match its column", v).With("column", column)
}

// ReadFlatGeobuf imports a FlatGeobuf layer that carries a spatial index.
// Features are returned in index order. Columns map back to attribute
// fields; Int and Long become N(18,0), Float and Double N(24,8), Bool L,
// DateTime D and everything else C.
func ReadFlatGeobuf(data []byte, opts *Options) (*Shapefile, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}

	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidFormat, err, "open flatgeobuf")
	}
	h := fgb.Header()
	if h == nil {
		return nil, errs.New(errs.KindInvalidHeader, "flatgeobuf header missing")
	}

	columns := make([]fgbColumn, h.ColumnsLength())
	for j := range columns {
		var col flattypes.Column
		if !h.Columns(&col, j) {
			return nil, errs.New(errs.KindInvalidHeader, "flatgeobuf column %d unreadable", j)
		}
		columns[j] = fgbColumn{name: string(col.Name()), typ: col.Type()}
		s.Fields = append(s.Fields, columns[j].field())
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		s.Projection = prj.FromEPSG(int(crs.Code()))
	}

	var geoms []orb.Geometry
	if h.FeaturesCount() > 0 {
		if h.IndexNodeSize() == 0 {
			return nil, errs.New(errs.KindUnsupportedType, "flatgeobuf without a spatial index")
		}
		if h.EnvelopeLength() < 4 {
			return nil, errs.New(errs.KindInvalidHeader, "flatgeobuf envelope missing")
		}
		features, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
		if err != nil {
			return nil, errs.Wrap(errs.KindCorruptedData, err, "search flatgeobuf index")
		}
		for i, feature := range features {
			var geomObj flattypes.Geometry
			geoms = append(geoms, orbGeometry(feature.Geometry(&geomObj), h.GeometryType()))

			n := feature.PropertiesLength()
			props := make([]byte, n)
			for k := 0; k < n; k++ {
				props[k] = byte(feature.Properties(k))
			}
			row, err := decodeProperties(props, columns)
			if err != nil {
				return nil, errs.With(err, "feature", i+1)
			}
			s.Attributes = append(s.Attributes, row)
		}
	}

	if s.ShapeType, err = datasetType(geoms); err != nil {
		return nil, err
	}
	s.Records = make([]shp.Shape, len(geoms))
	for i, g := range geoms {
		if s.Records[i], err = FromOrb(g); err != nil {
			return nil, err
		}
	}
	if s.Fields, err = dbf.Widen(s.Fields, s.Attributes, s.enc); err != nil {
		return nil, err
	}
	s.UpdateBounds()
	s.opts.Logger.Debug("read flatgeobuf", "features", len(s.Records), "columns", len(columns), "type", s.ShapeType)
	return s, nil
}

type fgbColumn struct {
	name string
	typ  flattypes.ColumnType
}

func (c fgbColumn) field() dbf.Field {
	switch c.typ {
	case flattypes.ColumnTypeBool:
		return dbf.LogicalField(c.name)
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte, flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort,
		flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt, flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return dbf.NumericField(c.name, 18, 0)
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		return dbf.NumericField(c.name, 24, 8)
	case flattypes.ColumnTypeDateTime:
		return dbf.DateField(c.name)
	}
	return dbf.CharacterField(c.name, 1)
}

// decodeProperties reads a property buffer into a row converted to the
// Go types of the mapped fields.
func decodeProperties(data []byte, columns []fgbColumn) ([]any, error) {
	row := make([]any, len(columns))
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return nil, errs.New(errs.KindCorruptedData, "truncated property index")
		}
		j := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if j >= len(columns) {
			return nil, errs.New(errs.KindCorruptedData, "property column %d out of range", j)
		}
		v, n, ok := readProperty(data[off:], columns[j].typ)
		if !ok {
			return nil, errs.New(errs.KindCorruptedData, "truncated %s property", flattypes.EnumNamesColumnType[columns[j].typ]).
				With("column", columns[j].name)
		}
		row[j] = v
		off += n
	}
	return row, nil
}

// readProperty decodes one value and reports the bytes consumed.
func readProperty(data []byte, t flattypes.ColumnType) (any, int, bool) {
	need := func(n int) bool { return len(data) >= n }
	le := binary.LittleEndian

	switch t {
	case flattypes.ColumnTypeBool:
		return need(1) && data[0] != 0, 1, need(1)
	case flattypes.ColumnTypeByte:
		if !need(1) {
			return nil, 0, false
		}
		return int64(int8(data[0])), 1, true
	case flattypes.ColumnTypeUByte:
		if !need(1) {
			return nil, 0, false
		}
		return int64(data[0]), 1, true
	case flattypes.ColumnTypeShort:
		if !need(2) {
			return nil, 0, false
		}
		return int64(int16(le.Uint16(data))), 2, true
	case flattypes.ColumnTypeUShort:
		if !need(2) {
			return nil, 0, false
		}
		return int64(le.Uint16(data)), 2, true
	case flattypes.ColumnTypeInt:
		if !need(4) {
			return nil, 0, false
		}
		return int64(int32(le.Uint32(data))), 4, true
	case flattypes.ColumnTypeUInt:
		if !need(4) {
			return nil, 0, false
		}
		return int64(le.Uint32(data)), 4, true
	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		if !need(8) {
			return nil, 0, false
		}
		return int64(le.Uint64(data)), 8, true
	case flattypes.ColumnTypeFloat:
		if !need(4) {
			return nil, 0, false
		}
		return float64(math.Float32frombits(le.Uint32(data))), 4, true
	case flattypes.ColumnTypeDouble:
		if !need(8) {
			return nil, 0, false
		}
		return math.Float64frombits(le.Uint64(data)), 8, true
	}

	// String, Json, DateTime and Binary carry a u32 length prefix.
	if !need(4) {
		return nil, 0, false
	}
	n := int(le.Uint32(data))
	if !need(4 + n) {
		return nil, 0, false
	}
	text := string(data[4 : 4+n])
	if t == flattypes.ColumnTypeDateTime {
		for _, layout := range []string{time.DateOnly, time.RFC3339} {
			if d, err := time.Parse(layout, text); err == nil {
				return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), 4 + n, true
			}
		}
		return time.Time{}, 4 + n, true
	}
	return text, 4 + n, true
}

// orbGeometry converts a FlatGeobuf geometry to orb. Geometries without
// their own type take the layer type.
func orbGeometry(g *flattypes.Geometry, layer flattypes.GeometryType) orb.Geometry {
	if g == nil {
		return nil
	}
	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = layer
	}
	switch t {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsOf(g, 0, g.XyLength()/2))
	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsOf(g, 0, g.XyLength()/2))
	case flattypes.GeometryTypeMultiLineString:
		var mls orb.MultiLineString
		for _, part := range partsOf(g) {
			mls = append(mls, orb.LineString(part))
		}
		return mls
	case flattypes.GeometryTypePolygon:
		return polygonOf(g)
	case flattypes.GeometryTypeMultiPolygon:
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, polygonOf(&part))
			}
		}
		return mp
	}
	return nil
}

func pointsOf(g *flattypes.Geometry, start, end int) []orb.Point {
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// partsOf splits the coordinates at the ends array; no ends means a
// single part.
func partsOf(g *flattypes.Geometry) [][]orb.Point {
	total := g.XyLength() / 2
	if g.EndsLength() == 0 {
		return [][]orb.Point{pointsOf(g, 0, total)}
	}
	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := min(int(g.Ends(i)), total)
		parts = append(parts, pointsOf(g, start, end))
		start = end
	}
	return parts
}

func polygonOf(g *flattypes.Geometry) orb.Polygon {
	var poly orb.Polygon
	for _, ring := range partsOf(g) {
		poly = append(poly, orb.Ring(ring))
	}
	return poly
}
