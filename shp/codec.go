package shp

import (
	"encoding/binary"
	"math"

	"github.com/Silvesterrr/shapekit/errs"
)

// Fixed sizes of record content blocks, in bytes.
const (
	sizeTypeID   = 4
	sizeBox      = 32
	sizeCount    = 4
	sizePoint    = 16
	sizeFloat    = 8
	sizeRange    = 16
	sizeNull     = sizeTypeID
	sizePoint2D  = sizeTypeID + sizePoint             // 20
	sizePointM   = sizePoint2D + sizeFloat            // 28
	sizePointZ   = sizePointM + sizeFloat             // 36
	sizePolyFix  = sizeTypeID + sizeBox + 2*sizeCount // 44
	sizeMultiFix = sizeTypeID + sizeBox + sizeCount   // 40
)

// channelLength is the size of a Z or M block for n points.
func channelLength(n int) int {
	return sizeRange + n*sizeFloat
}

func optionalChannelLength(m *Measures, n int) int {
	if m == nil {
		return 0
	}
	return channelLength(n)
}

func polyLength(numParts, numPoints int) int {
	return sizePolyFix + numParts*sizeCount + numPoints*sizePoint
}

func multiLength(numPoints int) int {
	return sizeMultiFix + numPoints*sizePoint
}

// ContentLength returns the encoded size of s in bytes, including the
// leading shape type id and excluding the 8-byte record header.
func ContentLength(s Shape) int {
	switch v := s.(type) {
	case Null:
		return sizeNull
	case Point:
		return sizePoint2D
	case PointM:
		return sizePointM
	case PointZ:
		return sizePointZ
	case Polyline:
		return polyLength(len(v.Parts), len(v.Points))
	case Polygon:
		return polyLength(len(v.Parts), len(v.Points))
	case PolylineM:
		return polyLength(len(v.Parts), len(v.Points)) + optionalChannelLength(v.M, len(v.Points))
	case PolygonM:
		return polyLength(len(v.Parts), len(v.Points)) + optionalChannelLength(v.M, len(v.Points))
	case PolylineZ:
		return polyLength(len(v.Parts), len(v.Points)) + channelLength(len(v.Points)) +
			optionalChannelLength(v.M, len(v.Points))
	case PolygonZ:
		return polyLength(len(v.Parts), len(v.Points)) + channelLength(len(v.Points)) +
			optionalChannelLength(v.M, len(v.Points))
	case MultiPoint:
		return multiLength(len(v.Points))
	case MultiPointM:
		return multiLength(len(v.Points)) + optionalChannelLength(v.M, len(v.Points))
	case MultiPointZ:
		return multiLength(len(v.Points)) + channelLength(len(v.Points)) +
			optionalChannelLength(v.M, len(v.Points))
	case MultiPatch:
		return polyLength(len(v.Parts), len(v.Points)) + len(v.PartTypes)*sizeCount +
			channelLength(len(v.Points)) + optionalChannelLength(v.M, len(v.Points))
	default:
		return 0
	}
}

// encoder writes little-endian record content into a preallocated buffer.
type encoder struct {
	buf []byte
	pos int
}

func (e *encoder) int32(v int32) {
	binary.LittleEndian.PutUint32(e.buf[e.pos:], uint32(v))
	e.pos += 4
}

func (e *encoder) float(v float64) {
	binary.LittleEndian.PutUint64(e.buf[e.pos:], math.Float64bits(v))
	e.pos += 8
}

func (e *encoder) box(b Bounds) {
	e.float(b.MinX)
	e.float(b.MinY)
	e.float(b.MaxX)
	e.float(b.MaxY)
}

func (e *encoder) ints(vs []int32) {
	for _, v := range vs {
		e.int32(v)
	}
}

func (e *encoder) points(ps []Point) {
	for _, p := range ps {
		e.float(p.X)
		e.float(p.Y)
	}
}

func (e *encoder) channel(m Measures) {
	e.float(m.Min)
	e.float(m.Max)
	for _, v := range m.Values {
		e.float(v)
	}
}

func (e *encoder) optionalChannel(m *Measures) {
	if m != nil {
		e.channel(*m)
	}
}

func (e *encoder) poly(box Bounds, parts []int32, points []Point) {
	e.box(box)
	e.int32(int32(len(parts)))
	e.int32(int32(len(points)))
	e.ints(parts)
	e.points(points)
}

func (e *encoder) multi(box Bounds, points []Point) {
	e.box(box)
	e.int32(int32(len(points)))
	e.points(points)
}

// Encode writes the content of s at buf[off:] and returns the number of
// bytes written. buf must hold ContentLength(s) bytes past off.
func Encode(buf []byte, off int, s Shape) (int, error) {
	if s == nil {
		return 0, errs.New(errs.KindCorruptedData, "nil record")
	}
	n := ContentLength(s)
	if n == 0 {
		return 0, errs.New(errs.KindUnsupportedType, "cannot encode %T", s)
	}
	if len(buf)-off < n {
		return 0, errs.New(errs.KindIO, "buffer too small: need %d bytes, have %d", n, len(buf)-off)
	}

	e := &encoder{buf: buf, pos: off}
	e.int32(s.Type().ID())

	switch v := s.(type) {
	case Null:
	case Point:
		e.float(v.X)
		e.float(v.Y)
	case PointM:
		e.float(v.X)
		e.float(v.Y)
		e.float(v.M)
	case PointZ:
		e.float(v.X)
		e.float(v.Y)
		e.float(v.Z)
		e.float(v.M)
	case Polyline:
		e.poly(v.Box, v.Parts, v.Points)
	case Polygon:
		e.poly(v.Box, v.Parts, v.Points)
	case PolylineM:
		e.poly(v.Box, v.Parts, v.Points)
		e.optionalChannel(v.M)
	case PolygonM:
		e.poly(v.Box, v.Parts, v.Points)
		e.optionalChannel(v.M)
	case PolylineZ:
		e.poly(v.Box, v.Parts, v.Points)
		e.channel(v.Z)
		e.optionalChannel(v.M)
	case PolygonZ:
		e.poly(v.Box, v.Parts, v.Points)
		e.channel(v.Z)
		e.optionalChannel(v.M)
	case MultiPoint:
		e.multi(v.Box, v.Points)
	case MultiPointM:
		e.multi(v.Box, v.Points)
		e.optionalChannel(v.M)
	case MultiPointZ:
		e.multi(v.Box, v.Points)
		e.channel(v.Z)
		e.optionalChannel(v.M)
	case MultiPatch:
		e.box(v.Box)
		e.int32(int32(len(v.Parts)))
		e.int32(int32(len(v.Points)))
		e.ints(v.Parts)
		e.ints(v.PartTypes)
		e.points(v.Points)
		e.channel(v.Z)
		e.optionalChannel(v.M)
	}

	return e.pos - off, nil
}

// decoder reads little-endian record content bounded by the declared
// content length.
type decoder struct {
	buf []byte
	pos int
	end int
}

func (d *decoder) remaining() int {
	return d.end - d.pos
}

func (d *decoder) need(n int, what string) error {
	if n < 0 || d.remaining() < n {
		return errs.New(errs.KindCorruptedData, "record truncated reading %s: need %d bytes, have %d",
			what, n, d.remaining())
	}
	return nil
}

func (d *decoder) int32() int32 {
	v := int32(binary.LittleEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	return v
}

func (d *decoder) float() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v
}

func (d *decoder) box() Bounds {
	return Bounds{MinX: d.float(), MinY: d.float(), MaxX: d.float(), MaxY: d.float()}
}

func (d *decoder) ints(n int) []int32 {
	vs := make([]int32, n)
	for i := range vs {
		vs[i] = d.int32()
	}
	return vs
}

func (d *decoder) points(n int) []Point {
	ps := make([]Point, n)
	for i := range ps {
		ps[i] = Point{X: d.float(), Y: d.float()}
	}
	return ps
}

func (d *decoder) channel(n int, what string) (Measures, error) {
	if err := d.need(channelLength(n), what); err != nil {
		return Measures{}, err
	}
	m := Measures{Range: Range{Min: d.float(), Max: d.float()}}
	m.Values = make([]float64, n)
	for i := range m.Values {
		m.Values[i] = d.float()
	}
	return m, nil
}

// optionalChannel reads an M block only when declared bytes remain.
func (d *decoder) optionalChannel(n int) (*Measures, error) {
	if d.remaining() <= 0 {
		return nil, nil
	}
	m, err := d.channel(n, "M")
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type polyBody struct {
	box       Bounds
	parts     []int32
	partTypes []int32
	points    []Point
}

func (d *decoder) poly(withPartTypes bool) (polyBody, error) {
	if err := d.need(sizeBox+2*sizeCount, "poly header"); err != nil {
		return polyBody{}, err
	}
	var b polyBody
	b.box = d.box()
	numParts := int(d.int32())
	numPoints := int(d.int32())
	if numParts < 0 || numPoints < 0 {
		return polyBody{}, errs.New(errs.KindCorruptedData, "negative counts: %d parts, %d points", numParts, numPoints)
	}
	size := numParts*sizeCount + numPoints*sizePoint
	if withPartTypes {
		size += numParts * sizeCount
	}
	if err := d.need(size, "parts and points"); err != nil {
		return polyBody{}, err
	}
	b.parts = d.ints(numParts)
	if withPartTypes {
		b.partTypes = d.ints(numParts)
	}
	b.points = d.points(numPoints)
	return b, nil
}

func (d *decoder) multi() (Bounds, []Point, error) {
	if err := d.need(sizeBox+sizeCount, "multipoint header"); err != nil {
		return Bounds{}, nil, err
	}
	box := d.box()
	numPoints := int(d.int32())
	if numPoints < 0 {
		return Bounds{}, nil, errs.New(errs.KindCorruptedData, "negative point count %d", numPoints)
	}
	if err := d.need(numPoints*sizePoint, "points"); err != nil {
		return Bounds{}, nil, err
	}
	return box, d.points(numPoints), nil
}

// Decode reads one record of declared content length from buf[off:]. The
// stream type t decides the layout; the per-record type id is only
// consulted to recognise null records. Whether a trailing M block is
// present is inferred from the bytes left within length.
func Decode(buf []byte, off, length int, t ShapeType) (Shape, error) {
	if off < 0 || length < 0 || off+length > len(buf) {
		return nil, errs.New(errs.KindCorruptedData, "record [%d,+%d) outside buffer of %d bytes", off, length, len(buf))
	}
	d := &decoder{buf: buf, pos: off, end: off + length}
	if err := d.need(sizeTypeID, "shape type"); err != nil {
		return nil, err
	}
	if id := d.int32(); id == 0 {
		return Null{}, nil
	}

	switch t {
	case TypeNull:
		return Null{}, nil

	case TypePoint:
		if err := d.need(sizePoint, "point"); err != nil {
			return nil, err
		}
		return Point{X: d.float(), Y: d.float()}, nil

	case TypePointM:
		if err := d.need(sizePointM-sizeTypeID, "point"); err != nil {
			return nil, err
		}
		return PointM{X: d.float(), Y: d.float(), M: d.float()}, nil

	case TypePointZ:
		if err := d.need(sizePointM-sizeTypeID, "point"); err != nil {
			return nil, err
		}
		p := PointZ{X: d.float(), Y: d.float(), Z: d.float()}
		// Some writers drop the measure of a PointZ.
		if d.remaining() >= sizeFloat {
			p.M = d.float()
		}
		return p, nil

	case TypePolyline, TypePolygon:
		b, err := d.poly(false)
		if err != nil {
			return nil, err
		}
		pl := Polyline{Box: b.box, Parts: b.parts, Points: b.points}
		if t == TypePolygon {
			return Polygon(pl), nil
		}
		return pl, nil

	case TypePolylineM, TypePolygonM:
		b, err := d.poly(false)
		if err != nil {
			return nil, err
		}
		m, err := d.optionalChannel(len(b.points))
		if err != nil {
			return nil, err
		}
		pl := PolylineM{Box: b.box, Parts: b.parts, Points: b.points, M: m}
		if t == TypePolygonM {
			return PolygonM(pl), nil
		}
		return pl, nil

	case TypePolylineZ, TypePolygonZ:
		b, err := d.poly(false)
		if err != nil {
			return nil, err
		}
		z, err := d.channel(len(b.points), "Z")
		if err != nil {
			return nil, err
		}
		m, err := d.optionalChannel(len(b.points))
		if err != nil {
			return nil, err
		}
		pl := PolylineZ{Box: b.box, Parts: b.parts, Points: b.points, Z: z, M: m}
		if t == TypePolygonZ {
			return PolygonZ(pl), nil
		}
		return pl, nil

	case TypeMultiPoint:
		box, points, err := d.multi()
		if err != nil {
			return nil, err
		}
		return MultiPoint{Box: box, Points: points}, nil

	case TypeMultiPointM:
		box, points, err := d.multi()
		if err != nil {
			return nil, err
		}
		m, err := d.optionalChannel(len(points))
		if err != nil {
			return nil, err
		}
		return MultiPointM{Box: box, Points: points, M: m}, nil

	case TypeMultiPointZ:
		box, points, err := d.multi()
		if err != nil {
			return nil, err
		}
		z, err := d.channel(len(points), "Z")
		if err != nil {
			return nil, err
		}
		m, err := d.optionalChannel(len(points))
		if err != nil {
			return nil, err
		}
		return MultiPointZ{Box: box, Points: points, Z: z, M: m}, nil

	case TypeMultiPatch:
		b, err := d.poly(true)
		if err != nil {
			return nil, err
		}
		z, err := d.channel(len(b.points), "Z")
		if err != nil {
			return nil, err
		}
		m, err := d.optionalChannel(len(b.points))
		if err != nil {
			return nil, err
		}
		return MultiPatch{Box: b.box, Parts: b.parts, PartTypes: b.partTypes, Points: b.points, Z: z, M: m}, nil

	default:
		return nil, errs.New(errs.KindUnsupportedType, "cannot decode shape type %v", t).With("id", t.ID())
	}
}
