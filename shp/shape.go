package shp

import (
	"github.com/Silvesterrr/shapekit/errs"
)

// Shape is one geometry record. The set of implementations is closed; the
// codec switches over it exhaustively.
type Shape interface {
	Type() ShapeType
	shape()
}

// Measures is one per-point scalar channel (Z or M) with its range.
type Measures struct {
	Range
	Values []float64
}

// NewMeasures builds a channel from values, computing its range.
func NewMeasures(values []float64) Measures {
	return Measures{Range: rangeOf(values), Values: values}
}

// optionalMeasures returns nil for a nil slice, so that "no channel" and
// "empty channel" stay distinguishable.
func optionalMeasures(values []float64) *Measures {
	if values == nil {
		return nil
	}
	m := NewMeasures(values)
	return &m
}

// Null is an empty record.
type Null struct{}

// Point is a single planar position.
type Point struct {
	X, Y float64
}

// PointM is a position with a measure.
type PointM struct {
	X, Y, M float64
}

// PointZ carries both channels; M is not optional for single points.
type PointZ struct {
	X, Y, Z, M float64
}

// Polyline is a set of parts over a shared point array. Parts holds the
// index of the first point of each part.
type Polyline struct {
	Box    Bounds
	Parts  []int32
	Points []Point
}

// Polygon has the Polyline layout; each part is a ring. Ring orientation
// is not checked.
type Polygon Polyline

// PolylineM is a Polyline with an optional measure channel.
type PolylineM struct {
	Box    Bounds
	Parts  []int32
	Points []Point
	M      *Measures
}

// PolygonM has the PolylineM layout; each part is a ring.
type PolygonM PolylineM

// PolylineZ is a Polyline with an elevation channel and an optional
// measure channel.
type PolylineZ struct {
	Box    Bounds
	Parts  []int32
	Points []Point
	Z      Measures
	M      *Measures
}

// PolygonZ has the PolylineZ layout; each part is a ring.
type PolygonZ PolylineZ

// MultiPoint is an unordered set of points.
type MultiPoint struct {
	Box    Bounds
	Points []Point
}

// MultiPointM is a MultiPoint with an optional measure channel.
type MultiPointM struct {
	Box    Bounds
	Points []Point
	M      *Measures
}

// MultiPointZ is a MultiPoint with an elevation channel and an optional
// measure channel.
type MultiPointZ struct {
	Box    Bounds
	Points []Point
	Z      Measures
	M      *Measures
}

// MultiPatch is a PolylineZ with one opaque patch type per part.
type MultiPatch struct {
	Box       Bounds
	Parts     []int32
	PartTypes []int32
	Points    []Point
	Z         Measures
	M         *Measures
}

// Type reports the variant's shape type.
func (Null) Type() ShapeType        { return TypeNull }
func (Point) Type() ShapeType       { return TypePoint }
func (PointM) Type() ShapeType      { return TypePointM }
func (PointZ) Type() ShapeType      { return TypePointZ }
func (Polyline) Type() ShapeType    { return TypePolyline }
func (Polygon) Type() ShapeType     { return TypePolygon }
func (PolylineM) Type() ShapeType   { return TypePolylineM }
func (PolygonM) Type() ShapeType    { return TypePolygonM }
func (PolylineZ) Type() ShapeType   { return TypePolylineZ }
func (PolygonZ) Type() ShapeType    { return TypePolygonZ }
func (MultiPoint) Type() ShapeType  { return TypeMultiPoint }
func (MultiPointM) Type() ShapeType { return TypeMultiPointM }
func (MultiPointZ) Type() ShapeType { return TypeMultiPointZ }
func (MultiPatch) Type() ShapeType  { return TypeMultiPatch }

func (Null) shape()        {}
func (Point) shape()       {}
func (PointM) shape()      {}
func (PointZ) shape()      {}
func (Polyline) shape()    {}
func (Polygon) shape()     {}
func (PolylineM) shape()   {}
func (PolygonM) shape()    {}
func (PolylineZ) shape()   {}
func (PolygonZ) shape()    {}
func (MultiPoint) shape()  {}
func (MultiPointM) shape() {}
func (MultiPointZ) shape() {}
func (MultiPatch) shape()  {}

// NumParts and NumPoints are derived from the part and point arrays.
func (p Polyline) NumParts() int     { return len(p.Parts) }
func (p Polyline) NumPoints() int    { return len(p.Points) }
func (p Polygon) NumParts() int      { return len(p.Parts) }
func (p Polygon) NumPoints() int     { return len(p.Points) }
func (p PolylineM) NumParts() int    { return len(p.Parts) }
func (p PolylineM) NumPoints() int   { return len(p.Points) }
func (p PolygonM) NumParts() int     { return len(p.Parts) }
func (p PolygonM) NumPoints() int    { return len(p.Points) }
func (p PolylineZ) NumParts() int    { return len(p.Parts) }
func (p PolylineZ) NumPoints() int   { return len(p.Points) }
func (p PolygonZ) NumParts() int     { return len(p.Parts) }
func (p PolygonZ) NumPoints() int    { return len(p.Points) }
func (p MultiPatch) NumParts() int   { return len(p.Parts) }
func (p MultiPatch) NumPoints() int  { return len(p.Points) }
func (p MultiPoint) NumPoints() int  { return len(p.Points) }
func (p MultiPointM) NumPoints() int { return len(p.Points) }
func (p MultiPointZ) NumPoints() int { return len(p.Points) }

// HasM reports whether the measure channel is present.
func (p PolylineM) HasM() bool   { return p.M != nil }
func (p PolygonM) HasM() bool    { return p.M != nil }
func (p PolylineZ) HasM() bool   { return p.M != nil }
func (p PolygonZ) HasM() bool    { return p.M != nil }
func (p MultiPointM) HasM() bool { return p.M != nil }
func (p MultiPointZ) HasM() bool { return p.M != nil }
func (p MultiPatch) HasM() bool  { return p.M != nil }

// NewPolyline builds a polyline from point runs, one per part.
func NewPolyline(parts ...[]Point) Polyline {
	offsets, points := flatten(parts)
	return Polyline{Box: boundsOf(points), Parts: offsets, Points: points}
}

// NewPolygon builds a polygon from rings.
func NewPolygon(rings ...[]Point) Polygon {
	return Polygon(NewPolyline(rings...))
}

// NewMultiPoint builds a multipoint, computing its box.
func NewMultiPoint(points []Point) MultiPoint {
	return MultiPoint{Box: boundsOf(points), Points: points}
}

// NewMultiPatch builds a multipatch. A nil m leaves the measure channel
// absent.
func NewMultiPatch(parts [][]Point, partTypes []int32, z, m []float64) MultiPatch {
	offsets, points := flatten(parts)
	return MultiPatch{
		Box:       boundsOf(points),
		Parts:     offsets,
		PartTypes: partTypes,
		Points:    points,
		Z:         NewMeasures(z),
		M:         optionalMeasures(m),
	}
}

// WithM attaches a measure channel. A nil m yields a PolylineM without
// measures.
func (p Polyline) WithM(m []float64) PolylineM {
	return PolylineM{Box: p.Box, Parts: p.Parts, Points: p.Points, M: optionalMeasures(m)}
}

// WithZ attaches elevations and an optional measure channel.
func (p Polyline) WithZ(z, m []float64) PolylineZ {
	return PolylineZ{Box: p.Box, Parts: p.Parts, Points: p.Points, Z: NewMeasures(z), M: optionalMeasures(m)}
}

// WithM attaches a measure channel.
func (p Polygon) WithM(m []float64) PolygonM {
	return PolygonM(Polyline(p).WithM(m))
}

// WithZ attaches elevations and an optional measure channel.
func (p Polygon) WithZ(z, m []float64) PolygonZ {
	return PolygonZ(Polyline(p).WithZ(z, m))
}

// WithM attaches a measure channel.
func (p MultiPoint) WithM(m []float64) MultiPointM {
	return MultiPointM{Box: p.Box, Points: p.Points, M: optionalMeasures(m)}
}

// WithZ attaches elevations and an optional measure channel.
func (p MultiPoint) WithZ(z, m []float64) MultiPointZ {
	return MultiPointZ{Box: p.Box, Points: p.Points, Z: NewMeasures(z), M: optionalMeasures(m)}
}

func flatten(parts [][]Point) ([]int32, []Point) {
	total := 0
	for _, part := range parts {
		total += len(part)
	}
	offsets := make([]int32, 0, len(parts))
	points := make([]Point, 0, total)
	for _, part := range parts {
		offsets = append(offsets, int32(len(points)))
		points = append(points, part...)
	}
	return offsets, points
}

// PartPoints returns the points of part i given a parts index.
func PartPoints(parts []int32, points []Point, i int) []Point {
	start := int(parts[i])
	end := len(points)
	if i+1 < len(parts) {
		end = int(parts[i+1])
	}
	return points[start:end]
}

// Extent returns the bounding box of s including its Z and M ranges.
func Extent(s Shape) BoundsZ {
	switch v := s.(type) {
	case Point:
		return BoundsZ{Bounds: Bounds{v.X, v.Y, v.X, v.Y}}
	case PointM:
		return BoundsZ{Bounds: Bounds{v.X, v.Y, v.X, v.Y}, M: &Range{v.M, v.M}}
	case PointZ:
		return BoundsZ{Bounds: Bounds{v.X, v.Y, v.X, v.Y}, Z: Range{v.Z, v.Z}, M: &Range{v.M, v.M}}
	case Polyline:
		return BoundsZ{Bounds: v.Box}
	case Polygon:
		return BoundsZ{Bounds: v.Box}
	case MultiPoint:
		return BoundsZ{Bounds: v.Box}
	case PolylineM:
		return BoundsZ{Bounds: v.Box, M: rangePtr(v.M)}
	case PolygonM:
		return BoundsZ{Bounds: v.Box, M: rangePtr(v.M)}
	case MultiPointM:
		return BoundsZ{Bounds: v.Box, M: rangePtr(v.M)}
	case PolylineZ:
		return BoundsZ{Bounds: v.Box, Z: v.Z.Range, M: rangePtr(v.M)}
	case PolygonZ:
		return BoundsZ{Bounds: v.Box, Z: v.Z.Range, M: rangePtr(v.M)}
	case MultiPointZ:
		return BoundsZ{Bounds: v.Box, Z: v.Z.Range, M: rangePtr(v.M)}
	case MultiPatch:
		return BoundsZ{Bounds: v.Box, Z: v.Z.Range, M: rangePtr(v.M)}
	default:
		return BoundsZ{}
	}
}

func rangePtr(m *Measures) *Range {
	if m == nil {
		return nil
	}
	r := m.Range
	return &r
}

// ExtentOf unions the extents of every non-null record.
func ExtentOf(records []Shape) BoundsZ {
	var out BoundsZ
	first := true
	for _, s := range records {
		if _, ok := s.(Null); ok || s == nil {
			continue
		}
		e := Extent(s)
		if first {
			out, first = e, false
			continue
		}
		out = out.Union(e)
	}
	return out
}

// Validate checks the array invariants of s: parts ascending from 0 and
// within the point array, and every channel as long as the point array.
func Validate(s Shape) error {
	switch v := s.(type) {
	case nil:
		return errs.New(errs.KindCorruptedData, "nil record")
	case Null, Point, PointM, PointZ, MultiPoint:
		return nil
	case Polyline:
		return validateParts(v.Parts, len(v.Points))
	case Polygon:
		return validateParts(v.Parts, len(v.Points))
	case PolylineM:
		return firstErr(validateParts(v.Parts, len(v.Points)), validateOptional(v.M, len(v.Points), "M"))
	case PolygonM:
		return firstErr(validateParts(v.Parts, len(v.Points)), validateOptional(v.M, len(v.Points), "M"))
	case PolylineZ:
		return firstErr(validateParts(v.Parts, len(v.Points)), validateChannel(v.Z, len(v.Points), "Z"),
			validateOptional(v.M, len(v.Points), "M"))
	case PolygonZ:
		return firstErr(validateParts(v.Parts, len(v.Points)), validateChannel(v.Z, len(v.Points), "Z"),
			validateOptional(v.M, len(v.Points), "M"))
	case MultiPointM:
		return validateOptional(v.M, len(v.Points), "M")
	case MultiPointZ:
		return firstErr(validateChannel(v.Z, len(v.Points), "Z"), validateOptional(v.M, len(v.Points), "M"))
	case MultiPatch:
		if len(v.PartTypes) != len(v.Parts) {
			return errs.New(errs.KindCorruptedData, "part types length %d does not match %d parts",
				len(v.PartTypes), len(v.Parts))
		}
		return firstErr(validateParts(v.Parts, len(v.Points)), validateChannel(v.Z, len(v.Points), "Z"),
			validateOptional(v.M, len(v.Points), "M"))
	default:
		return errs.New(errs.KindUnsupportedType, "unknown record %T", s)
	}
}

func validateParts(parts []int32, numPoints int) error {
	if len(parts) == 0 {
		if numPoints > 0 {
			return errs.New(errs.KindCorruptedData, "%d points without parts", numPoints)
		}
		return nil
	}
	if parts[0] != 0 {
		return errs.New(errs.KindCorruptedData, "first part starts at %d", parts[0])
	}
	for i := 1; i < len(parts); i++ {
		if parts[i] < parts[i-1] {
			return errs.New(errs.KindCorruptedData, "parts not ascending at %d", i)
		}
	}
	if int(parts[len(parts)-1]) > numPoints {
		return errs.New(errs.KindCorruptedData, "part index %d beyond %d points", parts[len(parts)-1], numPoints)
	}
	return nil
}

func validateChannel(m Measures, numPoints int, name string) error {
	if len(m.Values) != numPoints {
		return errs.New(errs.KindCorruptedData, "%s array has %d values for %d points", name, len(m.Values), numPoints)
	}
	return nil
}

func validateOptional(m *Measures, numPoints int, name string) error {
	if m == nil {
		return nil
	}
	return validateChannel(*m, numPoints, name)
}

func firstErr(list ...error) error {
	for _, err := range list {
		if err != nil {
			return err
		}
	}
	return nil
}

// Planar returns the XY geometry of s as a parts index and point array.
// Point variants and multipoints have no parts; Null has neither.
func Planar(s Shape) (parts []int32, points []Point) {
	switch v := s.(type) {
	case Point:
		return nil, []Point{v}
	case PointM:
		return nil, []Point{{X: v.X, Y: v.Y}}
	case PointZ:
		return nil, []Point{{X: v.X, Y: v.Y}}
	case Polyline:
		return v.Parts, v.Points
	case Polygon:
		return v.Parts, v.Points
	case PolylineM:
		return v.Parts, v.Points
	case PolygonM:
		return v.Parts, v.Points
	case PolylineZ:
		return v.Parts, v.Points
	case PolygonZ:
		return v.Parts, v.Points
	case MultiPoint:
		return nil, v.Points
	case MultiPointM:
		return nil, v.Points
	case MultiPointZ:
		return nil, v.Points
	case MultiPatch:
		return v.Parts, v.Points
	}
	return nil, nil
}
