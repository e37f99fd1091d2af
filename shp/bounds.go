package shp

import "math"

// Bounds is a planar bounding box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Range is a closed interval on the Z or M axis.
type Range struct {
	Min, Max float64
}

// BoundsM is a bounding box with an optional measure range. A nil M means
// the measure channel is absent.
type BoundsM struct {
	Bounds
	M *Range
}

// BoundsZ is a bounding box with a mandatory elevation range and an
// optional measure range.
type BoundsZ struct {
	Bounds
	Z Range
	M *Range
}

// IsZero reports whether b is the default value.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// HasM reports whether the measure range is present.
func (b BoundsM) HasM() bool { return b.M != nil }

// HasM reports whether the measure range is present.
func (b BoundsZ) HasM() bool { return b.M != nil }

// Extend grows b to include (x, y).
func (b Bounds) Extend(x, y float64) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, x),
		MinY: math.Min(b.MinY, y),
		MaxX: math.Max(b.MaxX, x),
		MaxY: math.Max(b.MaxY, y),
	}
}

// Union returns the smallest box containing b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Intersects reports whether b and o overlap, edges included.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Union returns the smallest interval containing r and o.
func (r Range) Union(o Range) Range {
	return Range{Min: math.Min(r.Min, o.Min), Max: math.Max(r.Max, o.Max)}
}

// Union combines two extents. The measure range is present if either side
// has one.
func (b BoundsZ) Union(o BoundsZ) BoundsZ {
	out := BoundsZ{Bounds: b.Bounds.Union(o.Bounds), Z: b.Z.Union(o.Z)}
	switch {
	case b.M != nil && o.M != nil:
		m := b.M.Union(*o.M)
		out.M = &m
	case b.M != nil:
		m := *b.M
		out.M = &m
	case o.M != nil:
		m := *o.M
		out.M = &m
	}
	return out
}

// boundsOf computes the planar box of points. An empty slice yields the
// zero box.
func boundsOf(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		b = b.Extend(p.X, p.Y)
	}
	return b
}

func rangeOf(values []float64) Range {
	if len(values) == 0 {
		return Range{}
	}
	r := Range{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return r
}
