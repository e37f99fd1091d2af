package shapekit

import (
	"github.com/Silvesterrr/shapekit/errs"
	"github.com/Silvesterrr/shapekit/shp"
	"github.com/paulmach/orb"
)

// ToOrb converts a record to an orb geometry. Z and M values are dropped.
// Polylines with one part become a LineString, otherwise a
// MultiLineString. Polygon rings are grouped into polygons by orientation:
// each clockwise ring starts a polygon and the counter-clockwise rings
// that follow are its holes. Null records return nil.
func ToOrb(s shp.Shape) orb.Geometry {
	if s == nil {
		return nil
	}
	parts, points := shp.Planar(s)

	switch s.Type().Family() {
	case shp.FamilyPoint:
		return orbPoint(points[0])

	case shp.FamilyMultiPoint:
		mp := make(orb.MultiPoint, len(points))
		for i, p := range points {
			mp[i] = orbPoint(p)
		}
		return mp

	case shp.FamilyPolyline:
		if isPolygon(s.Type()) {
			return polygonsFromRings(ringsOf(parts, points))
		}
		mls := make(orb.MultiLineString, len(parts))
		for i := range parts {
			mls[i] = orb.LineString(orbPoints(shp.PartPoints(parts, points, i)))
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls

	case shp.FamilyMultiPatch:
		// Each patch part is kept as a single-ring polygon.
		mp := make(orb.MultiPolygon, len(parts))
		for i := range parts {
			mp[i] = orb.Polygon{orb.Ring(orbPoints(shp.PartPoints(parts, points, i)))}
		}
		return mp
	}
	return nil
}

func isPolygon(t shp.ShapeType) bool {
	return t == shp.TypePolygon || t == shp.TypePolygonM || t == shp.TypePolygonZ
}

func orbPoint(p shp.Point) orb.Point {
	return orb.Point{p.X, p.Y}
}

func orbPoints(points []shp.Point) []orb.Point {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = orbPoint(p)
	}
	return out
}

func ringsOf(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, len(parts))
	for i := range parts {
		rings[i] = orb.Ring(orbPoints(shp.PartPoints(parts, points, i)))
	}
	return rings
}

func polygonsFromRings(rings []orb.Ring) orb.Geometry {
	var mp orb.MultiPolygon
	for _, r := range rings {
		if r.Orientation() == orb.CCW && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], r)
			continue
		}
		mp = append(mp, orb.Polygon{r})
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// FromOrb converts an orb geometry to a record of the matching
// two-dimensional shape type. Polygon outer rings are written clockwise
// and holes counter-clockwise. A nil geometry yields a Null record.
func FromOrb(g orb.Geometry) (shp.Shape, error) {
	switch v := g.(type) {
	case nil:
		return shp.Null{}, nil
	case orb.Point:
		return shp.Point{X: v[0], Y: v[1]}, nil
	case orb.MultiPoint:
		return shp.NewMultiPoint(shpPoints(v)), nil
	case orb.LineString:
		return shp.NewPolyline(shpPoints(v)), nil
	case orb.MultiLineString:
		parts := make([][]shp.Point, len(v))
		for i, ls := range v {
			parts[i] = shpPoints(ls)
		}
		return shp.NewPolyline(parts...), nil
	case orb.Ring:
		return shp.NewPolygon(orientRing(v, orb.CW)), nil
	case orb.Polygon:
		return shp.NewPolygon(polygonRings(v)...), nil
	case orb.MultiPolygon:
		var rings [][]shp.Point
		for _, p := range v {
			rings = append(rings, polygonRings(p)...)
		}
		return shp.NewPolygon(rings...), nil
	case orb.Bound:
		return FromOrb(v.ToPolygon())
	}
	return nil, errs.New(errs.KindUnsupportedType, "no shape type for %s", g.GeoJSONType())
}

func shpPoints[P ~[]orb.Point](points P) []shp.Point {
	out := make([]shp.Point, len(points))
	for i, p := range points {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

func polygonRings(p orb.Polygon) [][]shp.Point {
	rings := make([][]shp.Point, len(p))
	for i, r := range p {
		want := orb.CCW
		if i == 0 {
			want = orb.CW
		}
		rings[i] = orientRing(r, want)
	}
	return rings
}

func orientRing(r orb.Ring, want orb.Orientation) []shp.Point {
	pts := shpPoints(r)
	if o := r.Orientation(); o != 0 && o != want {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// shapeTypeFor returns the shape type FromOrb produces for g.
func shapeTypeFor(g orb.Geometry) shp.ShapeType {
	switch g.(type) {
	case nil:
		return shp.TypeNull
	case orb.Point:
		return shp.TypePoint
	case orb.MultiPoint:
		return shp.TypeMultiPoint
	case orb.LineString, orb.MultiLineString:
		return shp.TypePolyline
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		return shp.TypePolygon
	}
	return shp.TypeUndefined
}

// datasetType picks the single non-null shape type of a geometry set.
func datasetType(geoms []orb.Geometry) (shp.ShapeType, error) {
	t := shp.TypeNull
	for i, g := range geoms {
		gt := shapeTypeFor(g)
		switch {
		case gt == shp.TypeUndefined:
			return shp.TypeUndefined, errs.New(errs.KindUnsupportedType, "no shape type for %s", g.GeoJSONType()).
				With("feature", i+1)
		case gt == shp.TypeNull || gt == t:
		case t == shp.TypeNull:
			t = gt
		default:
			return shp.TypeUndefined, errs.New(errs.KindCorruptedData, "mixed geometry types %v and %v", t, gt).
				With("feature", i+1)
		}
	}
	return t, nil
}
