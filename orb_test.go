package shapekit

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestToOrb(t *testing.T) {
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	second := []shp.Point{{X: 20, Y: 20}, {X: 20, Y: 30}, {X: 30, Y: 30}, {X: 20, Y: 20}}

	tests := []struct {
		name string
		in   shp.Shape
		want orb.Geometry
	}{
		{"null", shp.Null{}, nil},
		{"point", shp.Point{X: 1, Y: 2}, orb.Point{1, 2}},
		{"pointz", shp.PointZ{X: 1, Y: 2, Z: 3, M: 4}, orb.Point{1, 2}},
		{"multipoint", shp.NewMultiPoint([]shp.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}), orb.MultiPoint{{1, 2}, {3, 4}}},
		{"single line", shp.NewPolyline(lineA), orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{"multi line", shp.NewPolyline(lineA, lineB), orb.MultiLineString{{{0, 0}, {1, 1}, {2, 0}}, {{5, 5}, {6, 7}}}},
		{
			"polygon with hole",
			shp.NewPolygon(outer, hole),
			orb.Polygon{
				{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
				{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
			},
		},
		{
			"two polygons",
			shp.NewPolygon(outer, hole, second),
			orb.MultiPolygon{
				{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}, {{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}}},
				{{{20, 20}, {20, 30}, {30, 30}, {20, 20}}},
			},
		},
		{
			"multipatch",
			shp.NewMultiPatch([][]shp.Point{outer}, []int32{5}, []float64{0, 0, 0, 0, 0}, nil),
			orb.MultiPolygon{{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToOrb(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToOrb() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFromOrb_RingOrientation(t *testing.T) {
	// Counter-clockwise outer ring and clockwise hole, the GeoJSON convention.
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
	s, err := FromOrb(poly)
	if err != nil {
		t.Fatalf("FromOrb failed: %v", err)
	}
	pg, ok := s.(shp.Polygon)
	if !ok {
		t.Fatalf("expected shp.Polygon, got %T", s)
	}

	rings := ringsOf(pg.Parts, pg.Points)
	if rings[0].Orientation() != orb.CW {
		t.Error("expected clockwise outer ring")
	}
	if rings[1].Orientation() != orb.CCW {
		t.Error("expected counter-clockwise hole")
	}
	if pg.Box != (shp.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}) {
		t.Errorf("unexpected box %+v", pg.Box)
	}

	back, ok := ToOrb(s).(orb.Polygon)
	if !ok || len(back) != 2 {
		t.Fatalf("expected a polygon with one hole, got %#v", ToOrb(s))
	}
}

func TestFromOrb_Types(t *testing.T) {
	tests := []struct {
		name string
		in   orb.Geometry
		want shp.ShapeType
	}{
		{"nil", nil, shp.TypeNull},
		{"point", orb.Point{1, 2}, shp.TypePoint},
		{"multipoint", orb.MultiPoint{{1, 2}}, shp.TypeMultiPoint},
		{"linestring", orb.LineString{{0, 0}, {1, 1}}, shp.TypePolyline},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}}, shp.TypePolyline},
		{"bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, shp.TypePolygon},
		{"multipolygon", orb.MultiPolygon{{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}}, shp.TypePolygon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := FromOrb(tt.in)
			if err != nil {
				t.Fatalf("FromOrb failed: %v", err)
			}
			if s.Type() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, s.Type())
			}
		})
	}

	if _, err := FromOrb(orb.Collection{orb.Point{1, 1}}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType for a collection, got %v", err)
	}
}

func TestFeatureCollection(t *testing.T) {
	s := newDataset(t, shp.TypePoint, []shp.Shape{shp.Point{X: 1, Y: 2}, shp.Null{}}, nil)
	s.Fields = []dbf.Field{dbf.CharacterField("NAME", 8), dbf.DateField("SEEN")}
	s.Attributes = [][]any{
		{"alpha", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{nil, time.Time{}},
	}

	fc := s.FeatureCollection()
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if fc.Features[0].Geometry != (orb.Point{1, 2}) {
		t.Errorf("unexpected geometry %v", fc.Features[0].Geometry)
	}
	if fc.Features[1].Geometry != nil {
		t.Errorf("expected null geometry, got %v", fc.Features[1].Geometry)
	}
	if v := fc.Features[0].Properties["SEEN"]; v != "2024-03-15" {
		t.Errorf("expected 2024-03-15, got %v", v)
	}
	if v, ok := fc.Features[1].Properties["SEEN"]; !ok || v != nil {
		t.Errorf("expected null SEEN, got %v", v)
	}

	if _, err := json.Marshal(fc); err != nil {
		t.Errorf("marshal failed: %v", err)
	}
}

func TestFromFeatureCollection(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},
		 "properties":{"name":"first","lanes":2,"speed":50.5,"paved":true}},
		{"type":"Feature","geometry":{"type":"MultiLineString","coordinates":[[[2,2],[3,3]],[[4,4],[5,5]]]},
		 "properties":{"name":"second road","lanes":4,"speed":80,"paved":false}},
		{"type":"Feature","geometry":null,"properties":{"name":"ghost"}}
	]}`
	fc, err := geojson.UnmarshalFeatureCollection([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection failed: %v", err)
	}

	s, err := FromFeatureCollection(fc, nil)
	if err != nil {
		t.Fatalf("FromFeatureCollection failed: %v", err)
	}
	if s.ShapeType != shp.TypePolyline {
		t.Errorf("expected Polyline, got %v", s.ShapeType)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", s.Len())
	}
	if s.Records[2].Type() != shp.TypeNull {
		t.Errorf("expected null third record, got %v", s.Records[2].Type())
	}
	if s.Bounds.Bounds != (shp.Bounds{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5}) {
		t.Errorf("unexpected bounds %+v", s.Bounds.Bounds)
	}

	want := []dbf.Field{
		dbf.NumericField("lanes", 18, 0),
		{Name: "name", Type: dbf.Character, Length: 12},
		dbf.LogicalField("paved"),
		dbf.NumericField("speed", 24, 8),
	}
	if !reflect.DeepEqual(s.Fields, want) {
		t.Errorf("unexpected schema:\n got %+v\nwant %+v", s.Fields, want)
	}
	if !reflect.DeepEqual(s.Attributes[0], []any{int64(2), "first", true, 50.5}) {
		t.Errorf("unexpected first row %#v", s.Attributes[0])
	}
	if !reflect.DeepEqual(s.Attributes[2], []any{nil, "ghost", nil, nil}) {
		t.Errorf("unexpected third row %#v", s.Attributes[2])
	}
}

func TestFromFeatureCollection_MixedTypes(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))

	_, err := FromFeatureCollection(fc, nil)
	if !errors.Is(err, ErrCorruptedData) {
		t.Fatalf("expected ErrCorruptedData, got %v", err)
	}
}

func TestPromoteKind(t *testing.T) {
	tests := []struct {
		a, b, want columnKind
	}{
		{kindNone, kindInt, kindInt},
		{kindInt, kindNone, kindInt},
		{kindInt, kindFloat, kindFloat},
		{kindFloat, kindInt, kindFloat},
		{kindBool, kindInt, kindString},
		{kindDate, kindString, kindString},
		{kindBool, kindBool, kindBool},
	}
	for _, tt := range tests {
		if got := promoteKind(tt.a, tt.b); got != tt.want {
			t.Errorf("promoteKind(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
