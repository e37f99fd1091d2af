package shapekit

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection converts the dataset to GeoJSON. Each record becomes
// one feature in record order; null records have a null geometry. Dates
// are rendered as YYYY-MM-DD and blank dates as null.
func (s *Shapefile) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, rec := range s.Records {
		f := geojson.NewFeature(ToOrb(rec))
		_, attrs := s.Feature(i)
		for name, v := range attrs {
			if t, ok := v.(time.Time); ok {
				if t.IsZero() {
					v = nil
				} else {
					v = t.Format(time.DateOnly)
				}
			}
			f.Properties[name] = v
		}
		fc.Append(f)
	}
	return fc
}

// FromFeatureCollection builds a dataset from GeoJSON features. All
// non-null geometries must map to the same shape type. The attribute
// schema is inferred from the property values.
func FromFeatureCollection(fc *geojson.FeatureCollection, opts *Options) (*Shapefile, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return s, nil
	}

	geoms := make([]orb.Geometry, len(fc.Features))
	for i, f := range fc.Features {
		if f != nil {
			geoms[i] = f.Geometry
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

	props := make([]geojson.Properties, len(fc.Features))
	for i, f := range fc.Features {
		if f != nil {
			props[i] = f.Properties
		}
	}
	s.Fields, s.Attributes = inferSchema(props)
	if s.Fields, err = dbf.Widen(s.Fields, s.Attributes, s.enc); err != nil {
		return nil, err
	}

	s.UpdateBounds()
	s.opts.Logger.Debug("converted feature collection", "features", len(fc.Features), "type", s.ShapeType, "fields", len(s.Fields))
	return s, nil
}

// columnKind is the attribute type inferred for one property.
type columnKind int

// Ordered from most to least specific; promotion picks the larger kind.
const (
	kindNone columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindDate
	kindString
)

// inferKind classifies a property value.
func inferKind(v any) columnKind {
	switch n := v.(type) {
	case nil:
		return kindNone
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32:
		return kindFloat
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return kindInt
		}
		return kindFloat
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return kindInt
		}
		return kindFloat
	case time.Time:
		return kindDate
	default:
		return kindString
	}
}

// promoteKind returns the more general of two kinds. Numbers widen to
// float; any other disagreement falls back to text.
func promoteKind(a, b columnKind) columnKind {
	switch {
	case a == b || b == kindNone:
		return a
	case a == kindNone:
		return b
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	}
	return kindString
}

func (k columnKind) field(name string) dbf.Field {
	switch k {
	case kindBool:
		return dbf.LogicalField(name)
	case kindInt:
		return dbf.NumericField(name, 18, 0)
	case kindFloat:
		return dbf.NumericField(name, 24, 8)
	case kindDate:
		return dbf.DateField(name)
	}
	return dbf.CharacterField(name, 1)
}

// inferSchema derives fields in name order and converts every value to
// the Go type its field writes.
func inferSchema(props []geojson.Properties) ([]dbf.Field, [][]any) {
	kinds := make(map[string]columnKind)
	for _, p := range props {
		for name, v := range p {
			kinds[name] = promoteKind(kinds[name], inferKind(v))
		}
	}
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]dbf.Field, len(names))
	for j, name := range names {
		fields[j] = kinds[name].field(name)
	}

	rows := make([][]any, len(props))
	for i, p := range props {
		row := make([]any, len(names))
		for j, name := range names {
			row[j] = convertValue(p[name], kinds[name])
		}
		rows[i] = row
	}
	return fields, rows
}

func convertValue(v any, k columnKind) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindInt:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case json.Number:
			i, _ := n.Int64()
			return i
		}
		return v
	case kindFloat:
		switch n := v.(type) {
		case json.Number:
			f, _ := n.Float64()
			return f
		case float32:
			return float64(n)
		}
		if f, ok := v.(float64); ok {
			return f
		}
		return toFloat(v)
	case kindString:
		switch s := v.(type) {
		case string:
			return s
		case time.Time:
			return s.Format(time.DateOnly)
		case map[string]any, []any:
			b, err := json.Marshal(s)
			if err == nil {
				return string(b)
			}
		}
		return fmt.Sprint(v)
	}
	return v
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}
