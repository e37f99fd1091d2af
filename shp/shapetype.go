package shp

import "fmt"

// ShapeType identifies a geometry variant. The zero value is TypeUndefined.
type ShapeType uint8

const (
	TypeUndefined ShapeType = iota
	TypeNull
	TypePoint
	TypePointZ
	TypePointM
	TypePolyline
	TypePolylineZ
	TypePolylineM
	TypePolygon
	TypePolygonZ
	TypePolygonM
	TypeMultiPoint
	TypeMultiPointZ
	TypeMultiPointM
	TypeMultiPatch
)

// Family groups shape types sharing a byte layout.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyNull
	FamilyPoint
	FamilyPolyline // polylines and polygons
	FamilyMultiPoint
	FamilyMultiPatch
)

type shapeTypeInfo struct {
	id     int32
	name   string
	family Family
	hasZ   bool
	hasM   bool // M channel is part of the variant (optional for arrays)
}

var shapeTypes = map[ShapeType]shapeTypeInfo{
	TypeNull:        {0, "Null", FamilyNull, false, false},
	TypePoint:       {1, "Point", FamilyPoint, false, false},
	TypePolyline:    {3, "Polyline", FamilyPolyline, false, false},
	TypePolygon:     {5, "Polygon", FamilyPolyline, false, false},
	TypeMultiPoint:  {8, "MultiPoint", FamilyMultiPoint, false, false},
	TypePointZ:      {11, "PointZ", FamilyPoint, true, true},
	TypePolylineZ:   {13, "PolylineZ", FamilyPolyline, true, true},
	TypePolygonZ:    {15, "PolygonZ", FamilyPolyline, true, true},
	TypeMultiPointZ: {18, "MultiPointZ", FamilyMultiPoint, true, true},
	TypePointM:      {21, "PointM", FamilyPoint, false, true},
	TypePolylineM:   {23, "PolylineM", FamilyPolyline, false, true},
	TypePolygonM:    {25, "PolygonM", FamilyPolyline, false, true},
	TypeMultiPointM: {28, "MultiPointM", FamilyMultiPoint, false, true},
	TypeMultiPatch:  {31, "MultiPatch", FamilyMultiPatch, true, true},
}

var shapeTypesByID = func() map[int32]ShapeType {
	m := make(map[int32]ShapeType, len(shapeTypes))
	for t, info := range shapeTypes {
		m[info.id] = t
	}
	return m
}()

// ShapeTypeFromID maps an ESRI shape type id to its ShapeType.
func ShapeTypeFromID(id int32) (ShapeType, bool) {
	t, ok := shapeTypesByID[id]
	return t, ok
}

// ID returns the ESRI shape type id, or -1 for TypeUndefined.
func (t ShapeType) ID() int32 {
	if info, ok := shapeTypes[t]; ok {
		return info.id
	}
	return -1
}

func (t ShapeType) String() string {
	if info, ok := shapeTypes[t]; ok {
		return info.name
	}
	if t == TypeUndefined {
		return "Undefined"
	}
	return fmt.Sprintf("ShapeType(%d)", uint8(t))
}

// Family returns the layout family of t.
func (t ShapeType) Family() Family {
	return shapeTypes[t].family
}

// HasZ reports whether records of type t carry an elevation channel.
func (t ShapeType) HasZ() bool {
	return shapeTypes[t].hasZ
}

// HasM reports whether records of type t may carry a measure channel.
func (t ShapeType) HasM() bool {
	return shapeTypes[t].hasM
}

// Valid reports whether t is one of the registered shape types.
func (t ShapeType) Valid() bool {
	_, ok := shapeTypes[t]
	return ok
}

// ShapeTypes returns every registered shape type in ESRI id order.
func ShapeTypes() []ShapeType {
	return []ShapeType{
		TypeNull, TypePoint, TypePolyline, TypePolygon, TypeMultiPoint,
		TypePointZ, TypePolylineZ, TypePolygonZ, TypeMultiPointZ,
		TypePointM, TypePolylineM, TypePolygonM, TypeMultiPointM,
		TypeMultiPatch,
	}
}
