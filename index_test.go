package shapekit

import (
	"reflect"
	"testing"

	"github.com/Silvesterrr/shapekit/shp"
)

func TestShapefile_Search(t *testing.T) {
	s := newDataset(t, shp.TypePolyline, []shp.Shape{
		shp.NewPolyline([]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}),
		shp.Null{},
		shp.NewPolyline([]shp.Point{{X: 5, Y: 5}, {X: 6, Y: 6}}),
		shp.NewPolyline([]shp.Point{{X: 0, Y: 5}, {X: 10, Y: 5}}),
	}, nil)

	tests := []struct {
		name  string
		query shp.Bounds
		want  []int
	}{
		{"everything", shp.Bounds{MinX: -1, MinY: -1, MaxX: 11, MaxY: 11}, []int{0, 2, 3}},
		{"lower left", shp.Bounds{MinX: 0.5, MinY: 0.5, MaxX: 2, MaxY: 2}, []int{0}},
		{"touching edge", shp.Bounds{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}, []int{0}},
		{"horizontal line", shp.Bounds{MinX: 8, MinY: 4, MaxX: 9, MaxY: 6}, []int{3}},
		{"empty area", shp.Bounds{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30}, nil},
		{"near miss", shp.Bounds{MinX: 1.0001, MinY: 1.0001, MaxX: 2, MaxY: 2}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Search(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Search(%+v) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSpatialIndex_Points(t *testing.T) {
	records := make([]shp.Shape, 0, 200)
	for i := 0; i < 200; i++ {
		records = append(records, shp.Point{X: float64(i % 20), Y: float64(i / 20)})
	}
	idx := NewSpatialIndex(records)
	if idx.Len() != 200 {
		t.Fatalf("expected 200 indexed records, got %d", idx.Len())
	}

	got := idx.Search(shp.Bounds{MinX: 2, MinY: 3, MaxX: 3, MaxY: 4})
	want := []int{62, 63, 82, 83}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search = %v, want %v", got, want)
	}
}

func TestSpatialIndex_Empty(t *testing.T) {
	idx := NewSpatialIndex([]shp.Shape{shp.Null{}})
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}
	if got := idx.Search(shp.Bounds{MaxX: 1, MaxY: 1}); got != nil {
		t.Errorf("expected no hits, got %v", got)
	}
}
