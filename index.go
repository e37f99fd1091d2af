package shapekit

import (
	"math"
	"sort"

	"github.com/Silvesterrr/shapekit/shp"
	"github.com/dhconnelly/rtreego"
)

// SpatialIndex is an in-memory R-tree over record extents.
type SpatialIndex struct {
	rtree *rtreego.Rtree
	size  int
}

// indexedRecord is a record extent stored in the R-tree.
type indexedRecord struct {
	record int
	bounds shp.Bounds
}

// Bounds implements rtreego.Spatial.
func (r *indexedRecord) Bounds() rtreego.Rect {
	return rectOf(r.bounds)
}

// rectOf converts b to an R-tree rectangle padded on every side. The tree
// needs positive lengths and treats touching edges as disjoint, so results
// are filtered again against the exact bounds.
func rectOf(b shp.Bounds) rtreego.Rect {
	pad := 1e-9 * math.Max(1, math.Max(
		math.Max(math.Abs(b.MinX), math.Abs(b.MaxX)),
		math.Max(math.Abs(b.MinY), math.Abs(b.MaxY)),
	))
	point := rtreego.Point{b.MinX - pad, b.MinY - pad}
	lengths := []float64{b.MaxX - b.MinX + 2*pad, b.MaxY - b.MinY + 2*pad}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// NewSpatialIndex indexes the extent of every non-null record.
func NewSpatialIndex(records []shp.Shape) *SpatialIndex {
	idx := &SpatialIndex{rtree: rtreego.NewTree(2, 25, 50)}
	for i, rec := range records {
		if rec == nil || rec.Type() == shp.TypeNull {
			continue
		}
		idx.rtree.Insert(&indexedRecord{record: i, bounds: shp.Extent(rec).Bounds})
		idx.size++
	}
	return idx
}

// Len returns the number of indexed records.
func (idx *SpatialIndex) Len() int { return idx.size }

// Search returns the indices of records whose extent intersects b, edges
// included, in ascending order.
func (idx *SpatialIndex) Search(b shp.Bounds) []int {
	if idx.size == 0 {
		return nil
	}
	var hits []int
	for _, s := range idx.rtree.SearchIntersect(rectOf(b)) {
		rec := s.(*indexedRecord)
		if rec.bounds.Intersects(b) {
			hits = append(hits, rec.record)
		}
	}
	sort.Ints(hits)
	return hits
}

// Index builds a spatial index over the current records. It is not kept
// in sync with later changes to Records.
func (s *Shapefile) Index() *SpatialIndex {
	idx := NewSpatialIndex(s.Records)
	s.opts.Logger.Debug("built spatial index", "records", idx.Len())
	return idx
}

// Search returns the indices of records whose extent intersects b.
func (s *Shapefile) Search(b shp.Bounds) []int {
	return s.Index().Search(b)
}
