package shapekit

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/shp"
)

// =============================================================================
// Test Data Generators
// =============================================================================

// generatePoints creates n random points within the given bounds.
func generatePoints(r *rand.Rand, n int, minX, maxX, minY, maxY float64) []shp.Shape {
	records := make([]shp.Shape, n)
	for i := range records {
		records[i] = shp.Point{
			X: minX + r.Float64()*(maxX-minX),
			Y: minY + r.Float64()*(maxY-minY),
		}
	}
	return records
}

// generatePolylines creates n random polylines with the given number of
// vertices and a measure channel.
func generatePolylines(r *rand.Rand, n, vertices int, minX, maxX, minY, maxY float64) []shp.Shape {
	records := make([]shp.Shape, n)
	for i := range records {
		startX := minX + r.Float64()*(maxX-minX)
		startY := minY + r.Float64()*(maxY-minY)
		line := make([]shp.Point, vertices)
		m := make([]float64, vertices)
		for j := range line {
			line[j] = shp.Point{X: startX + float64(j)*0.01, Y: startY + float64(j)*0.01}
			m[j] = float64(j)
		}
		records[i] = shp.NewPolyline(line).WithM(m)
	}
	return records
}

// generatePolygons creates n clockwise circle approximations.
func generatePolygons(r *rand.Rand, n, vertices int, minX, maxX, minY, maxY float64) []shp.Shape {
	records := make([]shp.Shape, n)
	for i := range records {
		cx := minX + r.Float64()*(maxX-minX)
		cy := minY + r.Float64()*(maxY-minY)
		radius := 0.01 + r.Float64()*0.05

		ring := make([]shp.Point, vertices+1)
		for j := 0; j < vertices; j++ {
			angle := -2 * math.Pi * float64(j) / float64(vertices)
			ring[j] = shp.Point{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
		}
		ring[vertices] = ring[0]
		records[i] = shp.NewPolygon(ring)
	}
	return records
}

// generateDataset builds a dataset of n records with a five-column table.
func generateDataset(b testing.TB, r *rand.Rand, n int, geomType string) *Shapefile {
	var (
		records []shp.Shape
		st      shp.ShapeType
	)
	switch geomType {
	case "point":
		records, st = generatePoints(r, n, 124, 132, 33, 39), shp.TypePoint
	case "polyline":
		records, st = generatePolylines(r, n, 10, 124, 132, 33, 39), shp.TypePolylineM
	case "polygon":
		records, st = generatePolygons(r, n, 32, 124, 132, 33, 39), shp.TypePolygon
	}

	s, err := New(nil)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	s.ShapeType = st
	s.Records = records
	s.Fields = []dbf.Field{
		dbf.NumericField("ID", 10, 0),
		dbf.CharacterField("NAME", 16),
		dbf.NumericField("VALUE", 16, 4),
		dbf.LogicalField("ACTIVE"),
		dbf.CharacterField("CATEGORY", 8),
	}
	s.Attributes = make([][]any, n)
	for i := range s.Attributes {
		s.Attributes[i] = []any{
			i,
			fmt.Sprintf("Feature %d", i),
			r.Float64() * 1000,
			r.Intn(2) == 1,
			fmt.Sprintf("cat_%d", r.Intn(10)),
		}
	}
	s.UpdateBounds()
	return s
}

// =============================================================================
// Shapefile Write Benchmarks
// =============================================================================

func BenchmarkWrite_Points_1000(b *testing.B)    { benchmarkWrite(b, "point", 1000) }
func BenchmarkWrite_Points_10000(b *testing.B)   { benchmarkWrite(b, "point", 10000) }
func BenchmarkWrite_Polylines_1000(b *testing.B) { benchmarkWrite(b, "polyline", 1000) }
func BenchmarkWrite_Polygons_1000(b *testing.B)  { benchmarkWrite(b, "polygon", 1000) }
func BenchmarkWrite_Polygons_10000(b *testing.B) { benchmarkWrite(b, "polygon", 10000) }

func benchmarkWrite(b *testing.B, geomType string, n int) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, n, geomType)
	path := filepath.Join(b.TempDir(), "bench.shp")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := s.Write(path); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Shapefile Read Benchmarks
// =============================================================================

func BenchmarkRead_Points_1000(b *testing.B)    { benchmarkRead(b, "point", 1000, DefaultMaxBufferSize) }
func BenchmarkRead_Points_10000(b *testing.B)   { benchmarkRead(b, "point", 10000, DefaultMaxBufferSize) }
func BenchmarkRead_Polygons_1000(b *testing.B)  { benchmarkRead(b, "polygon", 1000, DefaultMaxBufferSize) }
func BenchmarkRead_Polygons_10000(b *testing.B) { benchmarkRead(b, "polygon", 10000, DefaultMaxBufferSize) }

// Small buffers force one read per record.
func BenchmarkRead_Polygons_10000_SmallBuffer(b *testing.B) {
	benchmarkRead(b, "polygon", 10000, 64)
}

func benchmarkRead(b *testing.B, geomType string, n, maxBuffer int) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, n, geomType)
	path := filepath.Join(b.TempDir(), "bench.shp")
	if err := s.Write(path); err != nil {
		b.Fatal(err)
	}

	opts := DefaultOptions()
	opts.MaxBufferSize = maxBuffer

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		got, err := Open(path, opts)
		if err != nil {
			b.Fatal(err)
		}
		if got.Len() != n {
			b.Fatalf("expected %d records, got %d", n, got.Len())
		}
	}
}

// =============================================================================
// Conversion Benchmarks
// =============================================================================

func BenchmarkFlatGeobuf_Points_10000(b *testing.B)  { benchmarkFlatGeobuf(b, "point", 10000, true) }
func BenchmarkFlatGeobuf_Polygons_1000(b *testing.B) { benchmarkFlatGeobuf(b, "polygon", 1000, true) }
func BenchmarkFlatGeobufNoIdx_Polygons_1000(b *testing.B) {
	benchmarkFlatGeobuf(b, "polygon", 1000, false)
}

func benchmarkFlatGeobuf(b *testing.B, geomType string, n int, includeIndex bool) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, n, geomType)
	opts := &FlatGeobufOptions{IncludeIndex: includeIndex}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := s.WriteFlatGeobuf(&buf, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGeoJSON_Polygons_1000(b *testing.B) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, 1000, "polygon")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := s.FeatureCollection().MarshalJSON(); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Spatial Query Benchmarks
// =============================================================================

func BenchmarkSpatialQuery_Index_Points_50000(b *testing.B) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, 50000, "point")
	idx := s.Index()
	query := shp.Bounds{MinX: 126.5, MinY: 37, MaxX: 127.5, MaxY: 38}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search(query)
	}
}

func BenchmarkSpatialQuery_Scan_Points_50000(b *testing.B) {
	r := rand.New(rand.NewSource(42))
	s := generateDataset(b, r, 50000, "point")
	query := shp.Bounds{MinX: 126.5, MinY: 37, MaxX: 127.5, MaxY: 38}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var hits []int
		for j, rec := range s.Records {
			if shp.Extent(rec).Intersects(query) {
				hits = append(hits, j)
			}
		}
		_ = hits
	}
}

// =============================================================================
// Size Comparison
// =============================================================================

func TestSizeComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping size comparison in short mode")
	}
	for _, geomType := range []string{"point", "polyline", "polygon"} {
		r := rand.New(rand.NewSource(42))
		s := generateDataset(t, r, 1000, geomType)

		var archive, fgb bytes.Buffer
		if err := s.WriteArchive(&archive, "bench"); err != nil {
			t.Fatalf("WriteArchive failed: %v", err)
		}
		if err := s.WriteFlatGeobuf(&fgb, nil); err != nil {
			t.Fatalf("WriteFlatGeobuf failed: %v", err)
		}
		geojsonData, err := s.FeatureCollection().MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON failed: %v", err)
		}

		t.Logf("%-8s zip=%s fgb=%s geojson=%s", geomType,
			formatBytes(archive.Len()), formatBytes(fgb.Len()), formatBytes(len(geojsonData)))
	}
}

func formatBytes(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
