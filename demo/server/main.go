package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Silvesterrr/shapekit"
	"github.com/Silvesterrr/shapekit/dbf"
	"github.com/Silvesterrr/shapekit/prj"
	"github.com/Silvesterrr/shapekit/shp"
)

type City struct {
	Name       string
	Province   string
	Longitude  float64
	Latitude   float64
	Population int
	Capital    bool
}

var cities = []City{
	{"Seoul", "Seoul", 126.9780, 37.5665, 9411000, true},
	{"Busan", "Busan", 129.0756, 35.1796, 3349000, false},
	{"Incheon", "Incheon", 126.7052, 37.4563, 2967000, false},
	{"Daegu", "Daegu", 128.6014, 35.8714, 2385000, false},
	{"Daejeon", "Daejeon", 127.3845, 36.3504, 1452000, false},
	{"Gwangju", "Gwangju", 126.8526, 35.1595, 1441000, false},
	{"Ulsan", "Ulsan", 129.3114, 35.5384, 1121000, false},
	{"Suwon", "Gyeonggi", 127.0286, 37.2636, 1191000, false},
	{"Sejong", "Sejong", 127.2890, 36.4800, 383000, false},
	{"Jeju", "Jeju", 126.5312, 33.4996, 489000, false},
	{"Changwon", "Gyeongnam", 128.6811, 35.2280, 1033000, false},
	{"Cheongju", "Chungbuk", 127.4890, 36.6424, 850000, false},
	{"Jeonju", "Jeonbuk", 127.1480, 35.8242, 650000, false},
	{"Chuncheon", "Gangwon", 127.7298, 37.8813, 286000, false},
	{"Pohang", "Gyeongbuk", 129.3435, 36.0190, 500000, false},
}

// sampleDataset writes the built-in cities as a shapefile under dir.
func sampleDataset(dir string) (string, error) {
	s, err := shapekit.New(nil)
	if err != nil {
		return "", err
	}
	s.ShapeType = shp.TypePoint
	s.Projection = prj.WGS84
	s.Fields = []dbf.Field{
		dbf.CharacterField("NAME", 16),
		dbf.CharacterField("PROVINCE", 16),
		dbf.NumericField("POP", 10, 0),
		dbf.LogicalField("CAPITAL"),
		dbf.DateField("UPDATED"),
	}
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range cities {
		s.Records = append(s.Records, shp.Point{X: c.Longitude, Y: c.Latitude})
		s.Attributes = append(s.Attributes, []any{c.Name, c.Province, c.Population, c.Capital, updated})
	}
	s.UpdateBounds()

	path := filepath.Join(dir, "cities.shp")
	return path, s.Write(path)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	path := flag.String("shp", "", "dataset to serve (default: built-in Korean cities)")
	utf8 := flag.Bool("utf8", false, "character fields are UTF-8")
	flag.Parse()

	var tmp string
	if *path == "" {
		var err error
		if tmp, err = os.MkdirTemp("", "shapekit-demo"); err != nil {
			log.Fatalf("Failed to create temp dir: %v", err)
		}
		if *path, err = sampleDataset(tmp); err != nil {
			log.Fatalf("Failed to write sample dataset: %v", err)
		}
	}

	opts := shapekit.DefaultOptions()
	opts.UseUTF8 = *utf8
	s, err := shapekit.Open(*path, opts)
	if tmp != "" {
		os.RemoveAll(tmp)
	}
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *path, err)
	}

	// Convert once; the dataset does not change while serving.
	var fgb bytes.Buffer
	err = s.WriteFlatGeobuf(&fgb, &shapekit.FlatGeobufOptions{
		Name:         strings.TrimSuffix(filepath.Base(*path), filepath.Ext(*path)),
		Description:  s.String(),
		IncludeIndex: true,
	})
	if err != nil {
		log.Fatalf("Failed to create FlatGeobuf: %v", err)
	}
	geojsonData, err := s.FeatureCollection().MarshalJSON()
	if err != nil {
		log.Fatalf("Failed to create GeoJSON: %v", err)
	}
	var archive bytes.Buffer
	if err := s.WriteArchive(&archive, "data"); err != nil {
		log.Fatalf("Failed to create archive: %v", err)
	}
	index := s.Index()

	serve := func(contentType string, data []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write(data)
		}
	}
	http.HandleFunc("/data.fgb", serve("application/octet-stream", fgb.Bytes()))
	http.HandleFunc("/data.geojson", serve("application/geo+json", geojsonData))
	http.HandleFunc("/data.zip", serve("application/zip", archive.Bytes()))
	http.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		b, err := parseBBox(r.URL.Query().Get("bbox"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		hits := index.Search(b)
		sub, _ := shapekit.New(nil)
		sub.ShapeType = s.ShapeType
		sub.Fields = s.Fields
		for _, i := range hits {
			sub.Records = append(sub.Records, s.Records[i])
			sub.Attributes = append(sub.Attributes, s.Attributes[i])
		}
		data, err := sub.FeatureCollection().MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		serve("application/geo+json", data)(w, r)
	})

	log.Printf("Serving %s on http://localhost%s", s, *addr)
	log.Println("Endpoints: /data.fgb /data.geojson /data.zip /search?bbox=minX,minY,maxX,maxY")
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func parseBBox(s string) (shp.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return shp.Bounds{}, fmt.Errorf("bbox needs 4 values")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return shp.Bounds{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	return shp.Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}
