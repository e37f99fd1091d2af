package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Silvesterrr/shapekit"
	"github.com/Silvesterrr/shapekit/internal/logging"
	"github.com/Silvesterrr/shapekit/shp"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shapekit",
	Short: "Inspect and convert ESRI Shapefile datasets",
	Long: `shapekit reads ESRI Shapefile datasets (.shp, .shx, .dbf, .prj).

It can print dataset metadata and records, search records by bounding
box, and convert datasets to GeoJSON, FlatGeobuf and zip archives.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log codec progress to stderr")
	rootCmd.PersistentFlags().Bool("utf8", false, "Character fields are UTF-8")
	rootCmd.PersistentFlags().Bool("cp949", false, "Character fields are CP949")
	rootCmd.PersistentFlags().Bool("lenient", false, "Read malformed numbers and dates as zero")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(geojsonCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(fgbCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(zipCmd)
}

// options builds reader options from the persistent flags.
func options(cmd *cobra.Command) *shapekit.Options {
	verbose, _ := cmd.Flags().GetBool("verbose")
	utf8, _ := cmd.Flags().GetBool("utf8")
	cp949, _ := cmd.Flags().GetBool("cp949")
	lenient, _ := cmd.Flags().GetBool("lenient")

	opts := shapekit.DefaultOptions()
	opts.UseUTF8 = utf8
	opts.UseCP949 = cp949
	opts.LenientNumbers = lenient
	if verbose {
		opts.Logger = logging.NewDefaultLogger(slog.LevelDebug)
	}
	return opts
}

func open(cmd *cobra.Command, path string) (*shapekit.Shapefile, error) {
	s, err := shapekit.Open(path, options(cmd))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

// output returns the -o file, or stdout when unset.
func output(cmd *cobra.Command) (*os.File, func(), error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info <file.shp>",
	Short: "Show dataset metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}

	b := s.Bounds
	fmt.Printf("File:       %s\n", args[0])
	fmt.Printf("Type:       %s\n", s.ShapeType)
	fmt.Printf("Records:    %d\n", s.Len())
	fmt.Printf("Bounds:     [%g, %g] - [%g, %g]\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	if s.ShapeType.HasZ() {
		fmt.Printf("Z range:    %g - %g\n", b.Z.Min, b.Z.Max)
	}
	if s.ShapeType.HasM() && b.M != nil {
		fmt.Printf("M range:    %g - %g\n", b.M.Min, b.M.Max)
	}
	fmt.Printf("Projection: %s\n", s.Projection)

	deleted := 0
	for _, d := range s.Deleted {
		if d {
			deleted++
		}
	}
	if deleted > 0 {
		fmt.Printf("Deleted:    %d\n", deleted)
	}

	fmt.Printf("\nFields (%d):\n", len(s.Fields))
	for _, f := range s.Fields {
		fmt.Printf("  %-11s %s %3d.%d\n", f.Name, f.Type, f.Length, f.Decimals)
	}
	return nil
}

// dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <file.shp>",
	Short: "Print records as WKT with their attributes",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().IntP("limit", "n", 0, "Print at most n records (0: all)")
}

func runDump(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}

	n := s.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		printRecord(s, i)
	}
	return nil
}

func printRecord(s *shapekit.Shapefile, i int) {
	rec, attrs := s.Feature(i)
	geom := "EMPTY"
	if g := shapekit.ToOrb(rec); g != nil {
		geom = wkt.MarshalString(g)
	}
	fmt.Printf("#%d %s %s\n", i+1, rec.Type(), geom)

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("    %s = %v\n", name, attrs[name])
	}
}

// geojson command
var geojsonCmd = &cobra.Command{
	Use:   "geojson <file.shp>",
	Short: "Convert a dataset to a GeoJSON FeatureCollection",
	Args:  cobra.ExactArgs(1),
	RunE:  runGeoJSON,
}

func init() {
	geojsonCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}

func runGeoJSON(cmd *cobra.Command, args []string) error {
	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}
	data, err := s.FeatureCollection().MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}

	out, done, err := output(cmd)
	if err != nil {
		return err
	}
	defer done()
	_, err = out.Write(append(data, '\n'))
	return err
}

// import command
var importCmd = &cobra.Command{
	Use:   "import <input.geojson> <output.shp>",
	Short: "Create a dataset from a GeoJSON FeatureCollection",
	Long: `Create a dataset from a GeoJSON FeatureCollection.

All features must share one geometry kind. The attribute schema is
inferred from the feature properties.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse geojson: %w", err)
	}
	s, err := shapekit.FromFeatureCollection(fc, options(cmd))
	if err != nil {
		return err
	}
	if err := s.Write(args[1]); err != nil {
		return fmt.Errorf("write %s: %w", args[1], err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d %s records to %s\n", s.Len(), s.ShapeType, args[1])
	return nil
}

// fgb command
var fgbCmd = &cobra.Command{
	Use:   "fgb <file.shp>",
	Short: "Convert a dataset to FlatGeobuf",
	Args:  cobra.ExactArgs(1),
	RunE:  runFGB,
}

func init() {
	fgbCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	fgbCmd.Flags().String("name", "", "Layer name")
	fgbCmd.Flags().Bool("no-index", false, "Skip the spatial index")
}

func runFGB(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	noIndex, _ := cmd.Flags().GetBool("no-index")

	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}
	out, done, err := output(cmd)
	if err != nil {
		return err
	}
	defer done()
	return s.WriteFlatGeobuf(out, &shapekit.FlatGeobufOptions{Name: name, IncludeIndex: !noIndex})
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search <file.shp>",
	Short: "Print records whose extent intersects a bounding box",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("bbox", "", "Query box as minX,minY,maxX,maxY")
	_ = searchCmd.MarkFlagRequired("bbox")
}

func runSearch(cmd *cobra.Command, args []string) error {
	bbox, _ := cmd.Flags().GetString("bbox")
	query, err := parseBBox(bbox)
	if err != nil {
		return err
	}
	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}

	hits := s.Search(query)
	for _, i := range hits {
		printRecord(s, i)
	}
	fmt.Fprintf(os.Stderr, "%d of %d records\n", len(hits), s.Len())
	return nil
}

func parseBBox(s string) (shp.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return shp.Bounds{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return shp.Bounds{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return shp.Bounds{}, fmt.Errorf("bbox minimum exceeds maximum")
	}
	return shp.Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

// zip command
var zipCmd = &cobra.Command{
	Use:   "zip <file.shp>",
	Short: "Pack a dataset into a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runZip,
}

func init() {
	zipCmd.Flags().StringP("output", "o", "", "Output file (default: <stem>.zip)")
}

func runZip(cmd *cobra.Command, args []string) error {
	s, err := open(cmd, args[0])
	if err != nil {
		return err
	}

	files := shapekit.Paths(args[0])
	stem := strings.TrimSuffix(files.Shp, ".shp")
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = stem + ".zip"
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	base := stem
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if err := s.WriteArchive(f, base); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return f.Close()
}
