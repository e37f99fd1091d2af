// Package prj reads and writes the .prj projection descriptor of a
// shapefile dataset. Only the EPSG code is interpreted, and only a fixed
// set of codes is recognised.
package prj

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"github.com/Silvesterrr/shapekit/errs"
)

// Projection is a known coordinate reference system.
type Projection uint8

const (
	None Projection = iota
	WGS84
	KoreaUnified
	KoreaWestBelt
	KoreaCentralBelt
	KoreaEastBelt
)

type definition struct {
	epsg int
	name string
	wkt  string
}

const koreaTM = `PROJCS["%s",GEOGCS["Korea 2000",DATUM["Geocentric_datum_of_Korea",` +
	`SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],` +
	`TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6737"]],` +
	`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
	`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4737"]],` +
	`PROJECTION["Transverse_Mercator"],` +
	`PARAMETER["latitude_of_origin",38],` +
	`PARAMETER["central_meridian",%s],` +
	`PARAMETER["scale_factor",%s],` +
	`PARAMETER["false_easting",%s],` +
	`PARAMETER["false_northing",%s],` +
	`UNIT["metre",1,AUTHORITY["EPSG","9001"]],` +
	`AXIS["Northing",NORTH],AXIS["Easting",EAST],` +
	`AUTHORITY["EPSG","%d"]]`

var definitions = map[Projection]definition{
	WGS84: {4326, "WGS 84", `GEOGCS["WGS 84",DATUM["WGS_1984",` +
		`SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],` +
		`PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],` +
		`AXIS["Latitude",NORTH],AXIS["Longitude",EAST],` +
		`AUTHORITY["EPSG","4326"]]`},
	KoreaUnified:     {5179, "Korea 2000 / Unified CS", fmt.Sprintf(koreaTM, "Korea 2000 / Unified CS", "127.5", "0.9996", "1000000", "2000000", 5179)},
	KoreaWestBelt:    {5185, "Korea 2000 / West Belt 2010", fmt.Sprintf(koreaTM, "Korea 2000 / West Belt 2010", "125", "1", "200000", "600000", 5185)},
	KoreaCentralBelt: {5186, "Korea 2000 / Central Belt 2010", fmt.Sprintf(koreaTM, "Korea 2000 / Central Belt 2010", "127", "1", "200000", "600000", 5186)},
	KoreaEastBelt:    {5187, "Korea 2000 / East Belt 2010", fmt.Sprintf(koreaTM, "Korea 2000 / East Belt 2010", "129", "1", "200000", "600000", 5187)},
}

// FromEPSG maps an EPSG code to a known projection, or None.
func FromEPSG(code int) Projection {
	for p, d := range definitions {
		if d.epsg == code {
			return p
		}
	}
	return None
}

// EPSG returns the EPSG code, or 0 for None.
func (p Projection) EPSG() int {
	return definitions[p].epsg
}

// Name returns the coordinate reference system name.
func (p Projection) Name() string {
	if p == None {
		return "None"
	}
	if d, ok := definitions[p]; ok {
		return d.name
	}
	return fmt.Sprintf("Projection(%d)", uint8(p))
}

func (p Projection) String() string { return p.Name() }

// WKT returns the well-known text written to a .prj file, or "" for None.
func (p Projection) WKT() string {
	return definitions[p].wkt
}

var authority = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"(\d+)"\s*\]`)

// Parse extracts the projection from WKT text. The last EPSG authority
// names the whole system; inner ones belong to datums and units.
func Parse(text string) Projection {
	matches := authority.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return None
	}
	code, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return None
	}
	return FromEPSG(code)
}

// ReadFile reads a .prj file. A missing file is not an error and yields
// None.
func ReadFile(path string) (Projection, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return None, nil
	}
	if err != nil {
		return None, errs.Wrap(errs.KindIO, err, "read projection").WithPath(path)
	}
	return Parse(string(data)), nil
}

// WriteFile writes the WKT of p to path. Nothing is written for None.
func WriteFile(path string, p Projection) error {
	if p == None {
		return nil
	}
	wkt := p.WKT()
	if wkt == "" {
		return errs.New(errs.KindInvalidFormat, "unknown projection %d", uint8(p)).WithPath(path)
	}
	if err := os.WriteFile(path, []byte(wkt), 0o644); err != nil {
		return errs.Wrap(errs.KindIO, err, "write projection").WithPath(path)
	}
	return nil
}
