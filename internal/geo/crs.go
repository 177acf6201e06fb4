package geo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ctessum/geom/proj"
)

// TargetSRID is the spatial reference located samples are stored in
// (NAD83 / UTM zone 15N).
const TargetSRID = 26915

// ErrUnsupportedCRS is returned for SRIDs with no known definition.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

// CRS describes a spatial reference by EPSG code.
type CRS struct {
	SRID  int
	Name  string
	Proj4 string
	WKT   string
}

var registry = map[int]CRS{
	4326: {
		SRID:  4326,
		Name:  "WGS 84",
		Proj4: "+proj=longlat +datum=WGS84 +no_defs",
		WKT:   `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
	},
	4269: {
		SRID:  4269,
		Name:  "NAD83",
		Proj4: "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
		WKT:   `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]]`,
	},
	26915: {
		SRID:  26915,
		Name:  "NAD83 / UTM zone 15N",
		Proj4: "+proj=utm +zone=15 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
		WKT:   `PROJCS["NAD83 / UTM zone 15N",GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",-93],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","26915"]]`,
	},
	26715: {
		SRID:  26715,
		Name:  "NAD27 / UTM zone 15N",
		Proj4: "+proj=utm +zone=15 +ellps=clrk66 +towgs84=-8,160,176,0,0,0,0 +units=m +no_defs",
		WKT:   `PROJCS["NAD27 / UTM zone 15N",GEOGCS["NAD27",DATUM["North_American_Datum_1927",SPHEROID["Clarke 1866",6378206.4,294.978698213898,AUTHORITY["EPSG","7008"]],AUTHORITY["EPSG","6267"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4267"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",-93],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","26715"]]`,
	},
	3857: {
		SRID:  3857,
		Name:  "WGS 84 / Pseudo-Mercator",
		Proj4: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +no_defs",
		WKT:   `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3857"]]`,
	},
}

const (
	nad83GeogCS = `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]]`
	nad27GeogCS = `GEOGCS["NAD27",DATUM["North_American_Datum_1927",SPHEROID["Clarke 1866",6378206.4,294.978698213898,AUTHORITY["EPSG","7008"]],AUTHORITY["EPSG","6267"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4267"]]`
	wgs84GeogCS = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
)

// UTM families with a fixed EPSG numbering: base + zone.
var utmFamilies = []struct {
	base, zones int
	south       bool
	datum       string
	geogCS      string
	proj4       string
}{
	{26900, 23, false, "NAD83", nad83GeogCS, "+ellps=GRS80 +towgs84=0,0,0,0,0,0,0"},
	{26700, 22, false, "NAD27", nad27GeogCS, "+ellps=clrk66 +towgs84=-8,160,176,0,0,0,0"},
	{32600, 60, false, "WGS 84", wgs84GeogCS, "+datum=WGS84"},
	{32700, 60, true, "WGS 84", wgs84GeogCS, "+datum=WGS84"},
}

// Lookup returns the definition for srid: a registered code or a UTM zone
// of NAD83, NAD27 or WGS 84.
func Lookup(srid int) (CRS, error) {
	if c, ok := registry[srid]; ok {
		return c, nil
	}
	if c, ok := utmZone(srid); ok {
		return c, nil
	}
	return CRS{}, fmt.Errorf("EPSG:%d: %w", srid, ErrUnsupportedCRS)
}

// Resolve is Lookup with a fallback: when srid is unknown, definition (a
// WKT or PROJ.4 string, e.g. from gpkg_spatial_ref_sys) is used instead.
func Resolve(srid int, definition string) (CRS, error) {
	c, err := Lookup(srid)
	if err == nil {
		return c, nil
	}
	definition = strings.TrimSpace(definition)
	if definition == "" || strings.EqualFold(definition, "undefined") {
		return CRS{}, err
	}
	if _, perr := proj.Parse(definition); perr != nil {
		return CRS{}, fmt.Errorf("EPSG:%d: %w: %v", srid, ErrUnsupportedCRS, perr)
	}
	c = CRS{SRID: srid, Name: fmt.Sprintf("EPSG:%d", srid)}
	if strings.HasPrefix(definition, "+") {
		c.Proj4 = definition
	} else {
		c.WKT = definition
	}
	return c, nil
}

func utmZone(srid int) (CRS, bool) {
	for _, f := range utmFamilies {
		zone := srid - f.base
		if zone < 1 || zone > f.zones {
			continue
		}
		hemi, falseNorthing, south := "N", 0, ""
		if f.south {
			hemi, falseNorthing, south = "S", 10000000, " +south"
		}
		name := fmt.Sprintf("%s / UTM zone %d%s", f.datum, zone, hemi)
		return CRS{
			SRID:  srid,
			Name:  name,
			Proj4: fmt.Sprintf("+proj=utm +zone=%d%s %s +units=m +no_defs", zone, south, f.proj4),
			WKT: fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",%d],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",%d],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","%d"]]`,
				name, f.geogCS, 6*zone-183, falseNorthing, srid),
		}, true
	}
	return CRS{}, false
}

func (c CRS) definition() string {
	if c.WKT != "" {
		return c.WKT
	}
	return c.Proj4
}

func (c CRS) spatialReference() (*proj.SR, error) {
	def := c.Proj4
	if def == "" {
		def = c.WKT
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse EPSG:%d: %w", c.SRID, err)
	}
	return sr, nil
}
