// Package tiger reads Census TIGER/Line 2020 tabulation block geometry
// (TABBLOCK20) from shapefiles or GeoJSON.
package tiger

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lodes-map/internal/transform"
)

// SRID of every geometry produced by this package.
const SRID = 4326

// Sentinel errors. Match with errors.Is.
var (
	// ErrMissingKey means the source has no block GEOID attribute.
	ErrMissingKey = eris.New("tiger: block GEOID field not found")
	// ErrDuplicateBlock means two records carry the same GEOID.
	ErrDuplicateBlock = eris.New("tiger: duplicate block GEOID")
	// ErrNoArea means the source holds no block inside the filter.
	ErrNoArea = eris.New("tiger: no blocks in requested area")
)

// Product describes a TIGER/Line shapefile product.
type Product struct {
	Name  string // e.g., "TABBLOCK20"
	Table string // file suffix, e.g., "tabblock20"
	Key   string // GEOID attribute
}

// Tabblock20 is the 2020 tabulation block product.
var Tabblock20 = Product{
	Name:  "TABBLOCK20",
	Table: "tabblock20",
	Key:   "GEOID20",
}

// keyFields lists accepted GEOID attribute names, in preference order.
var keyFields = []string{"geoid20", "geoid", "block_geoid"}

// Block is one census block polygon.
type Block struct {
	GEOID    string
	Geometry *geom.MultiPolygon
	ALand    int64 // m²
	AWater   int64 // m²
	Lat      float64
	Lon      float64
}

// Filter restricts a load to one state or county.
type Filter struct {
	StateFIPS  string
	CountyFIPS string // empty keeps the whole state
}

// Prefix returns the GEOID prefix that blocks must carry.
func (f Filter) Prefix() string {
	if f.CountyFIPS != "" {
		return transform.CombineFIPS(f.StateFIPS, f.CountyFIPS)
	}
	return transform.NormalizeFIPSState(f.StateFIPS)
}

// Match reports whether a normalized block GEOID passes the filter.
func (f Filter) Match(geoid string) bool {
	return strings.HasPrefix(geoid, f.Prefix())
}

// FileName returns the Census file name for a state-level product,
// e.g. tl_2020_06_tabblock20.zip.
func FileName(product Product, year int, stateFIPS string) string {
	return fmt.Sprintf("tl_%d_%s_%s.zip", year, transform.NormalizeFIPSState(stateFIPS), product.Table)
}

// DownloadURL builds the Census Bureau download URL for a TIGER/Line
// shapefile. baseURL defaults to https://www2.census.gov/geo/tiger.
func DownloadURL(baseURL string, product Product, year int, stateFIPS string) string {
	if baseURL == "" {
		baseURL = "https://www2.census.gov/geo/tiger"
	}
	return fmt.Sprintf("%s/TIGER%d/%s/%s",
		strings.TrimRight(baseURL, "/"), year, product.Name, FileName(product, year, stateFIPS))
}
