package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/transform"
)

// ReadShapefile reads TABBLOCK20 records from a shapefile, keeping blocks
// that pass the filter. Records without geometry are skipped.
func ReadShapefile(shpPath string, filter Filter) ([]Block, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	keyIdx := -1
	for _, k := range keyFields {
		if idx, ok := fieldIdx[k]; ok {
			keyIdx = idx
			break
		}
	}
	if keyIdx < 0 {
		return nil, eris.Wrapf(ErrMissingKey, "%s", shpPath)
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	seen := make(map[string]struct{})
	var blocks []Block
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		geoid := transform.NormalizeBlockGEOID(strings.TrimRight(reader.Attribute(keyIdx), "\x00"))
		if geoid == "" || !filter.Match(geoid) {
			continue
		}
		if _, dup := seen[geoid]; dup {
			return nil, eris.Wrapf(ErrDuplicateBlock, "%s: %s", shpPath, geoid)
		}
		seen[geoid] = struct{}{}

		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			skipped++
			continue
		}

		b := Block{
			GEOID:    geoid,
			Geometry: mp,
			ALand:    parseInt(firstNonEmpty(attr("aland20"), attr("aland"))),
			AWater:   parseInt(firstNonEmpty(attr("awater20"), attr("awater"))),
			Lat:      parseFloat(firstNonEmpty(attr("intptlat20"), attr("intptlat"))),
			Lon:      parseFloat(firstNonEmpty(attr("intptlon20"), attr("intptlon"))),
		}
		if b.Lat == 0 && b.Lon == 0 {
			b.Lat, b.Lon = centroid(mp)
		}
		blocks = append(blocks, b)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records without geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return blocks, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseFloat accepts TIGER interior points such as "+34.0522".
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(s), "+"), 64)
	if err != nil {
		return 0
	}
	return f
}
