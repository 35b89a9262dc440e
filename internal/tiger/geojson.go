package tiger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/transform"
)

// ReadGeoJSON reads block polygons from a GeoJSON FeatureCollection such as
// a TIGERweb query export.
func ReadGeoJSON(path string, filter Filter) ([]Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, eris.Wrapf(err, "tiger: decode geojson %s", path)
	}

	seen := make(map[string]struct{}, len(fc.Features))
	var blocks []Block
	var skipped int

	for i, f := range fc.Features {
		geoid, ok := featureGEOID(f)
		if !ok {
			return nil, eris.Wrapf(ErrMissingKey, "%s: feature %d", path, i)
		}
		if !filter.Match(geoid) {
			continue
		}
		if _, dup := seen[geoid]; dup {
			return nil, eris.Wrapf(ErrDuplicateBlock, "%s: %s", path, geoid)
		}
		seen[geoid] = struct{}{}

		mp, err := toMultiPolygon(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: block %s", path, geoid)
		}
		if mp == nil {
			skipped++
			continue
		}

		b := Block{
			GEOID:    geoid,
			Geometry: mp,
			ALand:    int64(propFloat(f.Properties, "ALAND20", "ALAND")),
			AWater:   int64(propFloat(f.Properties, "AWATER20", "AWATER")),
			Lat:      propFloat(f.Properties, "INTPTLAT20", "INTPTLAT"),
			Lon:      propFloat(f.Properties, "INTPTLON20", "INTPTLON"),
		}
		if b.Lat == 0 && b.Lon == 0 {
			b.Lat, b.Lon = centroid(mp)
		}
		blocks = append(blocks, b)
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped geojson features without geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return blocks, nil
}

// featureGEOID finds the block key in the feature properties, falling back
// to the feature id.
func featureGEOID(f *geojson.Feature) (string, bool) {
	lower := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		lower[strings.ToLower(k)] = v
	}
	for _, key := range keyFields {
		if s := transform.NormalizeBlockGEOID(propString(lower[key])); s != "" {
			return s, true
		}
	}
	if f.ID != "" {
		return transform.NormalizeBlockGEOID(f.ID), true
	}
	return "", false
}

func propString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func propFloat(props map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := props[k]
		if !ok {
			v, ok = props[strings.ToLower(k)]
		}
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case string:
			return parseFloat(t)
		}
	}
	return 0
}
