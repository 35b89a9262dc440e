package render

import (
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
)

// coordDigits keeps block vertices to roughly 10 cm.
const coordDigits = 6

// BlockProperties is the per-feature payload of the map layer.
type BlockProperties struct {
	GEOID         string             `json:"geoid"`
	Total         int                `json:"total"`
	Dominant      string             `json:"dominant,omitempty"`
	Concentration float64            `json:"concentration"`
	Jobs          map[string]int     `json:"jobs"`
	LQ            map[string]float64 `json:"lq"`
}

type blockFeature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties BlockProperties   `json:"properties"`
}

type blockCollection struct {
	Type     string         `json:"type"`
	Features []blockFeature `json:"features"`
}

// Properties builds the map payload for one feature. Only sectors with jobs
// are listed.
func Properties(f *join.Feature, shares aggregate.Shares) BlockProperties {
	p := BlockProperties{
		GEOID:         f.GEOID,
		Total:         f.Total,
		Dominant:      f.Dominant,
		Concentration: round(f.Concentration, 3),
		Jobs:          make(map[string]int),
		LQ:            make(map[string]float64),
	}
	sum := f.SectorSum()
	for code, v := range f.Sectors {
		if v == 0 {
			continue
		}
		p.Jobs[code] = v
		p.LQ[code] = round(shares.Quotient(v, sum, code), 2)
	}
	return p
}

// EncodeGeoJSON writes the drawable features as a GeoJSON FeatureCollection.
// Features without geometry are left out.
func EncodeGeoJSON(w io.Writer, features []join.Feature, shares aggregate.Shares) error {
	fc, err := collection(features, shares)
	if err != nil {
		return err
	}
	return eris.Wrap(json.NewEncoder(w).Encode(fc), "render: encode geojson")
}

func collection(features []join.Feature, shares aggregate.Shares) (*blockCollection, error) {
	fc := &blockCollection{Type: "FeatureCollection", Features: make([]blockFeature, 0, len(features))}
	for i := range features {
		f := &features[i]
		if !f.HasGeometry() {
			continue
		}
		g, err := geojson.Encode(f.Geometry, geojson.EncodeGeometryWithMaxDecimalDigits(coordDigits))
		if err != nil {
			return nil, eris.Wrapf(err, "render: encode geometry %s", f.GEOID)
		}
		fc.Features = append(fc.Features, blockFeature{
			Type:       "Feature",
			ID:         f.GEOID,
			Geometry:   g,
			Properties: Properties(f, shares),
		})
	}
	return fc, nil
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
