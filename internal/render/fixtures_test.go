package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/tiger"
)

const (
	b1 = "060371011101000"
	b2 = "060371011101001"
	b3 = "060371011101002"
	b4 = "060371011101003"
)

// sampleResult: 54=70, 62=30, 72=25, 99=5 across three blocks.
func sampleResult() *aggregate.Result {
	rows := []lodes.Row{
		{GEOID: b1, NAICS: "541511", Jobs: 42},
		{GEOID: b1, NAICS: "541512", Jobs: 8},
		{GEOID: b1, NAICS: "722511", Jobs: 10},
		{GEOID: b2, NAICS: "621111", Jobs: 30},
		{GEOID: b2, NAICS: "541330", Jobs: 20},
		{GEOID: b3, NAICS: "722511", Jobs: 15},
		{GEOID: b3, NAICS: "XX", Jobs: 5},
	}
	t := &lodes.Table{Format: lodes.FormatLong, Rows: rows, Totals: map[string]int{}}
	for _, r := range rows {
		t.Totals[r.GEOID] += r.Jobs
	}
	return aggregate.Aggregate(t, aggregate.PolicyBucket)
}

func square(x, y float64) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{{{x, y}, {x, y + 0.01}, {x + 0.0100001, y + 0.01}, {x + 0.0100001, y}, {x, y}}},
	}).SetSRID(tiger.SRID)
}

// sampleFeatures joins sampleResult onto b1, b2 and an empty b4; b3 has no geometry.
func sampleFeatures(t *testing.T) ([]join.Feature, *aggregate.Result) {
	t.Helper()
	r := sampleResult()
	blocks := []tiger.Block{
		{GEOID: b1, Geometry: square(-118.30, 34.05)},
		{GEOID: b2, Geometry: square(-118.29, 34.05)},
		{GEOID: b4, Geometry: square(-118.28, 34.05)},
	}
	features, _, err := join.Join(blocks, r)
	require.NoError(t, err)
	return features, r
}
