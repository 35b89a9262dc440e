package join

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/tiger"
	"github.com/sells-group/lodes-map/internal/transform"
)

func block(geoid string) tiger.Block {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
	})
	return tiger.Block{GEOID: geoid, Geometry: mp, ALand: 100}
}

func result(t *testing.T, rows ...lodes.Row) *aggregate.Result {
	t.Helper()
	tbl := &lodes.Table{Format: lodes.FormatLong, Totals: map[string]int{}}
	for _, r := range rows {
		tbl.Rows = append(tbl.Rows, r)
		tbl.Totals[r.GEOID] += r.Jobs
	}
	return aggregate.Aggregate(tbl, aggregate.PolicyBucket)
}

const (
	b1 = "060371011101000"
	b2 = "060371011101001"
	b3 = "060371011101002"
)

func TestJoin_LeftJoin(t *testing.T) {
	r := result(t,
		lodes.Row{GEOID: b1, NAICS: "541511", Jobs: 42},
		lodes.Row{GEOID: b1, NAICS: "541512", Jobs: 8},
		lodes.Row{GEOID: b1, NAICS: "722511", Jobs: 10},
	)

	features, stats, err := Join([]tiger.Block{block(b2), block(b1)}, r)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, b1, features[0].GEOID)
	assert.Equal(t, 50, features[0].Jobs("54"))
	assert.Equal(t, 60, features[0].Total)
	assert.Equal(t, "54", features[0].Dominant)
	assert.InDelta(t, 50.0/60.0, features[0].Concentration, 1e-9)

	// Geometry without employment has a zero in every sector.
	empty := features[1]
	assert.Equal(t, b2, empty.GEOID)
	assert.Equal(t, 0, empty.Total)
	assert.Len(t, empty.Sectors, len(transform.Sectors))
	for _, s := range transform.Sectors {
		v, ok := empty.Sectors[s.Code]
		assert.True(t, ok, s.Code)
		assert.Zero(t, v, s.Code)
	}
	assert.Equal(t, "", empty.Dominant)

	assert.Equal(t, Stats{GeometryBlocks: 2, DataBlocks: 1, Matched: 1, ZeroEmployment: 1}, stats)
}

func TestJoin_SupersetOfAggregated(t *testing.T) {
	r := result(t,
		lodes.Row{GEOID: b1, NAICS: "62", Jobs: 5},
		lodes.Row{GEOID: b3, NAICS: "44", Jobs: 7},
	)

	features, stats, err := Join([]tiger.Block{block(b1), block(b2)}, r)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, f := range features {
		ids[f.GEOID] = true
	}
	for _, g := range r.GEOIDs() {
		assert.True(t, ids[g], "aggregated block %s missing from output", g)
	}

	assert.Equal(t, 1, stats.MissingGeometry)
	assert.Equal(t, []string{b1, b2, b3}, []string{features[0].GEOID, features[1].GEOID, features[2].GEOID})
	assert.False(t, features[2].HasGeometry())
	assert.Equal(t, 7, features[2].Jobs("44-45"))
	assert.Len(t, Drawable(features), 2)
}

func TestJoin_NoOverlap(t *testing.T) {
	r := result(t, lodes.Row{GEOID: "060590011011000", NAICS: "62", Jobs: 5})

	_, _, err := Join([]tiger.Block{block(b1)}, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoOverlap))
}

func TestJoin_DuplicateGeometry(t *testing.T) {
	r := result(t, lodes.Row{GEOID: b1, NAICS: "62", Jobs: 5})

	_, _, err := Join([]tiger.Block{block(b1), block(b1)}, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tiger.ErrDuplicateBlock))
}

func TestJoin_EmptyEmployment(t *testing.T) {
	r := result(t)

	features, stats, err := Join([]tiger.Block{block(b1), block(b2)}, r)
	require.NoError(t, err)
	assert.Len(t, features, 2)
	assert.Equal(t, 2, stats.ZeroEmployment)
}

func TestJoin_UnclassifiedCarried(t *testing.T) {
	r := result(t,
		lodes.Row{GEOID: b1, NAICS: "62", Jobs: 5},
		lodes.Row{GEOID: b1, NAICS: "XX", Jobs: 3},
	)

	features, _, err := Join([]tiger.Block{block(b1)}, r)
	require.NoError(t, err)
	assert.Equal(t, 3, features[0].Jobs(transform.UnclassifiedCode))
	assert.Equal(t, 8, features[0].Total)
}

func TestShares(t *testing.T) {
	r := result(t,
		lodes.Row{GEOID: b1, NAICS: "541511", Jobs: 30},
		lodes.Row{GEOID: b1, NAICS: "62", Jobs: 10},
		lodes.Row{GEOID: b2, NAICS: "62", Jobs: 60},
	)

	features, _, err := Join([]tiger.Block{block(b1), block(b2), block(b3)}, r)
	require.NoError(t, err)

	want := aggregate.CountyShares(r)
	got := Shares(features)
	for _, code := range []string{"54", "62", "11"} {
		assert.InDelta(t, want.Quotient(30, 40, code), got.Quotient(30, 40, code), 1e-9, code)
	}
	// b1: 30/40 in 54; county: 30/100.
	assert.InDelta(t, 2.5, got.Quotient(30, 40, "54"), 1e-9)
}
