// Package join merges aggregated sector totals onto census block geometry.
package join

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/tiger"
	"github.com/sells-group/lodes-map/internal/transform"
)

// ErrNoOverlap means both inputs are non-empty but share no block GEOID,
// which usually points at a wrong county or geometry vintage.
var ErrNoOverlap = eris.New("join: no block identifiers in common")

// Feature is one block with its geometry and employment by sector.
type Feature struct {
	GEOID    string
	Geometry *geom.MultiPolygon // nil when the block has jobs but no geometry
	ALand    int64
	AWater   int64
	Lat      float64
	Lon      float64

	Total         int
	Dropped       int
	Sectors       map[string]int // every catalogue sector, zero-filled
	Dominant      string
	Concentration float64
}

// Jobs returns employment in a sector.
func (f *Feature) Jobs(code string) int { return f.Sectors[code] }

// SectorSum sums employment over every sector, unclassified included.
func (f *Feature) SectorSum() int {
	var n int
	for _, v := range f.Sectors {
		n += v
	}
	return n
}

// HasGeometry reports whether the feature can be drawn.
func (f *Feature) HasGeometry() bool { return f.Geometry != nil }

// Stats describes how the two inputs matched.
type Stats struct {
	GeometryBlocks  int `json:"geometry_blocks" yaml:"geometry_blocks"`
	DataBlocks      int `json:"data_blocks" yaml:"data_blocks"`
	Matched         int `json:"matched" yaml:"matched"`
	ZeroEmployment  int `json:"zero_employment" yaml:"zero_employment"`   // geometry without jobs
	MissingGeometry int `json:"missing_geometry" yaml:"missing_geometry"` // jobs without geometry
}

// Join left-joins sector totals onto block geometry. Blocks without
// employment get zero in every sector; blocks with employment but no
// geometry are emitted with nil geometry so no aggregated block is lost.
// The result is sorted by GEOID.
func Join(blocks []tiger.Block, r *aggregate.Result) ([]Feature, Stats, error) {
	stats := Stats{GeometryBlocks: len(blocks), DataBlocks: len(r.Blocks)}

	features := make([]Feature, 0, len(blocks)+len(r.Blocks))
	seen := make(map[string]struct{}, len(blocks))

	for _, b := range blocks {
		if _, dup := seen[b.GEOID]; dup {
			return nil, stats, eris.Wrapf(tiger.ErrDuplicateBlock, "join: %s", b.GEOID)
		}
		seen[b.GEOID] = struct{}{}

		f := Feature{
			GEOID:    b.GEOID,
			Geometry: b.Geometry,
			ALand:    b.ALand,
			AWater:   b.AWater,
			Lat:      b.Lat,
			Lon:      b.Lon,
		}
		if agg, ok := r.Block(b.GEOID); ok {
			stats.Matched++
			fill(&f, agg)
		} else {
			stats.ZeroEmployment++
			fill(&f, nil)
		}
		features = append(features, f)
	}

	if stats.GeometryBlocks > 0 && stats.DataBlocks > 0 && stats.Matched == 0 {
		return nil, stats, eris.Wrapf(ErrNoOverlap, "%d geometry blocks, %d data blocks", stats.GeometryBlocks, stats.DataBlocks)
	}

	for _, geoid := range r.GEOIDs() {
		if _, ok := seen[geoid]; ok {
			continue
		}
		agg, _ := r.Block(geoid)
		f := Feature{GEOID: geoid}
		fill(&f, agg)
		features = append(features, f)
		stats.MissingGeometry++
	}

	sort.Slice(features, func(i, j int) bool { return features[i].GEOID < features[j].GEOID })

	log := zap.L().With(zap.String("component", "join"))
	if stats.MissingGeometry > 0 {
		log.Warn("blocks with employment have no geometry",
			zap.Int("missing_geometry", stats.MissingGeometry),
		)
	}
	log.Info("blocks joined",
		zap.Int("features", len(features)),
		zap.Int("matched", stats.Matched),
		zap.Int("zero_employment", stats.ZeroEmployment),
	)
	return features, stats, nil
}

// ZeroSectors returns a sector map with every catalogue sector set to zero.
func ZeroSectors() map[string]int {
	m := make(map[string]int, len(transform.Sectors)+1)
	for _, s := range transform.Sectors {
		m[s.Code] = 0
	}
	return m
}

// Shares computes county-wide sector shares from joined features, for
// location quotients over a cached run.
func Shares(features []Feature) aggregate.Shares {
	totals := make(map[string]int, len(transform.Sectors)+1)
	for i := range features {
		for code, v := range features[i].Sectors {
			totals[code] += v
		}
	}
	return aggregate.SharesFromTotals(totals)
}

func fill(f *Feature, b *aggregate.Block) {
	f.Sectors = ZeroSectors()
	if b == nil {
		return
	}
	for code, v := range b.Sectors {
		f.Sectors[code] = v
	}
	f.Total = b.Total
	f.Dropped = b.Dropped
	f.Dominant, _ = b.Dominant()
	f.Concentration = b.Concentration()
}

// Drawable returns the features that carry geometry.
func Drawable(features []Feature) []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		if f.HasGeometry() {
			out = append(out, f)
		}
	}
	return out
}
