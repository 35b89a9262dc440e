package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/lodes-map/internal/transform"
)

// TractRow is one line of the tract table: the tract's dominant sector and
// how specialised it is relative to the county.
type TractRow struct {
	Tract          string  `csv:"tract" json:"tract"`
	Blocks         int     `csv:"block_count" json:"block_count"`
	TotalJobs      int     `csv:"total_jobs" json:"total_jobs"`
	Dominant       string  `csv:"dominant_naics" json:"dominant_naics"`
	DominantSector string  `csv:"dominant_sector" json:"dominant_sector"`
	DominantJobs   int     `csv:"dominant_jobs" json:"dominant_jobs"`
	Concentration  float64 `csv:"concentration" json:"concentration"`
	DominantLQ     float64 `csv:"dominant_lq" json:"dominant_lq"`
}

// TractSectorRow is one (tract, sector) pair with jobs, share of the tract
// and location quotient against the county.
type TractSectorRow struct {
	Tract string  `csv:"tract" json:"tract"`
	Code  string  `csv:"naics" json:"naics"`
	Jobs  int     `csv:"jobs" json:"jobs"`
	Share float64 `csv:"share" json:"share"`
	LQ    float64 `csv:"lq" json:"lq"`
}

// SummarizeTracts builds one row per tract of a RollupTracts result, ordered
// by tract GEOID. Shares should come from the block-level result so tracts
// are compared with the whole county.
func SummarizeTracts(tracts *Result, shares Shares) []TractRow {
	out := make([]TractRow, 0, len(tracts.Blocks))
	for _, id := range tracts.GEOIDs() {
		tr := tracts.Blocks[id]
		row := TractRow{Tract: id, Blocks: tr.Members, TotalJobs: tr.Total}
		if code, jobs := tr.Dominant(); code != "" {
			s, _ := transform.SectorByCode(code)
			row.Dominant = code
			row.DominantSector = s.Name
			row.DominantJobs = jobs
			row.Concentration = round3(tr.Concentration())
			row.DominantLQ = round3(shares.LocationQuotient(tr, code))
		}
		out = append(out, row)
	}
	return out
}

// TractSectors lists every non-zero sector of every tract, ordered by tract
// then catalogue order.
func TractSectors(tracts *Result, shares Shares) []TractSectorRow {
	var out []TractSectorRow
	for _, id := range tracts.GEOIDs() {
		tr := tracts.Blocks[id]
		sum := tr.SectorSum()
		codes := make([]string, 0, len(tr.Sectors))
		for code, v := range tr.Sectors {
			if v > 0 {
				codes = append(codes, code)
			}
		}
		sort.Slice(codes, func(i, j int) bool {
			return transform.SectorOrder(codes[i]) < transform.SectorOrder(codes[j])
		})
		for _, code := range codes {
			jobs := tr.Sectors[code]
			out = append(out, TractSectorRow{
				Tract: id,
				Code:  code,
				Jobs:  jobs,
				Share: round3(float64(jobs) / float64(sum)),
				LQ:    round3(shares.LocationQuotient(tr, code)),
			})
		}
	}
	return out
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
