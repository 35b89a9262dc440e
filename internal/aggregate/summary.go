package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/lodes-map/internal/transform"
)

// SummaryRow is one line of the county sector table.
type SummaryRow struct {
	Code           string  `csv:"naics" json:"naics" yaml:"naics"`
	Sector         string  `csv:"sector" json:"sector" yaml:"sector"`
	TotalJobs      int     `csv:"total_jobs" json:"total_jobs" yaml:"total_jobs"`
	Blocks         int     `csv:"block_count" json:"block_count" yaml:"block_count"`
	DominantBlocks int     `csv:"dominant_blocks" json:"dominant_blocks" yaml:"dominant_blocks"`
	PctOfTotal     float64 `csv:"pct_of_total" json:"pct_of_total" yaml:"pct_of_total"`
	Color          string  `csv:"-" json:"color" yaml:"-"`
}

// Summarize builds one row per sector with county-wide employment. All 20
// sectors are listed; the unclassified bucket only when it holds jobs. Rows
// are ordered by total jobs descending, then CNS order.
func Summarize(r *Result) []SummaryRow {
	rows := make(map[string]*SummaryRow, len(transform.Sectors)+1)
	for _, s := range transform.Sectors {
		rows[s.Code] = &SummaryRow{Code: s.Code, Sector: s.Name, Color: s.Color}
	}

	var grand int
	for _, b := range r.Blocks {
		for code, v := range b.Sectors {
			row, ok := rows[code]
			if !ok {
				u := transform.Unclassified
				row = &SummaryRow{Code: u.Code, Sector: u.Name, Color: u.Color}
				rows[code] = row
			}
			row.TotalJobs += v
			if v > 0 {
				row.Blocks++
			}
			grand += v
		}
		if code, _ := b.Dominant(); code != "" {
			rows[code].DominantBlocks++
		}
	}

	out := make([]SummaryRow, 0, len(rows))
	for _, row := range rows {
		if grand > 0 {
			row.PctOfTotal = math.Round(float64(row.TotalJobs)/float64(grand)*1000) / 10
		}
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalJobs != out[j].TotalJobs {
			return out[i].TotalJobs > out[j].TotalJobs
		}
		return transform.SectorOrder(out[i].Code) < transform.SectorOrder(out[j].Code)
	})
	return out
}

// Shares holds county-wide sector shares for location quotients.
type Shares struct {
	totals map[string]int
	total  int
}

// CountyShares computes the reference shares for LocationQuotient.
func CountyShares(r *Result) Shares {
	return SharesFromTotals(r.SectorTotals())
}

// SharesFromTotals builds reference shares from county-wide sector totals.
func SharesFromTotals(totals map[string]int) Shares {
	s := Shares{totals: totals}
	for _, v := range totals {
		s.total += v
	}
	return s
}

// LocationQuotient is the block's share of a sector divided by the county's
// share: values above 1 mean the block is more specialised than the county.
// Returns 0 when either share is undefined.
func (s Shares) LocationQuotient(b *Block, code string) float64 {
	return s.Quotient(b.Jobs(code), b.SectorSum(), code)
}

// Quotient computes a location quotient from raw counts: jobs in the sector
// and all classified-or-bucketed jobs in the area.
func (s Shares) Quotient(jobs, areaJobs int, code string) float64 {
	if areaJobs == 0 || s.total == 0 || s.totals[code] == 0 {
		return 0
	}
	areaShare := float64(jobs) / float64(areaJobs)
	countyShare := float64(s.totals[code]) / float64(s.total)
	return areaShare / countyShare
}
