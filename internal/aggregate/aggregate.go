// Package aggregate rolls LODES job counts up to NAICS 2-digit sectors per block.
package aggregate

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/transform"
)

// Policy decides what happens to jobs whose code has no valid sector.
type Policy string

const (
	// PolicyBucket keeps unmapped jobs in the "99" unclassified sector.
	PolicyBucket Policy = "bucket"
	// PolicyDrop discards unmapped jobs and records them in Block.Dropped.
	PolicyDrop Policy = "drop"
)

// ParsePolicy validates a policy name. Empty selects PolicyBucket.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyBucket:
		return PolicyBucket, nil
	case PolicyDrop:
		return PolicyDrop, nil
	default:
		return "", eris.Errorf("aggregate: unknown unclassified policy %q", s)
	}
}

// Block holds sector totals for one census block (or tract, after RollupTracts).
type Block struct {
	GEOID   string
	Total   int            // raw total employment from the source
	Dropped int            // jobs discarded under PolicyDrop
	Sectors map[string]int // sector code → jobs
	Members int            // blocks summed into a tract; zero for a block
}

// Jobs returns the employment in a sector; zero when absent.
func (b *Block) Jobs(code string) int { return b.Sectors[code] }

// SectorSum sums employment over every sector, unclassified included.
func (b *Block) SectorSum() int {
	var n int
	for _, v := range b.Sectors {
		n += v
	}
	return n
}

// Dominant returns the classified sector with the most jobs. Ties go to the
// earlier sector in CNS order. Returns "", 0 when the block has no classified jobs.
func (b *Block) Dominant() (string, int) {
	var code string
	var best int
	for _, s := range transform.Sectors {
		if v := b.Sectors[s.Code]; v > best {
			code, best = s.Code, v
		}
	}
	return code, best
}

// Concentration is the dominant sector's share of total employment.
func (b *Block) Concentration() float64 {
	_, jobs := b.Dominant()
	if b.Total == 0 {
		return 0
	}
	return float64(jobs) / float64(b.Total)
}

// Result is the output of Aggregate.
type Result struct {
	Policy Policy
	Blocks map[string]*Block
	// Adjusted counts blocks whose source total was below the sum of its
	// sector cells; their Total was raised to the sector sum.
	Adjusted int
}

// Block looks up a block by GEOID.
func (r *Result) Block(geoid string) (*Block, bool) {
	b, ok := r.Blocks[geoid]
	return b, ok
}

// GEOIDs returns all block identifiers in ascending order.
func (r *Result) GEOIDs() []string {
	ids := make([]string, 0, len(r.Blocks))
	for id := range r.Blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SectorTotals sums employment per sector across all blocks.
func (r *Result) SectorTotals() map[string]int {
	out := make(map[string]int, len(transform.Sectors)+1)
	for _, b := range r.Blocks {
		for code, v := range b.Sectors {
			out[code] += v
		}
	}
	return out
}

// TotalJobs sums the raw block totals.
func (r *Result) TotalJobs() int {
	var n int
	for _, b := range r.Blocks {
		n += b.Total
	}
	return n
}

// Aggregate maps every row's NAICS code to its 2-digit sector and sums jobs
// per (block, sector). Any gap between a block's raw total and its sector sum
// is treated as suppressed employment and handled by the policy, so that for
// every block Σ Sectors + Dropped == Total.
func Aggregate(t *lodes.Table, policy Policy) *Result {
	if policy == "" {
		policy = PolicyBucket
	}
	r := &Result{Policy: policy, Blocks: make(map[string]*Block, len(t.Totals))}

	for geoid, total := range t.Totals {
		r.Blocks[geoid] = &Block{GEOID: geoid, Total: total, Sectors: make(map[string]int)}
	}

	var unmapped int
	for _, row := range t.Rows {
		b := r.block(row.GEOID)
		code := transform.UnclassifiedCode
		if s, ok := transform.SectorForNAICS(row.NAICS); ok {
			code = s.Code
		} else {
			unmapped += row.Jobs
			if policy == PolicyDrop {
				b.Dropped += row.Jobs
				continue
			}
		}
		b.Sectors[code] += row.Jobs
	}

	for _, b := range r.Blocks {
		residual := b.Total - b.SectorSum() - b.Dropped
		switch {
		case residual > 0 && policy == PolicyDrop:
			b.Dropped += residual
		case residual > 0:
			b.Sectors[transform.UnclassifiedCode] += residual
		case residual < 0:
			b.Total -= residual
			r.Adjusted++
		}
	}

	zap.L().Info("sectors aggregated",
		zap.String("component", "aggregate"),
		zap.String("policy", string(policy)),
		zap.Int("blocks", len(r.Blocks)),
		zap.Int("unmapped_jobs", unmapped),
		zap.Int("adjusted_blocks", r.Adjusted),
	)
	return r
}

func (r *Result) block(geoid string) *Block {
	b, ok := r.Blocks[geoid]
	if !ok {
		b = &Block{GEOID: geoid, Sectors: make(map[string]int)}
		r.Blocks[geoid] = b
	}
	return b
}

// RollupTracts re-keys blocks by their 11-digit tract GEOID and sums them.
func RollupTracts(r *Result) *Result {
	out := &Result{Policy: r.Policy, Blocks: make(map[string]*Block)}
	for _, b := range r.Blocks {
		tr := out.block(transform.TractOf(b.GEOID))
		tr.Members++
		tr.Total += b.Total
		tr.Dropped += b.Dropped
		for code, v := range b.Sectors {
			tr.Sectors[code] += v
		}
	}
	return out
}
