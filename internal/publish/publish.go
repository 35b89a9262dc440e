package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/db"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/store"
	"github.com/sells-group/lodes-map/internal/tiger"
	"github.com/sells-group/lodes-map/internal/transform"
)

// Options controls a publish.
type Options struct {
	Schema    string
	BatchSize int // rows per COPY; 0 uses db.DefaultBatchSize
}

// Result counts the rows written.
type Result struct {
	RunID        string
	Blocks       int64
	BlockSectors int64
	SummaryRows  int64
	Duration     time.Duration
}

var (
	blockColumns = []string{
		"geoid", "run_id", "total_jobs", "dropped", "dominant", "concentration",
		"aland", "awater", "lat", "lon", "the_geom",
	}
	sectorColumns  = []string{"geoid", "naics", "jobs"}
	summaryColumns = []string{
		"run_id", "naics", "sector", "total_jobs", "block_count", "dominant_blocks", "pct_of_total",
	}
)

// Publish replaces the block tables with a run's features and upserts its
// sector summary. The run must be complete.
func Publish(ctx context.Context, pool db.Pool, run *store.Run, features []join.Feature, opts Options) (*Result, error) {
	if run == nil {
		return nil, eris.New("publish: nil run")
	}
	if run.Status != store.RunStatusComplete {
		return nil, eris.Errorf("publish: run %s is %s, not complete", run.ID, run.Status)
	}
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}

	start := time.Now()
	log := zap.L().With(
		zap.String("component", "publish"),
		zap.String("run_id", run.ID),
		zap.String("schema", opts.Schema),
	)

	if err := upsertRun(ctx, pool, opts.Schema, run); err != nil {
		return nil, err
	}

	truncate := fmt.Sprintf("TRUNCATE %s, %s",
		db.Table{Schema: opts.Schema, Name: "blocks"}.Sanitize(),
		db.Table{Schema: opts.Schema, Name: "block_sectors"}.Sanitize(),
	)
	if _, err := pool.Exec(ctx, truncate); err != nil {
		return nil, eris.Wrap(err, "publish: truncate block tables")
	}

	blockRows, sectorRows, err := featureRows(run.ID, features)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: run.ID}
	res.Blocks, err = db.CopyBatches(ctx, pool, db.Table{Schema: opts.Schema, Name: "blocks"}, blockColumns, blockRows, opts.BatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "publish: copy blocks")
	}
	res.BlockSectors, err = db.CopyBatches(ctx, pool, db.Table{Schema: opts.Schema, Name: "block_sectors"}, sectorColumns, sectorRows, opts.BatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "publish: copy block sectors")
	}

	res.SummaryRows, err = db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        db.Table{Schema: opts.Schema, Name: "sector_summary"},
		Columns:      summaryColumns,
		ConflictKeys: []string{"run_id", "naics"},
	}, summaryRows(run))
	if err != nil {
		return nil, eris.Wrap(err, "publish: upsert sector summary")
	}

	res.Duration = time.Since(start)
	log.Info("publish: complete",
		zap.Int64("blocks", res.Blocks),
		zap.Int64("block_sectors", res.BlockSectors),
		zap.Int64("summary_rows", res.SummaryRows),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func upsertRun(ctx context.Context, pool db.Pool, schema string, run *store.Run) error {
	sql := fmt.Sprintf(`INSERT INTO %s (run_id, state_fips, county_fips, lodes_year, geometry_year, policy, blocks, total_jobs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			blocks = EXCLUDED.blocks,
			total_jobs = EXCLUDED.total_jobs,
			published_at = now()`,
		db.Table{Schema: schema, Name: "runs"}.Sanitize())

	_, err := pool.Exec(ctx, sql,
		run.ID, run.Info.StateFIPS, run.Info.CountyFIPS, run.Info.LODESYear,
		run.Info.GeometryYear, run.Info.Policy, run.Blocks, run.TotalJobs,
	)
	if err != nil {
		return eris.Wrapf(err, "publish: record run %s", run.ID)
	}
	return nil
}

// featureRows flattens features into COPY rows. Geometry travels as EWKB,
// which PostGIS accepts as the binary form of geometry. Zero sector counts
// are not written.
func featureRows(runID string, features []join.Feature) (blocks, sectors [][]any, err error) {
	blocks = make([][]any, 0, len(features))
	for i := range features {
		f := &features[i]
		wkb, err := tiger.EncodeWKB(f.Geometry)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "publish: block %s", f.GEOID)
		}
		var dominant any
		if f.Dominant != "" {
			dominant = f.Dominant
		}
		var geomVal any
		if wkb != nil {
			geomVal = wkb
		}
		blocks = append(blocks, []any{
			f.GEOID, runID, f.Total, f.Dropped, dominant, f.Concentration,
			f.ALand, f.AWater, f.Lat, f.Lon, geomVal,
		})

		for _, s := range transform.Sectors {
			if n := f.Sectors[s.Code]; n > 0 {
				sectors = append(sectors, []any{f.GEOID, s.Code, n})
			}
		}
		if n := f.Sectors[transform.UnclassifiedCode]; n > 0 {
			sectors = append(sectors, []any{f.GEOID, transform.UnclassifiedCode, n})
		}
	}
	return blocks, sectors, nil
}

func summaryRows(run *store.Run) [][]any {
	rows := make([][]any, 0, len(run.Summary))
	for _, s := range run.Summary {
		rows = append(rows, []any{
			run.ID, s.Code, s.Sector, s.TotalJobs, s.Blocks, s.DominantBlocks, s.PctOfTotal,
		})
	}
	return rows
}
