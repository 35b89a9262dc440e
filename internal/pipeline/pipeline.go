// Package pipeline runs the load, aggregate, join and render stages for one
// county, in order, once per invocation.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/config"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/render"
	"github.com/sells-group/lodes-map/internal/store"
	"github.com/sells-group/lodes-map/internal/tiger"
	"github.com/sells-group/lodes-map/internal/transform"
)

// Stage is one timed step of a run.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Result is everything a successful run produced.
type Result struct {
	RunID     string
	Table     *lodes.Table
	Aggregate *aggregate.Result
	Tracts    *aggregate.Result
	Features  []join.Feature
	Stats     join.Stats
	Summary   []aggregate.SummaryRow
	Outputs   []string
	Stages    []Stage
}

// Pipeline orchestrates a single run.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	out   io.Writer // console summary; nil disables it
	now   func() time.Time
}

// New creates a Pipeline. The store caches the processed dataset.
func New(cfg *config.Config, st store.Store, out io.Writer) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, out: out, now: time.Now}
}

// Run executes every stage. Any failure aborts the run, marks it failed in
// the store and leaves the output directory as it was: outputs are staged
// and only moved into place once every stage, the cache write and the
// manifest have succeeded.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	policy, err := aggregate.ParsePolicy(p.cfg.Aggregate.Unclassified)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: policy")
	}
	if s := p.cfg.Render.Sector; s != "" && s != render.TotalLayer {
		if _, ok := transform.SectorByCode(s); !ok {
			return nil, eris.Errorf("pipeline: unknown render sector %q", s)
		}
		if s == transform.UnclassifiedCode && policy == aggregate.PolicyDrop {
			return nil, eris.Errorf("pipeline: render sector %q is always empty under the drop policy", s)
		}
	}

	inputs := ResolveInputs(p.cfg)
	started := p.now()
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("area", p.cfg.Area()),
	)

	run, err := p.store.CreateRun(ctx, store.RunInfo{
		StateFIPS:    p.cfg.LODES.StateFIPS,
		CountyFIPS:   p.cfg.LODES.CountyFIPS,
		LODESYear:    p.cfg.LODES.Year,
		GeometryYear: p.cfg.Geometry.Year,
		Policy:       string(policy),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting",
		zap.String("lodes", inputs.LODESPath),
		zap.String("geometry", inputs.GeometryPath),
	)

	res := &Result{RunID: run.ID}
	var staging *render.Staging
	err = p.execute(ctx, log, inputs, policy, res, &staging)
	if err == nil {
		err = p.finish(ctx, res, inputs, started, staging)
	}
	if err != nil {
		if staging != nil {
			staging.Discard()
		}
		if failErr := p.store.FailRun(context.WithoutCancel(ctx), run.ID, err); failErr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	if _, err := p.store.PruneRuns(ctx, run.ID); err != nil {
		log.Warn("pipeline: failed to prune earlier runs", zap.Error(err))
	}

	if p.out != nil {
		render.PrintSummary(p.out, res.Summary)
	}

	log.Info("pipeline: complete",
		zap.Int("blocks", len(res.Features)),
		zap.Int("tracts", len(res.Tracts.Blocks)),
		zap.Int("total_jobs", res.Aggregate.TotalJobs()),
		zap.Duration("duration", p.now().Sub(started)),
	)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger, inputs Inputs, policy aggregate.Policy, res *Result, staging **render.Staging) error {
	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		start := p.now()
		err := fn()
		d := p.now().Sub(start)
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Duration("duration", d), zap.Error(err))
			return err
		}
		res.Stages = append(res.Stages, Stage{Name: name, Duration: d})
		log.Info("pipeline: stage complete", zap.String("stage", name), zap.Duration("duration", d))
		return nil
	}

	var blocks []tiger.Block
	steps := []struct {
		name string
		fn   func() error
	}{
		{"load_lodes", func() (err error) {
			res.Table, err = lodes.Load(inputs.LODESPath, lodes.Options{
				StateFIPS:  p.cfg.LODES.StateFIPS,
				CountyFIPS: p.cfg.LODES.CountyFIPS,
			})
			return err
		}},
		{"load_geometry", func() (err error) {
			blocks, err = tiger.LoadBlocks(inputs.GeometryPath, tiger.Filter{
				StateFIPS:  p.cfg.LODES.StateFIPS,
				CountyFIPS: p.cfg.LODES.CountyFIPS,
			})
			return err
		}},
		{"aggregate", func() error {
			res.Aggregate = aggregate.Aggregate(res.Table, policy)
			res.Tracts = aggregate.RollupTracts(res.Aggregate)
			res.Summary = aggregate.Summarize(res.Aggregate)
			return nil
		}},
		{"join", func() (err error) {
			res.Features, res.Stats, err = join.Join(blocks, res.Aggregate)
			return err
		}},
		{"render", func() (err error) {
			if *staging, err = render.NewStaging(p.cfg.Paths.OutputDir); err != nil {
				return err
			}
			return p.writeOutputs(res, *staging)
		}},
		{"cache", func() error {
			return eris.Wrap(p.store.SaveFeatures(ctx, res.RunID, res.Features), "pipeline: cache features")
		}},
	}

	for _, s := range steps {
		if err := stage(s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// writeOutputs stages the summary tables, the tract tables and the map.
func (p *Pipeline) writeOutputs(res *Result, st *render.Staging) error {
	if err := render.WriteSummaryCSV(st.Path(render.SummaryCSVFile), res.Summary); err != nil {
		return err
	}
	if err := render.WriteSummaryXLSX(st.Path(render.SummaryXLSXFile), res.Summary); err != nil {
		return err
	}

	shares := aggregate.CountyShares(res.Aggregate)
	if err := render.WriteTractCSV(st.Path(render.TractCSVFile), aggregate.SummarizeTracts(res.Tracts, shares)); err != nil {
		return err
	}
	if err := render.WriteTractSectorsCSV(st.Path(render.TractSectorFile), aggregate.TractSectors(res.Tracts, shares)); err != nil {
		return err
	}

	rc := p.cfg.Render
	return render.WriteMap(st.Path(render.MapFile), res.Features, res.Aggregate, render.MapOptions{
		Title:     rc.Title,
		Sector:    rc.Sector,
		CenterLat: rc.CenterLat,
		CenterLon: rc.CenterLon,
		Zoom:      rc.Zoom,
		TileURL:   rc.TileURL,
		Classes:   rc.Classes,
	})
}

// finish stages the manifest, marks the run complete and moves the outputs
// into place. A failed move is reported as a failed run.
func (p *Pipeline) finish(ctx context.Context, res *Result, inputs Inputs, started time.Time, st *render.Staging) error {
	res.Outputs = st.Finals()
	if err := render.WriteManifest(st.Path(render.ManifestFile), p.manifest(res, inputs, started)); err != nil {
		return err
	}
	if err := p.store.CompleteRun(ctx, res.RunID, res.Summary, res.Aggregate.TotalJobs()); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	outputs, err := st.Commit()
	if err != nil {
		return err
	}
	res.Outputs = outputs
	return nil
}

func (p *Pipeline) manifest(res *Result, inputs Inputs, started time.Time) *render.Manifest {
	stages := make(map[string]string, len(res.Stages))
	for _, s := range res.Stages {
		stages[s.Name] = s.Duration.Round(time.Millisecond).String()
	}
	return &render.Manifest{
		RunID:     res.RunID,
		StartedAt: started.UTC(),
		Duration:  p.now().Sub(started).Round(time.Millisecond).String(),
		Area: render.ManifestArea{
			State:      p.cfg.LODES.State,
			StateFIPS:  p.cfg.LODES.StateFIPS,
			CountyFIPS: p.cfg.LODES.CountyFIPS,
		},
		Inputs: render.ManifestInputs{
			LODES:        inputs.LODESPath,
			LODESYear:    p.cfg.LODES.Year,
			LODESFormat:  string(res.Table.Format),
			LODESRows:    len(res.Table.Rows),
			LODESSkipped: res.Table.Skipped,
			Geometry:     inputs.GeometryPath,
			GeometryYear: p.cfg.Geometry.Year,
		},
		Policy:    string(res.Aggregate.Policy),
		TotalJobs: res.Aggregate.TotalJobs(),
		Tracts:    len(res.Tracts.Blocks),
		Adjusted:  res.Aggregate.Adjusted,
		Join:      res.Stats,
		Stages:    stages,
		Outputs:   append([]string(nil), res.Outputs...),
		Sectors:   res.Summary,
	}
}
