package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lodes-map/internal/config"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/render"
	"github.com/sells-group/lodes-map/internal/store"
)

const (
	blockA = "060371011101000" // jobs + geometry
	blockB = "060371011101001" // jobs, no geometry
	blockC = "060371011101002" // geometry, no jobs
)

// wacCSV builds a WAC file: blockA has 54=50, 72=10; blockB has 62=30 plus
// 5 suppressed jobs; one Orange County block is filtered out.
func wacCSV() string {
	header := []string{"w_geocode", "C000"}
	for i := 1; i <= 20; i++ {
		header = append(header, cns(i))
	}
	header = append(header, "createdate")

	row := func(geoid string, total int, cells map[int]string) string {
		rec := []string{geoid, strconv.Itoa(total)}
		for i := 1; i <= 20; i++ {
			v, ok := cells[i]
			if !ok {
				v = "0"
			}
			rec = append(rec, v)
		}
		rec = append(rec, "20230321")
		return strings.Join(rec, ",")
	}

	return strings.Join([]string{
		strings.Join(header, ","),
		row(blockA, 60, map[int]string{12: "50", 18: "10"}),
		row(blockB, 35, map[int]string{16: "30"}),
		row("060590011011000", 99, map[int]string{5: "99"}),
	}, "\n") + "\n"
}

func cns(i int) string { return fmt.Sprintf("CNS%02d", i) }

const blocksGeoJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"GEOID20":"060371011101000","INTPTLAT20":"+34.055","INTPTLON20":"-118.295"},
   "geometry":{"type":"Polygon","coordinates":[[[-118.30,34.05],[-118.30,34.06],[-118.29,34.06],[-118.29,34.05],[-118.30,34.05]]]}},
  {"type":"Feature","properties":{"GEOID20":"060371011101002"},
   "geometry":{"type":"Polygon","coordinates":[[[-118.29,34.05],[-118.29,34.06],[-118.28,34.06],[-118.28,34.05],[-118.29,34.05]]]}}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	lodesPath := filepath.Join(dataDir, "ca_wac_S000_JT00_2021.csv")
	require.NoError(t, os.WriteFile(lodesPath, []byte(wacCSV()), 0o644))
	geomPath := filepath.Join(dataDir, "blocks.geojson")
	require.NoError(t, os.WriteFile(geomPath, []byte(blocksGeoJSON), 0o644))

	cfg := &config.Config{}
	cfg.LODES.Year = 2021
	cfg.LODES.State = "ca"
	cfg.LODES.StateFIPS = "06"
	cfg.LODES.CountyFIPS = "037"
	cfg.LODES.Path = lodesPath
	cfg.Geometry.Year = 2020
	cfg.Geometry.Path = geomPath
	cfg.Paths.DataDir = dataDir
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Aggregate.Unclassified = "bucket"
	cfg.Render.Title = "Test County"
	cfg.Render.Zoom = 10
	cfg.Render.Classes = 5
	return cfg
}

func openStore(t *testing.T, cfg *config.Config) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(cfg.StorePath())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t, cfg)
	var out bytes.Buffer

	res, err := New(cfg, st, &out).Run(context.Background())
	require.NoError(t, err)

	// Aggregation: residual C000 - ΣCNS goes to 99 under the bucket policy.
	a, ok := res.Aggregate.Block(blockA)
	require.True(t, ok)
	assert.Equal(t, 50, a.Jobs("54"))
	assert.Equal(t, 10, a.Jobs("72"))
	b, ok := res.Aggregate.Block(blockB)
	require.True(t, ok)
	assert.Equal(t, 30, b.Jobs("62"))
	assert.Equal(t, 5, b.Jobs("99"))
	assert.Equal(t, 95, res.Aggregate.TotalJobs())
	assert.Equal(t, 1, res.Table.Skipped)

	assert.Equal(t, join.Stats{
		GeometryBlocks: 2, DataBlocks: 2, Matched: 1, ZeroEmployment: 1, MissingGeometry: 1,
	}, res.Stats)

	ids := make([]string, 0, len(res.Features))
	for _, f := range res.Features {
		ids = append(ids, f.GEOID)
		assert.Equal(t, f.Total, f.SectorSum()+f.Dropped, f.GEOID)
	}
	assert.Equal(t, []string{blockA, blockB, blockC}, ids)
	assert.Equal(t, 0, res.Features[2].Total)

	names := make([]string, 0, len(res.Stages))
	for _, s := range res.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"load_lodes", "load_geometry", "aggregate", "join", "render", "cache"}, names)

	for _, name := range []string{
		render.MapFile, render.SummaryCSVFile, render.SummaryXLSXFile,
		render.TractCSVFile, render.TractSectorFile, render.ManifestFile,
	} {
		assert.FileExists(t, filepath.Join(cfg.Paths.OutputDir, name))
	}
	assert.Len(t, res.Outputs, 6)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, render.ManifestFile), res.Outputs[5])

	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 6, "no staging directory left behind")

	tracts, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, render.TractCSVFile))
	require.NoError(t, err)
	// blockA and blockB share tract 06037101110: 54=50, 62=30, 72=10, 99=5.
	assert.Contains(t, string(tracts), "06037101110,2,95,54,Professional Services,50,0.526,1\n")

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	assert.Equal(t, 95, run.TotalJobs)

	cached, err := st.Features(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	m, err := render.ReadManifest(filepath.Join(cfg.Paths.OutputDir, render.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, "wac", m.Inputs.LODESFormat)
	assert.Equal(t, 1, m.Join.MissingGeometry)
	assert.Equal(t, 1, m.Tracts)
	assert.Len(t, m.Outputs, 5)

	assert.Contains(t, out.String(), "Professional")
}

func TestRun_SummaryIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t, cfg)
	csvPath := filepath.Join(cfg.Paths.OutputDir, render.SummaryCSVFile)

	_, err := New(cfg, st, nil).Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	_, err = New(cfg, st, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_MissingInputFailsWithoutOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.LODES.Path = filepath.Join(cfg.Paths.DataDir, "missing.csv.gz")
	st := openStore(t, cfg)

	_, err := New(cfg, st, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv.gz")

	_, statErr := os.Stat(cfg.Paths.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "no outputs on failure")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: store.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRun_NoOverlap(t *testing.T) {
	cfg := testConfig(t)
	cfg.LODES.CountyFIPS = "059"
	cfg.Geometry.Path = filepath.Join(cfg.Paths.DataDir, "la.geojson")
	require.NoError(t, os.WriteFile(cfg.Geometry.Path, []byte(strings.ReplaceAll(blocksGeoJSON, "06037", "06059")), 0o644))

	// LODES keeps 060590011011000; geometry has 06059101110100x.
	st := openStore(t, cfg)
	_, err := New(cfg, st, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, join.ErrNoOverlap))
}

func TestRun_UnknownSectorFailsBeforeOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Sector = "00"
	st := openStore(t, cfg)

	_, err := New(cfg, st, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown render sector")
	_, statErr := os.Stat(cfg.Paths.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "no outputs on failure")
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, st, nil).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_BadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregate.Unclassified = "ignore"

	_, err := New(cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclassified policy")
}

func TestResolveInputs(t *testing.T) {
	cfg := &config.Config{}
	cfg.LODES.Year = 2021
	cfg.LODES.State = "ca"
	cfg.LODES.StateFIPS = "06"
	cfg.LODES.Segment = "S000"
	cfg.LODES.JobType = "JT00"
	cfg.LODES.Version = "LODES8"
	cfg.LODES.BaseURL = "https://lehd.ces.census.gov/data/lodes"
	cfg.Geometry.Year = 2020
	cfg.Paths.DataDir = "data"

	in := ResolveInputs(cfg)
	assert.Equal(t, filepath.Join("data", "ca_wac_S000_JT00_2021.csv.gz"), in.LODESPath)
	assert.Equal(t, filepath.Join("data", "tl_2020_06_tabblock20.zip"), in.GeometryPath)
	assert.Equal(t, "https://lehd.ces.census.gov/data/lodes/LODES8/ca/wac/ca_wac_S000_JT00_2021.csv.gz", in.LODESURL)
	assert.Equal(t, "https://www2.census.gov/geo/tiger/TIGER2020/TABBLOCK20/tl_2020_06_tabblock20.zip", in.GeometryURL)

	cfg.LODES.Path = "/tmp/wac.csv"
	cfg.Geometry.Path = "/tmp/blocks.geojson"
	in = ResolveInputs(cfg)
	assert.Equal(t, "/tmp/wac.csv", in.LODESPath)
	assert.Equal(t, "/tmp/blocks.geojson", in.GeometryPath)
}

func TestRun_PrunesEarlierRuns(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t, cfg)
	ctx := context.Background()

	var ids []string
	for range 3 {
		res, err := New(cfg, st, nil).Run(ctx)
		require.NoError(t, err)
		ids = append(ids, res.RunID)
	}

	for _, id := range ids[:2] {
		run, err := st.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.RunStatusSuperseded, run.Status)

		features, err := st.Features(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, features)
	}

	features, err := st.Features(ctx, ids[2])
	require.NoError(t, err)
	assert.Len(t, features, 3)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestRun_WrongStateFailsAtLoad(t *testing.T) {
	cfg := testConfig(t)
	cfg.LODES.State = "tx"
	cfg.LODES.StateFIPS = "48"
	cfg.LODES.CountyFIPS = "201"
	st := openStore(t, cfg)

	_, err := New(cfg, st, nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lodes.ErrNoArea)
	_, statErr := os.Stat(cfg.Paths.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "no outputs on failure")
}

func TestRun_UnclassifiedSectorUnderDrop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregate.Unclassified = "drop"
	cfg.Render.Sector = "99"

	_, err := New(cfg, openStore(t, cfg), nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "always empty under the drop policy")
	_, statErr := os.Stat(cfg.Paths.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "no outputs on failure")
}

func TestRun_MapFailureKeepsPreviousOutputs(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t, cfg)
	ctx := context.Background()

	first, err := New(cfg, st, nil).Run(ctx)
	require.NoError(t, err)
	csvPath := filepath.Join(cfg.Paths.OutputDir, render.SummaryCSVFile)
	before, err := os.ReadFile(csvPath)
	require.NoError(t, err)

	// No suppressed jobs, so the map has no unclassified layer to open on.
	clean := strings.Replace(wacCSV(), blockB+",35,", blockB+",30,", 1)
	require.NoError(t, os.WriteFile(cfg.LODES.Path, []byte(clean), 0o644))
	cfg.Render.Sector = "99"

	_, err = New(cfg, st, nil).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, render.ErrNoLayer)

	after, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	m, err := render.ReadManifest(filepath.Join(cfg.Paths.OutputDir, render.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, first.RunID, m.RunID)

	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 6, "staged files discarded")

	failed, err := st.ListRuns(ctx, store.RunFilter{Status: store.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	features, err := st.Features(ctx, first.RunID)
	require.NoError(t, err)
	assert.Len(t, features, 3, "failed run does not prune the cache")
}
