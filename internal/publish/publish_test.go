package publish

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/store"
	"github.com/sells-group/lodes-map/internal/tiger"
)

func testRun() *store.Run {
	return &store.Run{
		ID:     "run-1",
		Status: store.RunStatusComplete,
		Info: store.RunInfo{
			StateFIPS: "06", CountyFIPS: "037", LODESYear: 2021, GeometryYear: 2020, Policy: "bucket",
		},
		Blocks:    2,
		TotalJobs: 55,
		Summary: []aggregate.SummaryRow{
			{Code: "54", Sector: "Professional, Scientific, and Technical Services", TotalJobs: 50, Blocks: 1, DominantBlocks: 1, PctOfTotal: 90.9},
			{Code: "99", Sector: "Unclassified", TotalJobs: 5, Blocks: 1, PctOfTotal: 9.1},
		},
	}
}

func testFeatures() []join.Feature {
	a := join.ZeroSectors()
	a["54"] = 50
	b := join.ZeroSectors()
	b["99"] = 5
	return []join.Feature{
		{
			GEOID: "060371011101000",
			Geometry: geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
				{{{-118.3, 34.05}, {-118.3, 34.06}, {-118.29, 34.06}, {-118.29, 34.05}, {-118.3, 34.05}}},
			}),
			Total: 50, Sectors: a, Dominant: "54", Concentration: 1,
		},
		{GEOID: "060371011101002", Total: 5, Sectors: b},
	}
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close()

	for _, stmt := range migrations("lodes") {
		mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, Migrate(context.Background(), mock, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE EXTENSION").WillReturnError(fmt.Errorf("permission denied"))

	err = Migrate(context.Background(), mock, "lodes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: migrate schema lodes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_QuoteSchema(t *testing.T) {
	stmts := migrations("la_jobs")
	assert.Contains(t, stmts[1], `"la_jobs"`)
	assert.Contains(t, stmts[3], `"la_jobs".blocks`)
	assert.Contains(t, stmts[3], "geometry(MultiPolygon, 4326)")
}

func TestPublish(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "lodes"."runs"`).
		WithArgs("run-1", "06", "037", 2021, 2020, "bucket", 2, 55).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`TRUNCATE "lodes"."blocks", "lodes"."block_sectors"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, blockColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "block_sectors"}, sectorColumns).WillReturnResult(2)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_lodes_sector_summary"}, summaryColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "lodes"."sector_summary"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	res, err := Publish(context.Background(), mock, testRun(), testFeatures(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, int64(2), res.Blocks)
	assert.Equal(t, int64(2), res.BlockSectors)
	assert.Equal(t, int64(2), res.SummaryRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_TruncateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	any8 := make([]any, 8)
	for i := range any8 {
		any8[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO "lodes"."runs"`).WithArgs(any8...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("TRUNCATE").WillReturnError(fmt.Errorf("relation does not exist"))

	_, err = Publish(context.Background(), mock, testRun(), testFeatures(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate block tables")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_RejectsIncompleteRun(t *testing.T) {
	run := testRun()
	run.Status = store.RunStatusFailed

	_, err := Publish(context.Background(), nil, run, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not complete")

	_, err = Publish(context.Background(), nil, nil, nil, Options{})
	require.Error(t, err)
}

func TestFeatureRows(t *testing.T) {
	blocks, sectors, err := featureRows("run-1", testFeatures())
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Len(t, blocks[0], len(blockColumns))

	wkb, ok := blocks[0][10].([]byte)
	require.True(t, ok)
	mp, err := tiger.DecodeWKB(wkb)
	require.NoError(t, err)
	assert.Equal(t, tiger.SRID, mp.SRID())
	assert.Equal(t, "54", blocks[0][4])

	assert.Nil(t, blocks[1][10], "missing geometry is NULL")
	assert.Nil(t, blocks[1][4], "no dominant sector is NULL")

	assert.Equal(t, [][]any{
		{"060371011101000", "54", 50},
		{"060371011101002", "99", 5},
	}, sectors)
}

func TestSummaryRows(t *testing.T) {
	rows := summaryRows(testRun())
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"run-1", "54", "Professional, Scientific, and Technical Services", 50, 1, 1, 90.9}, rows[0])
}
