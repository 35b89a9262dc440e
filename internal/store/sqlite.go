package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/tiger"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create directory")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	info          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	blocks        INTEGER NOT NULL DEFAULT 0,
	total_jobs    INTEGER NOT NULL DEFAULT 0,
	summary       TEXT,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS blocks (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	geoid         TEXT NOT NULL,
	geom          BLOB,
	aland         INTEGER NOT NULL DEFAULT 0,
	awater        INTEGER NOT NULL DEFAULT 0,
	lat           REAL NOT NULL DEFAULT 0,
	lon           REAL NOT NULL DEFAULT 0,
	total         INTEGER NOT NULL DEFAULT 0,
	dropped       INTEGER NOT NULL DEFAULT 0,
	dominant      TEXT NOT NULL DEFAULT '',
	concentration REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, geoid)
);

CREATE TABLE IF NOT EXISTS block_sectors (
	run_id        TEXT NOT NULL,
	geoid         TEXT NOT NULL,
	sector        TEXT NOT NULL,
	jobs          INTEGER NOT NULL,
	PRIMARY KEY (run_id, geoid, sector),
	FOREIGN KEY (run_id, geoid) REFERENCES blocks(run_id, geoid) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_block_sectors_sector ON block_sectors(run_id, sector);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, info RunInfo) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	infoJSON, err := json.Marshal(info)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run info")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, info, status, created_at) VALUES (?, ?, ?, ?)`,
		id, string(infoJSON), string(RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{ID: id, Info: info, Status: RunStatusRunning, CreatedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary []aggregate.SummaryRow, totalJobs int) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, total_jobs = ?,
		 blocks = (SELECT COUNT(*) FROM blocks WHERE run_id = ?), completed_at = ?
		 WHERE id = ?`,
		string(RunStatusComplete), string(summaryJSON), totalJobs, runID, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const runColumns = `id, info, status, blocks, total_jobs, summary, error, created_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// LatestRun returns the most recent completed run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(RunStatusComplete),
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveFeatures writes every feature of a run in one transaction. Only
// non-zero sector counts are stored.
func (s *SQLiteStore) SaveFeatures(ctx context.Context, runID string, features []join.Feature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	blockStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blocks (run_id, geoid, geom, aland, awater, lat, lon, total, dropped, dominant, concentration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare block insert")
	}
	defer blockStmt.Close() //nolint:errcheck

	sectorStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO block_sectors (run_id, geoid, sector, jobs) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare sector insert")
	}
	defer sectorStmt.Close() //nolint:errcheck

	var sectorRows int
	for i := range features {
		f := &features[i]
		wkb, err := tiger.EncodeWKB(f.Geometry)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode block %s", f.GEOID)
		}
		if _, err := blockStmt.ExecContext(ctx,
			runID, f.GEOID, wkb, f.ALand, f.AWater, f.Lat, f.Lon,
			f.Total, f.Dropped, f.Dominant, f.Concentration,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert block %s", f.GEOID)
		}
		for code, jobs := range f.Sectors {
			if jobs == 0 {
				continue
			}
			if _, err := sectorStmt.ExecContext(ctx, runID, f.GEOID, code, jobs); err != nil {
				return eris.Wrapf(err, "sqlite: insert sector %s/%s", f.GEOID, code)
			}
			sectorRows++
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit features")
	}

	zap.L().Info("features cached",
		zap.String("component", "store.sqlite"),
		zap.String("run_id", runID),
		zap.Int("blocks", len(features)),
		zap.Int("sector_rows", sectorRows),
	)
	return nil
}

// PruneRuns drops the cached blocks of every run except keepRunID and marks
// earlier completed runs superseded, so the cache holds one dataset. Run rows
// stay as history. Returns the number of block rows removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keepRunID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	// foreign_keys is per connection, so sector rows are removed explicitly.
	if _, err := tx.ExecContext(ctx, `DELETE FROM block_sectors WHERE run_id != ?`, keepRunID); err != nil {
		return 0, eris.Wrap(err, "sqlite: prune block sectors")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE run_id != ?`, keepRunID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune blocks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune blocks rows affected")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE id != ? AND status = ?`,
		string(RunStatusSuperseded), keepRunID, string(RunStatusComplete),
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: supersede runs")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit prune")
	}

	zap.L().Info("cache pruned",
		zap.String("component", "store.sqlite"),
		zap.String("kept_run_id", keepRunID),
		zap.Int64("blocks_removed", n),
	)
	return n, nil
}

const blockColumns = `geoid, geom, aland, awater, lat, lon, total, dropped, dominant, concentration`

// Features loads every block of a run ordered by GEOID, sectors zero-filled.
func (s *SQLiteStore) Features(ctx context.Context, runID string) ([]join.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE run_id = ? ORDER BY geoid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query blocks")
	}
	defer rows.Close() //nolint:errcheck

	var features []join.Feature
	index := make(map[string]int)
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		index[f.GEOID] = len(features)
		features = append(features, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate blocks")
	}

	srows, err := s.db.QueryContext(ctx,
		`SELECT geoid, sector, jobs FROM block_sectors WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query block sectors")
	}
	defer srows.Close() //nolint:errcheck

	for srows.Next() {
		var geoid, code string
		var jobs int
		if err := srows.Scan(&geoid, &code, &jobs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan block sector")
		}
		if i, ok := index[geoid]; ok {
			features[i].Sectors[code] = jobs
		}
	}
	return features, eris.Wrap(srows.Err(), "sqlite: iterate block sectors")
}

// Feature loads a single block of a run.
func (s *SQLiteStore) Feature(ctx context.Context, runID, geoid string) (*join.Feature, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE run_id = ? AND geoid = ?`, runID, geoid)
	f, err := scanFeature(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sector, jobs FROM block_sectors WHERE run_id = ? AND geoid = ?`, runID, geoid)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query block sectors")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var code string
		var jobs int
		if err := rows.Scan(&code, &jobs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan block sector")
		}
		f.Sectors[code] = jobs
	}
	return f, eris.Wrap(rows.Err(), "sqlite: iterate block sectors")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var infoJSON string
	var summaryJSON, errMsg sql.NullString
	var completed sql.NullTime

	err := row.Scan(&r.ID, &infoJSON, &r.Status, &r.Blocks, &r.TotalJobs, &summaryJSON, &errMsg, &r.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(infoJSON), &r.Info); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run info")
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	r.Error = errMsg.String
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanFeature(row scannable) (*join.Feature, error) {
	var f join.Feature
	var wkb []byte
	err := row.Scan(&f.GEOID, &wkb, &f.ALand, &f.AWater, &f.Lat, &f.Lon,
		&f.Total, &f.Dropped, &f.Dominant, &f.Concentration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "block")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan block")
	}
	if f.Geometry, err = tiger.DecodeWKB(wkb); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode block %s", f.GEOID)
	}
	f.Sectors = join.ZeroSectors()
	return &f, nil
}
