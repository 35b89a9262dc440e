// Package store caches processed block datasets in SQLite, one snapshot per
// pipeline run.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
)

// ErrNotFound is returned when a run or block does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus tracks a cached run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	// RunStatusSuperseded marks a completed run whose blocks were pruned
	// after a newer run completed.
	RunStatusSuperseded RunStatus = "superseded"
)

// RunInfo describes the inputs of a run.
type RunInfo struct {
	StateFIPS    string `json:"state_fips"`
	CountyFIPS   string `json:"county_fips"`
	LODESYear    int    `json:"lodes_year"`
	GeometryYear int    `json:"geometry_year"`
	Policy       string `json:"policy"`
}

// Run is one pipeline execution recorded in the cache.
type Run struct {
	ID          string                 `json:"id"`
	Info        RunInfo                `json:"info"`
	Status      RunStatus              `json:"status"`
	Blocks      int                    `json:"blocks"`
	TotalJobs   int                    `json:"total_jobs"`
	Summary     []aggregate.SummaryRow `json:"summary,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for processed block data.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, info RunInfo) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary []aggregate.SummaryRow, totalJobs int) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Blocks
	SaveFeatures(ctx context.Context, runID string, features []join.Feature) error
	Features(ctx context.Context, runID string) ([]join.Feature, error)
	Feature(ctx context.Context, runID, geoid string) (*join.Feature, error)
	PruneRuns(ctx context.Context, keepRunID string) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
