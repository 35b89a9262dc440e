// Package publish copies a cached pipeline run into PostGIS.
package publish

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/db"
)

// DefaultSchema holds the published tables when none is configured.
const DefaultSchema = "lodes"

// migrations returns the DDL for a schema, in execution order.
func migrations(schema string) []string {
	s := pgx.Identifier{schema}.Sanitize()
	return []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.runs (
			run_id        text PRIMARY KEY,
			state_fips    text NOT NULL,
			county_fips   text NOT NULL,
			lodes_year    integer NOT NULL,
			geometry_year integer NOT NULL,
			policy        text NOT NULL,
			blocks        integer NOT NULL,
			total_jobs    integer NOT NULL,
			published_at  timestamptz NOT NULL DEFAULT now()
		)`, s),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.blocks (
			geoid         text PRIMARY KEY,
			run_id        text NOT NULL,
			total_jobs    integer NOT NULL,
			dropped       integer NOT NULL DEFAULT 0,
			dominant      text,
			concentration double precision,
			aland         bigint,
			awater        bigint,
			lat           double precision,
			lon           double precision,
			the_geom      geometry(MultiPolygon, 4326)
		)`, s),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.block_sectors (
			geoid  text NOT NULL,
			naics  text NOT NULL,
			jobs   integer NOT NULL,
			PRIMARY KEY (geoid, naics)
		)`, s),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sector_summary (
			run_id          text NOT NULL,
			naics           text NOT NULL,
			sector          text NOT NULL,
			total_jobs      integer NOT NULL,
			block_count     integer NOT NULL,
			dominant_blocks integer NOT NULL,
			pct_of_total    double precision NOT NULL,
			PRIMARY KEY (run_id, naics)
		)`, s),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s.blocks USING GIST (the_geom)",
			pgx.Identifier{"idx_" + schema + "_blocks_the_geom"}.Sanitize(), s),
	}
}

// Migrate creates the PostGIS schema and tables if they do not exist.
func Migrate(ctx context.Context, pool db.Pool, schema string) error {
	if schema == "" {
		schema = DefaultSchema
	}
	for _, stmt := range migrations(schema) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "publish: migrate schema %s", schema)
		}
	}
	zap.L().Info("publish: schema ready", zap.String("schema", schema))
	return nil
}
