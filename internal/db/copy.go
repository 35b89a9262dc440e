package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent per COPY when none is given.
const DefaultBatchSize = 50_000

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, table.Identifier(), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// CopyBatches splits rows into batches of batchSize and COPYs each one,
// returning the total number of rows written. It stops at the first error.
func CopyBatches(ctx context.Context, pool Pool, table Table, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "db: copy cancelled")
		}
		end := min(start+batchSize, len(rows))
		n, err := CopyFrom(ctx, pool, table, columns, rows[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "db: batch at row %d", start)
		}
		total += n
		zap.L().Debug("db: copied batch",
			zap.String("table", table.String()),
			zap.Int("start", start),
			zap.Int64("rows", n),
		)
	}
	return total, nil
}
