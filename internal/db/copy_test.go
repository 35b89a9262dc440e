package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blocksTable = Table{Schema: "lodes", Name: "blocks"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, blocksTable, []string{"geoid", "total_jobs"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, []string{"geoid", "total_jobs"}).WillReturnResult(3)

	rows := [][]any{{"060371011101000", 5}, {"060371011101001", 0}, {"060371011101002", 12}}
	n, err := CopyFrom(context.Background(), mock, blocksTable, []string{"geoid", "total_jobs"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, []string{"geoid"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, blocksTable, []string{"geoid"}, [][]any{{"060371011101000"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO lodes.blocks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_UnqualifiedTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"blocks"}, []string{"geoid"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, Table{Name: "blocks"}, []string{"geoid"}, [][]any{{"x"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_SplitsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"geoid"}
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, cols).WillReturnResult(1)

	rows := [][]any{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	n, err := CopyBatches(context.Background(), mock, blocksTable, cols, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_StopsOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"geoid"}
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"lodes", "blocks"}, cols).WillReturnError(fmt.Errorf("disk full"))

	rows := [][]any{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	n, err := CopyBatches(context.Background(), mock, blocksTable, cols, rows, 2)
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, err.Error(), "batch at row 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CopyBatches(ctx, nil, blocksTable, []string{"geoid"}, [][]any{{"a"}}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTable(t *testing.T) {
	tests := []struct {
		input     string
		sanitized string
	}{
		{"blocks", `"blocks"`},
		{"lodes.sector_summary", `"lodes"."sector_summary"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tbl := ParseTable(tt.input)
			assert.Equal(t, tt.sanitized, tbl.Sanitize())
			assert.Equal(t, tt.input, tbl.String())
		})
	}
}
