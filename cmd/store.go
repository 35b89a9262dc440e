package main

import (
	"context"

	"github.com/sells-group/lodes-map/internal/store"
)

// initStore opens and migrates the SQLite cache for the configured county.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
