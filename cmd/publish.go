package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lodes-map/internal/db"
	"github.com/sells-group/lodes-map/internal/publish"
	"github.com/sells-group/lodes-map/internal/store"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Copy a cached run into PostGIS",
	Long: `Copies the latest completed run (or --run) from the SQLite cache into
PostGIS tables under publish.schema: blocks with MultiPolygon geometry,
per-block sector counts and the sector summary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var run *store.Run
		if id, _ := cmd.Flags().GetString("run"); id != "" {
			run, err = st.GetRun(ctx, id)
		} else {
			run, err = st.LatestRun(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "publish: find run")
		}
		features, err := st.Features(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "publish: read cached features")
		}

		pool, err := db.Connect(ctx, cfg.Publish.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := publish.Migrate(ctx, pool, cfg.Publish.Schema); err != nil {
			return err
		}
		res, err := publish.Publish(ctx, pool, run, features, publish.Options{
			Schema:    cfg.Publish.Schema,
			BatchSize: cfg.Publish.BatchSize,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "published run %s: %d blocks, %d sector rows, %d summary rows in %s\n", //nolint:errcheck
			res.RunID, res.Blocks, res.BlockSectors, res.SummaryRows, res.Duration)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("run", "", "run id to publish (default: latest completed run)")
	rootCmd.AddCommand(publishCmd)
}
