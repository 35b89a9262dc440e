package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/config"
	"github.com/sells-group/lodes-map/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lodes-map",
	Short: "Block-level employment map from LEHD LODES",
	Long: `Loads a LODES Workplace Area Characteristics file and TIGER/Line 2020 block
geometry, aggregates jobs by NAICS sector per census block, and writes an
interactive map, a sector summary table and a cached processed dataset.

Run with no arguments to execute the whole pipeline using config.yaml and
LODES_* environment variables.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := pipeline.New(cfg, st, cmd.OutOrStdout()).Run(ctx)
		if err != nil {
			return err
		}

		for _, path := range res.Outputs {
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path) //nolint:errcheck
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("lodes-map failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err) //nolint:errcheck
		os.Exit(1)
	}
}
