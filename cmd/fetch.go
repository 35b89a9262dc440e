package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lodes-map/internal/fetcher"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/pipeline"
	"github.com/sells-group/lodes-map/internal/tiger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the LODES WAC file and TIGER/Line block shapefile",
	Long: `Downloads the two pipeline inputs into the data directory:

  {data_dir}/{st}_wac_S000_JT00_{year}.csv.gz
  {data_dir}/tl_{geoyear}_{statefips}_tabblock20.zip

Existing non-empty files are kept unless --force is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})
		return fetchInputs(ctx, f, pipeline.ResolveInputs(cfg), force, cmd.OutOrStdout())
	},
}

// fetchInputs downloads both inputs in parallel.
func fetchInputs(ctx context.Context, f fetcher.Fetcher, in pipeline.Inputs, force bool, out io.Writer) error {
	log := zap.L().With(zap.String("command", "fetch"))

	var lodesPath, shpPath string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lodesPath, err = lodes.Download(gctx, f, in.LODESURL, in.LODESPath, force)
		return err
	})
	g.Go(func() error {
		dir := filepath.Dir(in.GeometryPath)
		if force {
			zipPath := filepath.Join(dir, filepath.Base(in.GeometryURL))
			_ = os.Remove(zipPath)
			_ = os.RemoveAll(strings.TrimSuffix(zipPath, filepath.Ext(zipPath)))
		}
		var err error
		shpPath, err = tiger.Download(gctx, f, in.GeometryURL, dir)
		return err
	})
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "fetch")
	}

	log.Info("inputs ready", zap.String("lodes", lodesPath), zap.String("shapefile", shpPath))
	fmt.Fprintln(out, "lodes:", lodesPath)  //nolint:errcheck
	fmt.Fprintln(out, "geometry:", shpPath) //nolint:errcheck
	return nil
}

func init() {
	fetchCmd.Flags().Bool("force", false, "re-download files that already exist")
	rootCmd.AddCommand(fetchCmd)
}
