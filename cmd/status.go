package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lodes-map/internal/render"
	"github.com/sells-group/lodes-map/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "List cached runs, or show one run's sector summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		asJSON, _ := cmd.Flags().GetBool("json")

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "status")
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			formatRunsList(out, []store.Run{*run})
			fmt.Fprintln(out) //nolint:errcheck
			render.PrintSummary(out, run.Summary)
			return nil
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Status: store.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.") //nolint:errcheck
			return nil
		}
		formatRunsList(out, runs)
		return nil
	},
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAREA\tLODES\tSTATUS\tBLOCKS\tJOBS\tCREATED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.CreatedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Info.StateFIPS, r.Info.CountyFIPS, r.Info.LODESYear, r.Status,
			r.Blocks, r.TotalJobs, r.CreatedAt.Format(time.DateTime), dur)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	statusCmd.Flags().Int("limit", 20, "max number of runs to display")
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(statusCmd)
}
