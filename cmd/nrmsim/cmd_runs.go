package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/persistence"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs stored in a SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("db")
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := persistence.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSEED\tTOPOLOGY\tSTATE\tCYCLES\tAGENTS\tSTARTED")
			for _, r := range runs {
				started := r.StartedAt
				if t, err := time.Parse(time.RFC3339Nano, r.StartedAt); err == nil {
					started = humanize.Time(t)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Seed, r.Topology, r.State,
					humanize.Comma(int64(r.Cycles)), humanize.Comma(int64(r.Total)), started)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("db", "data/nrm.db", "SQLite database path")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}
