package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trial.report/internal/catalog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogued trials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.catalogExists() {
				return fmt.Errorf("catalogue %s does not exist; run import first", opts.dbPath)
			}
			c, err := opts.openCatalog()
			if err != nil {
				return err
			}
			defer c.Close()

			infos, err := c.ListTrials(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No trials catalogued")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, color.New(color.Bold).Sprint("TRIAL\tMARKERS\tFRAMES\tEVENTS\tHR\tIMPORTED\tSOURCE"))
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n", info.Name, info.Markers, info.Frames,
					info.Events, info.HeartRate, info.ImportedAt.Format(time.DateTime), info.Source)
			}
			return tw.Flush()
		},
	}
}

func newRunsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "runs <trial>",
		Short: "Show recorded run outcomes for a trial, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCatalog()
			if err != nil {
				return err
			}
			defer c.Close()

			runs, err := c.Runs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs recorded for %s\n", args[0])
				return nil
			}

			red := color.New(color.FgRed)
			green := color.New(color.FgGreen)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, color.New(color.Bold).Sprint("RUN\tFINISHED\tELAPSED\tSTATUS\tERROR"))
			for _, r := range runs {
				status := green.Sprint(r.Status)
				if r.Status != catalog.StatusOK {
					status = red.Sprint(r.Status)
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", r.RunID.String()[:8],
					r.FinishedAt.Format(time.DateTime), r.Elapsed.Round(time.Millisecond), status, red.Sprint(r.Error))
			}
			return tw.Flush()
		},
	}
}
