package main

import (
	"fmt"

	"github.com/banshee-data/trial.report/internal/loader"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <data-dir> [trial...]",
		Short: "Import raw trial tables into the catalogue",
		Long: `Import reads the tracked, BORIS and heart-rate files of each trial
from a data directory and stores them in the catalogue. Re-importing a trial
replaces it. With no trial names, every trial with tracked data is imported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			dir := loader.NewDir(args[0])
			dir.HeartRatePeriod = cfg.GetHeartRatePeriod()

			names := args[1:]
			if len(names) == 0 {
				if names, err = dir.Trials(); err != nil {
					return fmt.Errorf("list trials in %s: %w", args[0], err)
				}
			}
			if len(names) == 0 {
				return fmt.Errorf("no trials found in %s", args[0])
			}

			c, err := opts.openCatalog()
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			var failed int
			for _, name := range names {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				tables, err := dir.Load(cmd.Context(), name)
				if err == nil {
					err = c.ImportTrial(cmd.Context(), name, dir.Root, tables)
				}
				if err != nil {
					failed++
					red.Fprintf(out, "✗ %s: %v\n", name, err)
					continue
				}
				green.Fprintf(out, "✓ %s", name)
				fmt.Fprintf(out, " (%d markers, %d frames, %d events, %d heart-rate samples)\n",
					len(tables.Markers), len(tables.Frames), len(tables.Events), len(tables.HeartRate))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d trials failed to import", failed, len(names))
			}
			return nil
		},
	}
}
