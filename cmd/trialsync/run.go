package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/trial.report/internal/catalog"
	"github.com/banshee-data/trial.report/internal/config"
	"github.com/banshee-data/trial.report/internal/loader"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/render"
	"github.com/banshee-data/trial.report/internal/trial"
	"github.com/banshee-data/trial.report/internal/units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type runFlags struct {
	dataDir string
	outDir  string
	workers int
	record  bool
}

func newRunCommand(opts *options) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [trial...]",
		Short: "Derive and align trials, optionally rendering charts",
		Long: `Run loads each trial, computes its cumulative volume series, rebuilds
behaviour intervals and aligns every source onto one time axis. Trials run
concurrently and a failing trial never stops the others.

Tables come from --data when given, otherwise from the catalogue. Outcomes
are recorded in the catalogue when it is the source or --record is set.
With no trial names, every available trial runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrials(cmd, opts, f, args)
		},
	}
	cmd.Flags().StringVar(&f.dataDir, "data", "", "data directory to load trials from instead of the catalogue")
	cmd.Flags().StringVar(&f.outDir, "out", "", "directory for rendered charts; nothing is rendered when empty")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent trials (default from config)")
	cmd.Flags().BoolVar(&f.record, "record", false, "record outcomes in the catalogue when loading from --data")
	return cmd
}

func runTrials(cmd *cobra.Command, opts *options, f *runFlags, names []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var (
		cat  *catalog.Catalog
		load func(ctx context.Context, name string) (*trial.Tables, error)
	)
	if f.dataDir == "" || f.record {
		if cat, err = opts.openCatalog(); err != nil {
			return err
		}
		defer cat.Close()
	}
	if f.dataDir != "" {
		dir := loader.NewDir(f.dataDir)
		dir.HeartRatePeriod = cfg.GetHeartRatePeriod()
		dir.Caregivers = cfg.GetCaregivers()
		load = dir.Load
		if len(names) == 0 {
			if names, err = dir.Trials(); err != nil {
				return fmt.Errorf("list trials in %s: %w", f.dataDir, err)
			}
		}
	} else {
		load = cat.LoadTables
		if len(names) == 0 {
			infos, err := cat.ListTrials(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				names = append(names, info.Name)
			}
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no trials to run")
	}

	jobs := make([]trial.Job, len(names))
	for i, name := range names {
		jobs[i] = trial.Job{Name: name, Load: func(ctx context.Context) (*trial.Tables, error) {
			return load(ctx, name)
		}}
	}

	p := trial.NewPipeline(cfg)
	p.BodyMarkers = loader.BodyMarkers

	workers := f.workers
	if workers < 1 {
		workers = cfg.GetWorkers()
	}
	b := trial.NewBatch(p, workers)

	var r *render.Renderer
	if f.outDir != "" {
		r = newRenderer(f.outDir, cfg)
	}
	b.OnOutcome = func(o trial.Outcome) {
		if cat != nil {
			if err := cat.RecordOutcome(context.WithoutCancel(ctx), b.RunID, o); err != nil {
				monitoring.Opsf("trial %s: failed to record outcome: %v", o.Name, err)
			}
		}
		if r != nil && o.Err == nil {
			renderTrial(r, o.Result, cfg.GetCareOnly())
		}
	}

	outcomes := b.Run(ctx, jobs)
	printOutcomes(cmd.OutOrStdout(), cfg, outcomes)

	ok, failed, skipped := trial.Summarize(outcomes)
	if failed > 0 || skipped > 0 {
		return fmt.Errorf("%d of %d trials did not complete", failed+skipped, ok+failed+skipped)
	}
	return nil
}

func newRenderer(dir string, cfg *config.PipelineConfig) *render.Renderer {
	r := render.New(dir)
	r.Bins = cfg.GetHeatmapBins()
	r.LengthUnit = cfg.GetLengthUnit()
	r.VolumeUnit = cfg.GetVolumeUnit()
	r.FeetMarkers = cfg.GetFeetMarkers()
	r.ReachBehaviors = cfg.GetReachBehaviors()
	return r
}

// renderTrial writes every chart for one result. Failures are logged and
// do not fail the trial.
func renderTrial(r *render.Renderer, res *trial.Result, careOnly bool) {
	name := res.Trial.Name
	heatmapErr := func(view render.View, err error) {
		if errors.Is(err, render.ErrNoFeetMarkers) {
			monitoring.Diagf("trial %s: skipping %s heatmap: %v", name, view, err)
			return
		}
		monitoring.Opsf("trial %s: %s heatmap: %v", name, view, err)
	}
	for _, view := range render.Views {
		if _, err := r.Heatmap(name, res.Trial.Store, view); err != nil {
			heatmapErr(view, err)
		}
		if !careOnly {
			continue
		}
		if _, err := r.CareOnlyHeatmap(name, res.Trial.Store, res.Trial.Behavior.Intervals, view); err != nil {
			heatmapErr(view, err)
		}
	}
	if _, err := r.EventPlot(name, res.Bundle); err != nil {
		monitoring.Opsf("trial %s: event plot: %v", name, err)
	}
	if _, err := r.WriteTimelineHTML(name, res.Bundle); err != nil {
		monitoring.Opsf("trial %s: timeline page: %v", name, err)
	}
}

func printOutcomes(w io.Writer, cfg *config.PipelineConfig, outcomes []trial.Outcome) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	bold := color.New(color.Bold)

	volLabel := units.VolumeLabel(cfg.GetVolumeUnit())
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			yellow.Fprintf(w, "- %s: skipped\n", o.Name)
		case o.Err != nil:
			red.Fprintf(w, "✗ %s\n", o.Err)
		default:
			res := o.Result
			vols := make([]string, len(res.Trial.Volumes))
			for i, v := range res.Trial.Volumes {
				vol := units.ConvertVolume(v.Final(), cfg.GetLengthUnit(), cfg.GetVolumeUnit())
				vols[i] = fmt.Sprintf("volume %.3f %s", vol, volLabel)
				if v.Subject != "" {
					vols[i] = fmt.Sprintf("%s volume %.3f %s", v.Subject, vol, volLabel)
				}
			}
			green.Fprintf(w, "✓ %s", o.Name)
			fmt.Fprintf(w, ": %d points @ %gs, %s, %d degenerate frames, %d anomalies (%v)\n",
				res.Bundle.Len(), res.Bundle.Resolution, strings.Join(vols, ", "),
				res.DegenerateFrames, res.Anomalies, res.Elapsed.Round(time.Millisecond))
		}
	}

	ok, failed, skipped := trial.Summarize(outcomes)
	bold.Fprintf(w, "\n%d ok, %d failed, %d skipped\n", ok, failed, skipped)
}
