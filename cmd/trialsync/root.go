package main

import (
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/trial.report/internal/catalog"
	"github.com/banshee-data/trial.report/internal/config"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/version"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// DefaultDBPath is the catalogue used when --db is not given.
const DefaultDBPath = "trials.db"

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	dbPath     string
	verbose    bool
	trace      bool
	noColor    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "trialsync",
		Short: "Synchronise motion capture, heart rate and behaviour logs per trial",
		Long: `trialsync aligns the sources recorded during a trial onto one
trial-relative time axis:
  - marker trajectories and their cumulative convex-hull volume
  - heart rate, held at each sample until the next
  - behaviour intervals rebuilt from start/stop event logs

Raw tables can be imported into a sqlite catalogue, and every run can
render heatmaps, an event plot and an interactive timeline.`,
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configureLogging(cmd.ErrOrStderr(), opts)
			if opts.noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
				color.NoColor = true
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "pipeline config file (.json, .yaml or .yml); defaults are used when empty")
	flags.StringVar(&opts.dbPath, "db", DefaultDBPath, "sqlite catalogue path")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log recoverable anomalies")
	flags.BoolVar(&opts.trace, "trace", false, "log per-frame telemetry (implies --verbose)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func configureLogging(w io.Writer, opts *options) {
	lw := monitoring.LogWriters{Ops: w}
	if opts.verbose || opts.trace {
		lw.Diag = w
	}
	if opts.trace {
		lw.Trace = w
	}
	monitoring.SetLogWriters(lw)
}

// loadConfig reads --config, or returns the defaults.
func (o *options) loadConfig() (*config.PipelineConfig, error) {
	if o.configPath == "" {
		return config.DefaultPipelineConfig(), nil
	}
	cfg, err := config.LoadPipelineConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openCatalog opens --db and applies pending migrations.
func (o *options) openCatalog() (*catalog.Catalog, error) {
	c, err := catalog.Open(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalogue %s: %w", o.dbPath, err)
	}
	return c, nil
}

// catalogExists reports whether --db names an existing file.
func (o *options) catalogExists() bool {
	_, err := os.Stat(o.dbPath)
	return err == nil
}
