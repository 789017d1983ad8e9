// Package render draws trial charts: spatial marker heatmaps and aligned
// event plots as PNG via gonum/plot, and an interactive timeline page via
// go-echarts.
package render

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/trial.report/internal/fsutil"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/security"
	"github.com/banshee-data/trial.report/internal/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

const (
	// DefaultBins is the heatmap histogram resolution per axis.
	DefaultBins = 64

	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// Renderer writes chart files for one or more trials under Dir.
type Renderer struct {
	FS  fsutil.FileSystem
	Dir string

	Bins       int    // heatmap bins per axis
	LengthUnit string // unit of marker coordinates
	VolumeUnit string // reporting unit for volume panels

	FeetMarkers    []string // name fragments of foot markers; nil means DefaultFeetMarkers
	ReachBehaviors []string // behaviours excluded from care-only heatmaps; nil means DefaultReachBehaviors
}

// New returns a Renderer writing to dir on the real filesystem.
func New(dir string) *Renderer {
	return &Renderer{
		FS:         fsutil.OSFileSystem{},
		Dir:        dir,
		Bins:       DefaultBins,
		LengthUnit: units.MM,
		VolumeUnit: units.Litre,
	}
}

func (r *Renderer) bins() int {
	if r.Bins < 2 {
		return DefaultBins
	}
	return r.Bins
}

// path returns the output path for a trial chart, keeping it inside Dir.
func (r *Renderer) path(trial, suffix string) (string, error) {
	name := security.SanitizeFilename(trial) + "_" + suffix
	return security.JoinWithin(r.Dir, name)
}

// create opens an output file, creating Dir first.
func (r *Renderer) create(path string) (io.WriteCloser, error) {
	if err := r.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return r.FS.Create(path)
}

// savePlot encodes p as PNG into path.
func (r *Renderer) savePlot(p *plot.Plot, path string) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to encode plot: %w", err)
	}
	return r.write(path, wt)
}

func (r *Renderer) write(path string, wt io.WriterTo) (err error) {
	f, err := r.create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err = wt.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	monitoring.Diagf("render: wrote %s", path)
	return nil
}
