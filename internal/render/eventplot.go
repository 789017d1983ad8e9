package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/timeline"
	"github.com/banshee-data/trial.report/internal/units"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const barHalfHeight = 0.35

var (
	heartRateColor = color.RGBA{R: 200, G: 30, B: 45, A: 255}
	volumeColor    = color.RGBA{R: 30, G: 90, B: 180, A: 255}
	volumeFill     = color.RGBA{R: 30, G: 90, B: 180, A: 80}
)

// EventPlot renders the aligned bundle as stacked panels sharing the time
// axis: behaviour bars, heart rate and cumulative volume. A bundle with one
// volume source per caregiver gets one block of panels per caregiver, each
// holding only that subject's behaviour and heart rate.
func (r *Renderer) EventPlot(trial string, b *timeline.Bundle) (string, error) {
	if b == nil || b.Len() == 0 {
		return "", fmt.Errorf("event plot for %s: empty bundle", trial)
	}

	var plots [][]*plot.Plot
	volumes := b.ScalarsOf(timeline.NameVolume)
	if len(volumes) < 2 {
		block, err := r.eventBlock(b, "", b.ScalarsOf(timeline.NameHeartRate), volumes)
		if err != nil {
			return "", err
		}
		block[0].Title.Text = trial
		plots = append(plots, wrap(block)...)
	} else {
		for _, vol := range volumes {
			_, subject := timeline.SplitSourceName(vol)
			var hr []string
			if name := timeline.SourceName(timeline.NameHeartRate, subject); hasScalar(b, name) {
				hr = []string{name}
			}
			block, err := r.eventBlock(b, subject, hr, []string{vol})
			if err != nil {
				return "", err
			}
			block[0].Title.Text = fmt.Sprintf("%s: %s", trial, subject)
			plots = append(plots, wrap(block)...)
		}
	}
	plots[len(plots)-1][0].X.Label.Text = "Time (s)"
	for _, row := range plots {
		row[0].X.Min, row[0].X.Max = b.Start, b.End
	}

	img := vgimg.New(plotWidth, vg.Length(len(plots))*plotHeight/2)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Millimeter, PadTop: vg.Millimeter, PadBottom: vg.Millimeter}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	path, err := r.path(trial, "events.png")
	if err != nil {
		return "", err
	}
	if err := r.write(path, vgimg.PngCanvas{Canvas: img}); err != nil {
		return "", err
	}
	return path, nil
}

// eventBlock builds the behaviour, heart-rate and volume panels for one
// subject, or for every subject when subject is empty.
func (r *Renderer) eventBlock(b *timeline.Bundle, subject string, hr, vol []string) ([]*plot.Plot, error) {
	bars, err := behaviourPanel(b, subject)
	if err != nil {
		return nil, err
	}
	hrPanel, err := scalarPanel(b, hr, "Heart rate (bpm)", heartRateColor, nil, 1)
	if err != nil {
		return nil, err
	}
	scale := units.ConvertVolume(1, r.LengthUnit, r.VolumeUnit)
	volPanel, err := scalarPanel(b, vol,
		fmt.Sprintf("Cumulative volume (%s)", units.VolumeLabel(r.VolumeUnit)),
		volumeColor, volumeFill, scale)
	if err != nil {
		return nil, err
	}
	return []*plot.Plot{bars, hrPanel, volPanel}, nil
}

func wrap(block []*plot.Plot) [][]*plot.Plot {
	rows := make([][]*plot.Plot, len(block))
	for i, p := range block {
		rows[i] = []*plot.Plot{p}
	}
	return rows
}

func hasScalar(b *timeline.Bundle, name string) bool {
	_, ok := b.Scalar(name)
	return ok
}

// behaviourPanel draws one row of bars per channel, restricted to subject
// unless it is empty.
func behaviourPanel(b *timeline.Bundle, subject string) (*plot.Plot, error) {
	p := plot.New()
	var keys []behavior.Key
	for _, key := range b.Channels() {
		if subject == "" || key.Subject == subject {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		p.Y.Label.Text = "No behaviour"
		return p, nil
	}

	colors := channelColors(len(keys))
	labels := make([]string, len(keys))
	for k, key := range keys {
		labels[k] = key.String()
		y := float64(k)
		for _, iv := range b.Channel(key) {
			rect := plotter.XYs{
				{X: iv.Start, Y: y - barHalfHeight},
				{X: iv.End, Y: y - barHalfHeight},
				{X: iv.End, Y: y + barHalfHeight},
				{X: iv.Start, Y: y + barHalfHeight},
			}
			poly, err := plotter.NewPolygon(rect)
			if err != nil {
				return nil, fmt.Errorf("failed to create bar for %s: %w", key, err)
			}
			poly.Color = colors[k]
			poly.LineStyle.Width = 0
			p.Add(poly)
		}
	}
	p.NominalY(labels...)
	return p, nil
}

// scalarPanel draws the step-held projection of each named scalar source,
// skipping axis points before a source starts. Several sources share the
// panel with one colour each and a legend.
func scalarPanel(b *timeline.Bundle, names []string, label string, c, fill color.Color, scale float64) (*plot.Plot, error) {
	p := plot.New()
	p.Y.Label.Text = label

	colors := []color.Color{c}
	if len(names) > 1 {
		colors = channelColors(len(names))
		fill = nil
	}
	for k, name := range names {
		values, ok := b.Scalar(name)
		if !ok {
			continue
		}
		pts := make(plotter.XYs, 0, len(values))
		for i, v := range values {
			if v.Status == timeline.StatusNotStarted || math.IsNaN(v.Value) {
				continue
			}
			pts = append(pts, plotter.XY{X: b.Axis[i], Y: v.Value * scale})
		}
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s line: %w", name, err)
		}
		line.StepStyle = plotter.PostStep
		line.Width = vg.Points(1)
		line.Color = colors[k]
		if fill != nil {
			line.FillColor = fill
		}
		p.Add(line)
		if len(names) > 1 {
			_, subject := timeline.SplitSourceName(name)
			p.Legend.Add(subject, line)
		}
	}
	return p, nil
}
