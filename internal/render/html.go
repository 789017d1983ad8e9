package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/banshee-data/trial.report/internal/timeline"
	"github.com/banshee-data/trial.report/internal/units"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// maxHTMLPoints caps the axis points sent to the browser per series.
const maxHTMLPoints = 5000

// TimelineHTML writes an interactive page of the aligned bundle to w: one
// line chart per scalar source and a scatter of active behaviour channels.
func (r *Renderer) TimelineHTML(trial string, b *timeline.Bundle, w io.Writer) error {
	if b == nil || b.Len() == 0 {
		return fmt.Errorf("timeline page for %s: empty bundle", trial)
	}

	// Downsample by stride to stay within maxHTMLPoints
	stride := 1
	if b.Len() > maxHTMLPoints {
		stride = int(math.Ceil(float64(b.Len()) / float64(maxHTMLPoints)))
	}

	page := components.NewPage()
	page.PageTitle = trial
	volScale := units.ConvertVolume(1, r.LengthUnit, r.VolumeUnit)
	for _, name := range b.Scalars() {
		base, subject := timeline.SplitSourceName(name)
		scale, label := 1.0, name
		switch base {
		case timeline.NameVolume:
			scale = volScale
			label = fmt.Sprintf("volume (%s)", units.VolumeLabel(r.VolumeUnit))
		case timeline.NameHeartRate:
			label = "heart rate (bpm)"
		case timeline.NameTrajectory:
			label = "visible markers"
		}
		if subject != "" {
			label = subject + " " + label
		}
		page.AddCharts(scalarLine(trial, b, name, label, scale, stride))
	}
	if len(b.Channels()) > 0 {
		page.AddCharts(behaviourScatter(trial, b, stride))
	}
	return page.Render(w)
}

// WriteTimelineHTML renders the timeline page into the output directory.
func (r *Renderer) WriteTimelineHTML(trial string, b *timeline.Bundle) (string, error) {
	path, err := r.path(trial, "timeline.html")
	if err != nil {
		return "", err
	}
	f, err := r.create(path)
	if err != nil {
		return "", err
	}
	if err := r.TimelineHTML(trial, b, f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func scalarLine(trial string, b *timeline.Bundle, name, label string, scale float64, stride int) *charts.Line {
	values, _ := b.Scalar(name)
	x := make([]string, 0, len(values)/stride+1)
	y := make([]opts.LineData, 0, len(values)/stride+1)
	for i := 0; i < len(values); i += stride {
		x = append(x, strconv.FormatFloat(b.Axis[i], 'f', 2, 64))
		v := values[i]
		if v.Status == timeline.StatusNotStarted || math.IsNaN(v.Value) {
			// echarts leaves a gap for "-"
			y = append(y, opts.LineData{Value: "-"})
			continue
		}
		y = append(y, opts.LineData{Value: v.Value * scale})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: trial, Width: "1200px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: label, Subtitle: fmt.Sprintf("trial=%s points=%d stride=%d", trial, len(y), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: label}),
	)
	line.SetXAxis(x).AddSeries(name, y)
	return line
}

func behaviourScatter(trial string, b *timeline.Bundle, stride int) *charts.Scatter {
	keys := b.Channels()
	colors := channelColors(len(keys))

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: trial, Width: "1200px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "behaviour", Subtitle: fmt.Sprintf("trial=%s channels=%d", trial, len(keys))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: b.Start, Max: b.End, Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -1, Max: len(keys)}),
	)
	for k, key := range keys {
		pts := make([]opts.ScatterData, 0)
		for i := 0; i < b.Len(); i += stride {
			if t := b.Axis[i]; b.ActiveAt(key, t) {
				pts = append(pts, opts.ScatterData{Value: []interface{}{t, k}})
			}
		}
		scatter.AddSeries(key.String(), pts,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[k])}),
		)
	}
	return scatter
}
