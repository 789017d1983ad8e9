package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// View selects the projection plane of a heatmap.
type View string

const (
	ViewFront View = "front" // z across, y up
	ViewSide  View = "side"  // x across, y up
	ViewTop   View = "top"   // z across, x up
	ViewFeet  View = "feet"  // top view of the feet markers only
)

// Views lists every heatmap projection in render order.
var Views = []View{ViewFront, ViewSide, ViewTop, ViewFeet}

// DefaultFeetMarkers are the name fragments of foot markers: heel, medial
// and lateral ankle, toe.
var DefaultFeetMarkers = []string{"HEE", "ANM", "ANL", "TOT"}

// DefaultReachBehaviors name the behaviours during which a subject is away
// fetching equipment rather than giving care.
var DefaultReachBehaviors = []string{"Retrieving/Returning"}

// ErrNoFeetMarkers is returned for the feet view of a trial without any
// marker matching the feet patterns.
var ErrNoFeetMarkers = errors.New("no feet markers")

// ParseView parses a view name, case-insensitively.
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Views {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid view %q: must be one of front, side, top, feet", s)
}

// axes returns the horizontal and vertical coordinate of p for the view.
func (v View) axes(p r3.Vec) (float64, float64) {
	switch v {
	case ViewSide:
		return p.X, p.Y
	case ViewTop, ViewFeet:
		return p.Z, p.X
	default:
		return p.Z, p.Y
	}
}

func (v View) labels() (string, string) {
	switch v {
	case ViewSide:
		return "x", "y"
	case ViewTop, ViewFeet:
		return "z", "x"
	default:
		return "z", "y"
	}
}

// histogram is a 2D count grid implementing plotter.GridXYZ.
type histogram struct {
	bins           int
	x0, y0, dx, dy float64
	counts         []float64 // column-major, bins*bins
}

// newHistogram counts points into a bins x bins grid. bounds widen the
// grid extent without being counted.
func newHistogram(points []r3.Vec, view View, bins int, bounds ...r3.Vec) *histogram {
	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, p := range append(append([]r3.Vec(nil), points...), bounds...) {
		x, y := view.axes(p)
		xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
		ymin, ymax = math.Min(ymin, y), math.Max(ymax, y)
	}
	if xmax == xmin {
		xmin, xmax = xmin-0.5, xmax+0.5
	}
	if ymax == ymin {
		ymin, ymax = ymin-0.5, ymax+0.5
	}

	h := &histogram{
		bins:   bins,
		x0:     xmin,
		y0:     ymin,
		dx:     (xmax - xmin) / float64(bins),
		dy:     (ymax - ymin) / float64(bins),
		counts: make([]float64, bins*bins),
	}
	for _, p := range points {
		x, y := view.axes(p)
		h.counts[h.cell(x, y)]++
	}
	return h
}

func (h *histogram) cell(x, y float64) int {
	c := int((x - h.x0) / h.dx)
	r := int((y - h.y0) / h.dy)
	// the maximum lands on the upper edge
	c = min(max(c, 0), h.bins-1)
	r = min(max(r, 0), h.bins-1)
	return c*h.bins + r
}

func (h *histogram) Dims() (c, r int)   { return h.bins, h.bins }
func (h *histogram) Z(c, r int) float64 { return h.counts[c*h.bins+r] }
func (h *histogram) X(c int) float64    { return h.x0 + (float64(c)+0.5)*h.dx }
func (h *histogram) Y(r int) float64    { return h.y0 + (float64(r)+0.5)*h.dy }

// Heatmap renders a 2D histogram of every visible marker position in the
// trial, projected onto the view plane, and returns the written path. The
// feet view keeps only markers matching the feet patterns. The mean table
// outline is drawn over every view.
func (r *Renderer) Heatmap(trial string, store *mocap.Store, view View) (string, error) {
	return r.heatmap(trial, store, view, "")
}

// CareOnlyHeatmap is Heatmap without the frames recorded while any subject
// was retrieving or returning equipment, as named by ReachBehaviors.
func (r *Renderer) CareOnlyHeatmap(trial string, store *mocap.Store, intervals []behavior.Interval, view View) (string, error) {
	var reach []behavior.Interval
	for _, iv := range intervals {
		if r.isReach(iv.Behavior) {
			reach = append(reach, iv)
		}
	}
	care, err := store.FilterFrames(func(t float64) bool {
		for _, iv := range reach {
			if iv.Contains(t) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return "", err
	}
	monitoring.Diagf("render: %s care-only %s view keeps %d of %d frames", trial, view, care.FrameCount(), store.FrameCount())
	return r.heatmap(trial, care, view, "care")
}

func (r *Renderer) heatmap(trial string, store *mocap.Store, view View, variant string) (string, error) {
	outline := tableOutline(store, view)

	src := store
	if view == ViewFeet {
		feet, err := store.Filter(r.isFoot)
		if err != nil {
			return "", fmt.Errorf("%s: %w", trial, ErrNoFeetMarkers)
		}
		src = feet
	}
	points := src.AllPoints()
	if len(points) == 0 {
		return "", trialerr.New(trialerr.ComponentTrajectory, "", trialerr.ErrEmptyTrial,
			"no visible marker positions to plot")
	}
	h := newHistogram(points, view, r.bins(), outline...)

	hm := plotter.NewHeatMap(h, palette.Heat(12, 1))
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	title := fmt.Sprintf("%s: %s view (%d positions)", trial, view, len(points))
	if variant != "" {
		title = fmt.Sprintf("%s: %s view, %s only (%d positions)", trial, view, variant, len(points))
	}
	p.Title.Text = title
	xl, yl := view.labels()
	p.X.Label.Text = fmt.Sprintf("%s (%s)", xl, r.LengthUnit)
	p.Y.Label.Text = fmt.Sprintf("%s (%s)", yl, r.LengthUnit)
	p.Add(hm)
	if len(outline) > 1 {
		line, err := outlineLine(outline, view)
		if err != nil {
			return "", err
		}
		p.Add(line)
	}

	suffix := fmt.Sprintf("heatmap_%s.png", view)
	if variant != "" {
		suffix = fmt.Sprintf("heatmap_%s_%s.png", view, variant)
	}
	path, err := r.path(trial, suffix)
	if err != nil {
		return "", err
	}
	if err := r.savePlot(p, path); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Renderer) isFoot(marker string) bool {
	patterns := r.FeetMarkers
	if patterns == nil {
		patterns = DefaultFeetMarkers
	}
	m := strings.ToUpper(marker)
	for _, f := range patterns {
		if strings.Contains(m, strings.ToUpper(f)) {
			return true
		}
	}
	return false
}

func (r *Renderer) isReach(name string) bool {
	names := r.ReachBehaviors
	if names == nil {
		names = DefaultReachBehaviors
	}
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return true
		}
	}
	return false
}

func isTableMarker(marker string) bool {
	return strings.HasPrefix(strings.ToUpper(marker), "TAB")
}

// tableOutline returns the mean position of each table marker, ordered
// around their centroid in the view plane. The table may be nudged during a
// trial, so its outline is the average over every visible frame.
func tableOutline(store *mocap.Store, view View) []r3.Vec {
	var means []r3.Vec
	for _, m := range store.Markers() {
		if !isTableMarker(m) {
			continue
		}
		var sum r3.Vec
		n := 0
		for f := 0; f < store.FrameCount(); f++ {
			if p, ok := store.Position(m, f); ok {
				sum = r3.Add(sum, p)
				n++
			}
		}
		if n > 0 {
			means = append(means, r3.Scale(1/float64(n), sum))
		}
	}
	if len(means) < 2 {
		return means
	}

	var cx, cy float64
	for _, p := range means {
		x, y := view.axes(p)
		cx += x
		cy += y
	}
	cx /= float64(len(means))
	cy /= float64(len(means))
	angle := func(p r3.Vec) float64 {
		x, y := view.axes(p)
		return math.Atan2(y-cy, x-cx)
	}
	sort.SliceStable(means, func(a, b int) bool { return angle(means[a]) < angle(means[b]) })
	return means
}

// outlineLine closes the outline into a polygon drawn as a line.
func outlineLine(outline []r3.Vec, view View) (*plotter.Line, error) {
	pts := make(plotter.XYs, 0, len(outline)+1)
	for _, p := range outline {
		x, y := view.axes(p)
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	pts = append(pts, pts[0])
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create table outline: %w", err)
	}
	line.Color = color.Black
	line.Width = vg.Points(2)
	return line, nil
}
