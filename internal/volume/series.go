// Package volume derives a cumulative convex-volume series from a trial's
// marker trajectories. Each evaluated frame contributes the volume of the
// convex hull around its visible markers; frames that cannot enclose a volume
// contribute nothing and are flagged rather than failing the trial.
package volume

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/mocap/hull"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mode selects how Cumulative accumulates.
type Mode string

const (
	// ModeRunningSum adds each frame's hull volume to the previous total.
	ModeRunningSum Mode = "running_sum"
	// ModeSwept takes the hull of every valid point seen since the first
	// frame, the volume of space the subject has occupied so far.
	ModeSwept Mode = "swept"
)

// Config holds volume computation parameters.
type Config struct {
	Epsilon float64 // coplanarity tolerance relative to the frame's bounding box diagonal
	Stride  int     // frames between evaluations
	Mode    Mode
}

// DefaultConfig returns the production-default configuration.
func DefaultConfig() Config {
	return Config{
		Epsilon: hull.DefaultEpsilon,
		Stride:  1,
		Mode:    ModeRunningSum,
	}
}

// Sample is the volume state at one evaluated frame.
type Sample struct {
	Frame         int
	Time          float64
	Instantaneous float64
	Cumulative    float64
	Points        int  // visible markers at this frame
	Degenerate    bool // fewer than four non-coplanar points
}

// Series is an ordered, immutable sequence of volume samples.
type Series struct {
	samples    []Sample
	degenerate int
}

// Compute evaluates every Stride-th frame of store. It fails with
// ErrInsufficientGeometry only when every evaluated frame is degenerate.
func Compute(store *mocap.Store, cfg Config) (*Series, error) {
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRunningSum
	}
	if cfg.Mode != ModeRunningSum && cfg.Mode != ModeSwept {
		return nil, fmt.Errorf("unknown volume mode %q", cfg.Mode)
	}

	n := store.FrameCount()
	s := &Series{samples: make([]Sample, 0, (n+cfg.Stride-1)/cfg.Stride)}

	var cumulative float64
	var swept []r3.Vec // hull vertices of everything seen so far

	for f := 0; f < n; f += cfg.Stride {
		t, err := store.FrameTime(f)
		if err != nil {
			return nil, err
		}
		pts := store.PointsAt(f)
		sample := Sample{Frame: f, Time: t, Points: len(pts)}

		h, err := hull.New(pts, cfg.Epsilon)
		switch {
		case err != nil:
			sample.Degenerate = true
			s.degenerate++
			monitoring.Diagf("volume: frame %d (t=%.3fs) degenerate with %d visible markers, no new volume", f, t, len(pts))
		case cfg.Mode == ModeSwept:
			sample.Instantaneous = h.Volume()
			candidates := append(swept, pts...)
			if sh, err := hull.New(candidates, cfg.Epsilon); err == nil {
				swept = vertices(candidates, sh)
				if v := sh.Volume(); v > cumulative {
					cumulative = v
				}
			}
		default:
			sample.Instantaneous = h.Volume()
			cumulative += sample.Instantaneous
		}

		sample.Cumulative = cumulative
		monitoring.Tracef("volume: frame %d t=%.3fs points=%d inst=%.6f cum=%.6f", f, t, len(pts), sample.Instantaneous, cumulative)
		s.samples = append(s.samples, sample)
	}

	if s.degenerate == len(s.samples) {
		return nil, trialerr.New(trialerr.ComponentVolume, s.frameRange(), trialerr.ErrInsufficientGeometry,
			"all %d evaluated frames are degenerate", len(s.samples))
	}
	if s.degenerate > 0 {
		monitoring.Diagf("volume: %d of %d frames degenerate", s.degenerate, len(s.samples))
	}
	return s, nil
}

// frameRange names the evaluated frames for error records.
func (s *Series) frameRange() string {
	if len(s.samples) == 0 {
		return ""
	}
	return fmt.Sprintf("frames %d-%d", s.samples[0].Frame, s.samples[len(s.samples)-1].Frame)
}

func vertices(points []r3.Vec, h *hull.Hull) []r3.Vec {
	idx := h.Vertices()
	sort.Ints(idx)
	out := make([]r3.Vec, len(idx))
	for i, v := range idx {
		out[i] = points[v]
	}
	return out
}

// Samples returns a copy of the samples in frame order.
func (s *Series) Samples() []Sample { return append([]Sample(nil), s.samples...) }

// Len returns the number of evaluated frames.
func (s *Series) Len() int { return len(s.samples) }

// DegenerateFrames returns how many evaluated frames contributed no volume.
func (s *Series) DegenerateFrames() int { return s.degenerate }

// TimeRange returns the first and last evaluated frame times.
func (s *Series) TimeRange() (start, end float64) {
	if len(s.samples) == 0 {
		return 0, 0
	}
	return s.samples[0].Time, s.samples[len(s.samples)-1].Time
}

// Final returns the cumulative volume at the last evaluated frame.
func (s *Series) Final() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	return s.samples[len(s.samples)-1].Cumulative
}

// AtFrame returns the sample computed for frame, if that frame was evaluated.
func (s *Series) AtFrame(frame int) (Sample, bool) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Frame >= frame })
	if i < len(s.samples) && s.samples[i].Frame == frame {
		return s.samples[i], true
	}
	return Sample{}, false
}

// ValueAt returns the cumulative volume at time t, holding the last computed
// value between frames. Times before the first sample are out of range.
func (s *Series) ValueAt(t float64) (float64, error) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Time > t })
	if i == 0 {
		return 0, trialerr.New(trialerr.ComponentVolume, "t="+strconv.FormatFloat(t, 'f', -1, 64), trialerr.ErrOutOfRange,
			"before first volume sample")
	}
	return s.samples[i-1].Cumulative, nil
}
