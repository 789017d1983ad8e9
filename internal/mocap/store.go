package mocap

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/spatial/r3"
)

// Frame is one sample of the tracker: a trial-relative timestamp in seconds
// and the positions of whichever markers were visible. A marker that is
// absent from Positions, or has a NaN coordinate, is treated as missing.
type Frame struct {
	Time      float64
	Positions map[string]r3.Vec
}

// Store is an immutable per-frame, per-marker position table.
type Store struct {
	markers []string
	index   map[string]int
	times   []float64
	pos     [][]r3.Vec // [frame][marker]
	valid   [][]bool   // [frame][marker]
}

// Load builds a Store for the given marker names and frames. Frame times must
// be finite and strictly increasing, and every position must name a known
// marker.
func Load(markers []string, frames []Frame) (*Store, error) {
	if len(markers) == 0 {
		return nil, trialerr.New(trialerr.ComponentTrajectory, "", trialerr.ErrMalformedTrajectoryData, "no markers")
	}
	if len(frames) == 0 {
		return nil, trialerr.New(trialerr.ComponentTrajectory, "", trialerr.ErrMalformedTrajectoryData, "no frames")
	}

	s := &Store{
		markers: append([]string(nil), markers...),
		index:   make(map[string]int, len(markers)),
		times:   make([]float64, len(frames)),
		pos:     make([][]r3.Vec, len(frames)),
		valid:   make([][]bool, len(frames)),
	}
	sort.Strings(s.markers)
	for i, m := range s.markers {
		if _, dup := s.index[m]; dup {
			return nil, trialerr.New(trialerr.ComponentTrajectory, m, trialerr.ErrMalformedTrajectoryData, "duplicate marker")
		}
		s.index[m] = i
	}

	for f, fr := range frames {
		rec := frameRecord(f)
		if math.IsNaN(fr.Time) || math.IsInf(fr.Time, 0) {
			return nil, trialerr.New(trialerr.ComponentTrajectory, rec, trialerr.ErrMalformedTrajectoryData, "non-finite timestamp")
		}
		if f > 0 && fr.Time <= s.times[f-1] {
			return nil, trialerr.New(trialerr.ComponentTrajectory, rec, trialerr.ErrMalformedTrajectoryData,
				"timestamp %.6f does not follow %.6f", fr.Time, s.times[f-1])
		}
		s.times[f] = fr.Time

		row := make([]r3.Vec, len(s.markers))
		ok := make([]bool, len(s.markers))
		for name, p := range fr.Positions {
			i, known := s.index[name]
			if !known {
				return nil, trialerr.New(trialerr.ComponentTrajectory, rec, trialerr.ErrMalformedTrajectoryData, "unknown marker %q", name)
			}
			if isMissing(p) {
				continue
			}
			row[i] = p
			ok[i] = true
		}
		s.pos[f] = row
		s.valid[f] = ok
	}

	return s, nil
}

func isMissing(p r3.Vec) bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z)
}

func frameRecord(f int) string {
	return "frame " + strconv.Itoa(f)
}

// FrameCount returns the number of frames.
func (s *Store) FrameCount() int { return len(s.times) }

// Markers returns the marker names in sorted order.
func (s *Store) Markers() []string { return append([]string(nil), s.markers...) }

// Position returns a marker's position at frame. The boolean is false when
// the marker is unknown, occluded, or frame is out of range.
func (s *Store) Position(marker string, frame int) (r3.Vec, bool) {
	i, ok := s.index[marker]
	if !ok || frame < 0 || frame >= len(s.times) {
		return r3.Vec{}, false
	}
	if !s.valid[frame][i] {
		return r3.Vec{}, false
	}
	return s.pos[frame][i], true
}

// FrameTime returns the trial-relative timestamp of frame.
func (s *Store) FrameTime(frame int) (float64, error) {
	if frame < 0 || frame >= len(s.times) {
		return 0, trialerr.New(trialerr.ComponentTrajectory, frameRecord(frame), trialerr.ErrOutOfRange,
			"frame outside [0, %d)", len(s.times))
	}
	return s.times[frame], nil
}

// Times returns a copy of the frame timestamps.
func (s *Store) Times() []float64 { return append([]float64(nil), s.times...) }

// TimeRange returns the first and last frame timestamps.
func (s *Store) TimeRange() (start, end float64) {
	return s.times[0], s.times[len(s.times)-1]
}

// MarkersAt returns the visible markers at frame. Missing markers are omitted.
func (s *Store) MarkersAt(frame int) map[string]r3.Vec {
	out := make(map[string]r3.Vec)
	if frame < 0 || frame >= len(s.times) {
		return out
	}
	for i, m := range s.markers {
		if s.valid[frame][i] {
			out[m] = s.pos[frame][i]
		}
	}
	return out
}

// PointsAt returns the visible positions at frame, ordered by marker name.
func (s *Store) PointsAt(frame int) []r3.Vec {
	if frame < 0 || frame >= len(s.times) {
		return nil
	}
	pts := make([]r3.Vec, 0, len(s.markers))
	for i := range s.markers {
		if s.valid[frame][i] {
			pts = append(pts, s.pos[frame][i])
		}
	}
	return pts
}

// MissingAt returns how many markers are occluded at frame.
func (s *Store) MissingAt(frame int) int {
	if frame < 0 || frame >= len(s.times) {
		return 0
	}
	n := 0
	for _, ok := range s.valid[frame] {
		if !ok {
			n++
		}
	}
	return n
}

// AllPoints returns every visible position across the whole trial.
func (s *Store) AllPoints() []r3.Vec {
	var pts []r3.Vec
	for f := range s.times {
		pts = append(pts, s.PointsAt(f)...)
	}
	return pts
}

// Filter returns a Store restricted to the markers keep accepts. The frame
// grid is shared with the original. It fails if no marker survives.
func (s *Store) Filter(keep func(marker string) bool) (*Store, error) {
	var cols []int
	for i, m := range s.markers {
		if keep(m) {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return nil, trialerr.New(trialerr.ComponentTrajectory, "", trialerr.ErrMalformedTrajectoryData, "marker filter left no markers")
	}

	out := &Store{
		markers: make([]string, len(cols)),
		index:   make(map[string]int, len(cols)),
		times:   s.times,
		pos:     make([][]r3.Vec, len(s.times)),
		valid:   make([][]bool, len(s.times)),
	}
	for j, i := range cols {
		out.markers[j] = s.markers[i]
		out.index[s.markers[i]] = j
	}
	for f := range s.times {
		row := make([]r3.Vec, len(cols))
		ok := make([]bool, len(cols))
		for j, i := range cols {
			row[j] = s.pos[f][i]
			ok[j] = s.valid[f][i]
		}
		out.pos[f] = row
		out.valid[f] = ok
	}
	return out, nil
}

// FilterFrames returns a Store holding only the frames whose timestamp keep
// accepts. It fails with ErrEmptyTrial if no frame survives.
func (s *Store) FilterFrames(keep func(t float64) bool) (*Store, error) {
	out := &Store{markers: s.markers, index: s.index}
	for f, t := range s.times {
		if !keep(t) {
			continue
		}
		out.times = append(out.times, t)
		out.pos = append(out.pos, s.pos[f])
		out.valid = append(out.valid, s.valid[f])
	}
	if len(out.times) == 0 {
		return nil, trialerr.New(trialerr.ComponentTrajectory, "", trialerr.ErrEmptyTrial, "frame filter left no frames")
	}
	return out, nil
}

// String summarises the store for logs.
func (s *Store) String() string {
	start, end := s.TimeRange()
	return fmt.Sprintf("%d markers x %d frames [%.3fs, %.3fs]", len(s.markers), len(s.times), start, end)
}
