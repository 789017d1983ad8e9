package timeline

import (
	"errors"
	"math"
	"strings"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/trialerr"
)

// Status describes where an axis point falls relative to a source's extent.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"
)

// Value is one scalar source evaluated at one axis point. Value is NaN when
// Status is StatusNotStarted.
type Value struct {
	Value  float64
	Status Status
}

// MaxAxisPoints bounds the shared axis so a bad resolution override cannot
// exhaust memory.
const MaxAxisPoints = 10_000_000

// Inputs are the sources every trial supplies. A trial has one heart-rate
// source per monitored subject and one volume source per caregiver.
type Inputs struct {
	Trajectory ScalarSource
	HeartRate  []ScalarSource
	Volume     []ScalarSource
	Behavior   IntervalSource
}

func (in Inputs) scalars() []ScalarSource {
	out := []ScalarSource{in.Trajectory}
	out = append(out, in.HeartRate...)
	return append(out, in.Volume...)
}

func (in Inputs) sources() []Source {
	out := make([]Source, 0, 2+len(in.HeartRate)+len(in.Volume))
	for _, s := range in.scalars() {
		out = append(out, s)
	}
	return append(out, in.Behavior)
}

func isNil(s Source) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *TrajectorySource:
		return v == nil
	case *StepSeries:
		return v == nil
	case *CumulativeSeries:
		return v == nil
	case *IntervalSeries:
		return v == nil
	}
	return false
}

// SourceName names a per-subject source, such as "heart_rate/S07". An empty
// subject gives the base name.
func SourceName(base, subject string) string {
	if subject == "" {
		return base
	}
	return base + "/" + subject
}

// SplitSourceName is the inverse of SourceName.
func SplitSourceName(name string) (base, subject string) {
	base, subject, _ = strings.Cut(name, "/")
	return base, subject
}

// Aligner builds a Bundle from a trial's sources. A zero Resolution derives
// the axis step from the finest median sample period.
type Aligner struct {
	Resolution float64
}

// Align projects every source onto one shared axis spanning the union of
// their extents. Either every source aligns or an error is returned.
func (a Aligner) Align(in Inputs) (*Bundle, error) {
	if len(in.HeartRate) == 0 {
		return nil, trialerr.New(trialerr.ComponentTimeline, NameHeartRate, trialerr.ErrEmptyTrial, "no heart-rate source")
	}
	if len(in.Volume) == 0 {
		return nil, trialerr.New(trialerr.ComponentTimeline, NameVolume, trialerr.ErrEmptyTrial, "no volume source")
	}
	required := []requiredSource{{NameTrajectory, in.Trajectory}}
	for _, s := range in.HeartRate {
		required = append(required, requiredSource{NameHeartRate, s})
	}
	for _, s := range in.Volume {
		required = append(required, requiredSource{NameVolume, s})
	}
	required = append(required, requiredSource{NameBehavior, in.Behavior})
	seen := make(map[string]bool)
	for _, r := range required {
		if isNil(r.src) {
			return nil, trialerr.New(trialerr.ComponentTimeline, r.name, trialerr.ErrEmptyTrial, "source missing")
		}
		if r.src.Len() == 0 {
			return nil, trialerr.New(trialerr.ComponentTimeline, r.src.Name(), trialerr.ErrEmptyTrial, "source has no samples")
		}
		if seen[r.src.Name()] {
			return nil, trialerr.New(trialerr.ComponentTimeline, r.src.Name(), trialerr.ErrMalformedSamples, "source supplied twice")
		}
		seen[r.src.Name()] = true
	}

	start, end := math.Inf(1), math.Inf(-1)
	lo, hi := math.Inf(-1), math.Inf(1)
	var loSrc, hiSrc string
	for _, s := range in.sources() {
		s0, s1 := s.TimeRange()
		start = math.Min(start, s0)
		end = math.Max(end, s1)
		if s0 > lo {
			lo, loSrc = s0, s.Name()
		}
		if s1 < hi {
			hi, hiSrc = s1, s.Name()
		}
	}
	if lo > hi {
		return nil, trialerr.New(trialerr.ComponentTimeline, loSrc+" vs "+hiSrc, trialerr.ErrNonOverlappingSources,
			"%s starts at %.3fs after %s ends at %.3fs", loSrc, lo, hiSrc, hi)
	}

	res := a.Resolution
	if !(res > 0) {
		res = finestPeriod(in.scalars())
	}
	axis, err := buildAxis(start, end, res)
	if err != nil {
		return nil, err
	}
	monitoring.Diagf("timeline: axis [%.3f, %.3f] step %.4fs, %d points", start, end, res, len(axis))

	b := &Bundle{
		Axis:       axis,
		Resolution: res,
		Start:      start,
		End:        end,
		OverlapLo:  lo,
		OverlapHi:  hi,
		scalars:    make(map[string][]Value),
		channels:   make(map[behavior.Key][]behavior.Interval),
	}
	b.behaviorStart, b.behaviorEnd = in.Behavior.TimeRange()
	for _, s := range in.scalars() {
		vals, err := project(s, axis)
		if err != nil {
			return nil, err
		}
		b.scalarNames = append(b.scalarNames, s.Name())
		b.scalars[s.Name()] = vals
	}
	b.clip(in.Behavior.Intervals())
	return b, nil
}

// requiredSource pairs a source with the name reported when it is missing.
type requiredSource struct {
	name string
	src  Source
}

func finestPeriod(sources []ScalarSource) float64 {
	res := math.Inf(1)
	for _, s := range sources {
		if p := s.Period(); p > 0 {
			res = math.Min(res, p)
		}
	}
	if math.IsInf(res, 1) {
		return 0
	}
	return res
}

// buildAxis returns start + i*res up to end, with the final point clamped
// to end. A zero-width span or unknown resolution gives the endpoints only.
func buildAxis(start, end, res float64) ([]float64, error) {
	span := end - start
	if span <= 0 {
		return []float64{start}, nil
	}
	if !(res > 0) || res > span {
		return []float64{start, end}, nil
	}
	steps := math.Floor(span/res + 1e-9)
	if steps+2 > MaxAxisPoints {
		return nil, trialerr.New(trialerr.ComponentTimeline, "", trialerr.ErrOutOfRange,
			"resolution %gs over %.3fs needs more than %d axis points", res, span, MaxAxisPoints)
	}
	n := int(steps) + 1
	axis := make([]float64, n, n+1)
	for i := range axis {
		axis[i] = math.Min(start+float64(i)*res, end)
	}
	if end-axis[n-1] > res*1e-9 {
		axis = append(axis, end)
	} else {
		axis[n-1] = end
	}
	return axis, nil
}

func project(s ScalarSource, axis []float64) ([]Value, error) {
	first, last := s.TimeRange()
	out := make([]Value, len(axis))
	for i, t := range axis {
		if t < first {
			out[i] = Value{Value: math.NaN(), Status: StatusNotStarted}
			continue
		}
		v, err := s.ValueAt(t)
		if err != nil {
			if errors.Is(err, trialerr.ErrOutOfRange) {
				out[i] = Value{Value: math.NaN(), Status: StatusNotStarted}
				continue
			}
			return nil, err
		}
		status := StatusActive
		if t > last {
			status = StatusEnded
		}
		out[i] = Value{Value: v, Status: status}
	}
	return out, nil
}
