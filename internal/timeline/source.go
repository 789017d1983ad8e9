// Package timeline reconciles a trial's independently sampled sources onto
// one shared, trial-relative time axis.
//
// Every source is a Source. Scalar sources (trajectory, heart rate, volume)
// are evaluated per axis point with step-hold semantics; interval sources
// (behaviour) are clipped to the axis bounds and never resampled.
package timeline

import (
	"math"
	"sort"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/volume"
	"gonum.org/v1/gonum/stat"
)

// SourceKind tags the shape of a source's values.
type SourceKind string

const (
	KindTrajectory SourceKind = "trajectory"
	KindStep       SourceKind = "step"
	KindCumulative SourceKind = "cumulative"
	KindInterval   SourceKind = "interval"
)

// Source names used by the pipeline.
const (
	NameTrajectory = "trajectory"
	NameHeartRate  = "heart_rate"
	NameVolume     = "volume"
	NameBehavior   = "behavior"
)

// Source is the capability every aligned input shares.
type Source interface {
	Name() string
	Kind() SourceKind
	TimeRange() (start, end float64)
	Len() int
}

// ScalarSource can be evaluated at any time at or after its first sample.
type ScalarSource interface {
	Source
	ValueAt(t float64) (float64, error)
	// Period is the median spacing between samples, or 0 when unknown.
	Period() float64
}

// IntervalSource yields intervals rather than point values.
type IntervalSource interface {
	Source
	Intervals() []behavior.Interval
}

// TrajectorySource exposes the frame grid. Its value is the number of
// visible markers at the most recent frame.
type TrajectorySource struct {
	store  *mocap.Store
	times  []float64
	period float64
}

func NewTrajectorySource(store *mocap.Store) *TrajectorySource {
	times := store.Times()
	return &TrajectorySource{store: store, times: times, period: medianPeriod(times)}
}

func (s *TrajectorySource) Name() string     { return NameTrajectory }
func (s *TrajectorySource) Kind() SourceKind { return KindTrajectory }
func (s *TrajectorySource) Len() int         { return s.store.FrameCount() }
func (s *TrajectorySource) Period() float64  { return s.period }

func (s *TrajectorySource) TimeRange() (float64, float64) { return s.store.TimeRange() }

func (s *TrajectorySource) ValueAt(t float64) (float64, error) {
	f := sort.Search(len(s.times), func(i int) bool { return s.times[i] > t }) - 1
	if _, err := s.store.FrameTime(f); err != nil {
		return 0, err
	}
	return float64(len(s.store.MarkersAt(f))), nil
}

// StepSeries is a sparse scalar held between readings, such as heart rate.
type StepSeries struct {
	name   string
	series *heartrate.Series
	period float64
}

func NewStepSeries(name string, series *heartrate.Series) *StepSeries {
	samples := series.Samples()
	times := make([]float64, len(samples))
	for i, s := range samples {
		times[i] = s.Time
	}
	return &StepSeries{name: name, series: series, period: medianPeriod(times)}
}

func (s *StepSeries) Name() string                       { return s.name }
func (s *StepSeries) Kind() SourceKind                   { return KindStep }
func (s *StepSeries) Len() int                           { return s.series.Len() }
func (s *StepSeries) Period() float64                    { return s.period }
func (s *StepSeries) TimeRange() (float64, float64)      { return s.series.TimeRange() }
func (s *StepSeries) ValueAt(t float64) (float64, error) { return s.series.ValueAt(t) }

// CumulativeSeries is a monotone running total that only changes at frame
// boundaries.
type CumulativeSeries struct {
	name   string
	series *volume.Series
	period float64
}

func NewCumulativeSeries(name string, series *volume.Series) *CumulativeSeries {
	samples := series.Samples()
	times := make([]float64, len(samples))
	for i, s := range samples {
		times[i] = s.Time
	}
	return &CumulativeSeries{name: name, series: series, period: medianPeriod(times)}
}

func (s *CumulativeSeries) Name() string                       { return s.name }
func (s *CumulativeSeries) Kind() SourceKind                   { return KindCumulative }
func (s *CumulativeSeries) Len() int                           { return s.series.Len() }
func (s *CumulativeSeries) Period() float64                    { return s.period }
func (s *CumulativeSeries) TimeRange() (float64, float64)      { return s.series.TimeRange() }
func (s *CumulativeSeries) ValueAt(t float64) (float64, error) { return s.series.ValueAt(t) }

// IntervalSeries carries reconstructed behaviour intervals. Its extent and
// length come from the raw event log, so a log with no usable intervals is
// still a non-empty source.
type IntervalSeries struct {
	name       string
	intervals  []behavior.Interval
	events     int
	start, end float64
}

func NewIntervalSeries(name string, events []behavior.Event, result *behavior.Result) *IntervalSeries {
	s := &IntervalSeries{name: name, events: len(events)}
	s.start, s.end, _ = behavior.EventTimeRange(events)
	if result == nil {
		return s
	}
	s.intervals = result.Intervals
	if start, end, ok := result.TimeRange(); ok {
		if s.events == 0 {
			s.start, s.end = start, end
		}
		s.start = math.Min(s.start, start)
		s.end = math.Max(s.end, end)
	}
	return s
}

func (s *IntervalSeries) Name() string                  { return s.name }
func (s *IntervalSeries) Kind() SourceKind              { return KindInterval }
func (s *IntervalSeries) Len() int                      { return s.events }
func (s *IntervalSeries) TimeRange() (float64, float64) { return s.start, s.end }
func (s *IntervalSeries) Intervals() []behavior.Interval {
	return append([]behavior.Interval(nil), s.intervals...)
}

// medianPeriod returns the median spacing of ascending times.
func medianPeriod(times []float64) float64 {
	if len(times) < 2 {
		return 0
	}
	diffs := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		diffs[i-1] = times[i] - times[i-1]
	}
	sort.Float64s(diffs)
	return stat.Quantile(0.5, stat.Empirical, diffs, nil)
}
