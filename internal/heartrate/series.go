// Package heartrate holds sparse, irregularly sampled heart-rate readings and
// evaluates them with step-hold semantics: the value at any time is the most
// recent reading at or before it, never an interpolation.
package heartrate

import (
	"math"
	"sort"
	"strconv"

	"github.com/banshee-data/trial.report/internal/trialerr"
	"gonum.org/v1/gonum/stat"
)

// Sample is one heart-rate reading.
type Sample struct {
	Subject string
	Time    float64 // seconds, trial-relative
	BPM     float64
}

// Series is an immutable, strictly time-ordered set of readings.
type Series struct {
	subject string
	samples []Sample
}

// Load sorts one subject's samples by time and validates them. Timestamps
// must be unique and values finite. Samples of more than one subject are
// rejected; BySubject splits them first. An empty input gives an empty
// series; whether that is acceptable is the caller's decision.
func Load(samples []Sample) (*Series, error) {
	s := &Series{samples: append([]Sample(nil), samples...)}
	if len(samples) > 0 {
		s.subject = samples[0].Subject
	}
	sort.SliceStable(s.samples, func(a, b int) bool { return s.samples[a].Time < s.samples[b].Time })

	for i, smp := range s.samples {
		rec := timeRecord(smp.Time)
		if math.IsNaN(smp.Time) || math.IsInf(smp.Time, 0) {
			return nil, trialerr.New(trialerr.ComponentHeartRate, rec, trialerr.ErrMalformedSamples, "non-finite timestamp")
		}
		if math.IsNaN(smp.BPM) || math.IsInf(smp.BPM, 0) || smp.BPM < 0 {
			return nil, trialerr.New(trialerr.ComponentHeartRate, rec, trialerr.ErrMalformedSamples, "invalid bpm %v", smp.BPM)
		}
		if smp.Subject != s.subject {
			return nil, trialerr.New(trialerr.ComponentHeartRate, rec, trialerr.ErrMalformedSamples,
				"subject %q mixed into series of %q", smp.Subject, s.subject)
		}
		if i > 0 && smp.Time == s.samples[i-1].Time {
			return nil, trialerr.New(trialerr.ComponentHeartRate, rec, trialerr.ErrMalformedSamples, "duplicate timestamp")
		}
	}
	return s, nil
}

// BySubject groups samples by subject and loads one series per subject, in
// order of each subject's first sample. An empty input gives no series.
func BySubject(samples []Sample) ([]*Series, error) {
	var order []string
	groups := make(map[string][]Sample)
	for _, smp := range samples {
		if _, seen := groups[smp.Subject]; !seen {
			order = append(order, smp.Subject)
		}
		groups[smp.Subject] = append(groups[smp.Subject], smp)
	}
	out := make([]*Series, 0, len(order))
	for _, subject := range order {
		s, err := Load(groups[subject])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// FromIndexed builds a series from readings taken every period seconds
// starting at start. NaN readings are skipped, as gaps in a manually recorded
// column.
func FromIndexed(subject string, start, period float64, bpm []float64) (*Series, error) {
	if !(period > 0) {
		return nil, trialerr.New(trialerr.ComponentHeartRate, "", trialerr.ErrMalformedSamples, "period must be positive, got %v", period)
	}
	samples := make([]Sample, 0, len(bpm))
	for i, v := range bpm {
		if math.IsNaN(v) {
			continue
		}
		samples = append(samples, Sample{Subject: subject, Time: start + float64(i)*period, BPM: v})
	}
	return Load(samples)
}

func timeRecord(t float64) string {
	return "t=" + strconv.FormatFloat(t, 'f', -1, 64)
}

// Subject returns the subject every reading belongs to.
func (s *Series) Subject() string { return s.subject }

// Len returns the number of readings.
func (s *Series) Len() int { return len(s.samples) }

// Samples returns a copy of the readings in time order.
func (s *Series) Samples() []Sample { return append([]Sample(nil), s.samples...) }

// TimeRange returns the first and last reading times.
func (s *Series) TimeRange() (start, end float64) {
	if len(s.samples) == 0 {
		return 0, 0
	}
	return s.samples[0].Time, s.samples[len(s.samples)-1].Time
}

// ValueAt returns the reading at or immediately before t. Times before the
// first reading fail with ErrOutOfRange so the caller decides whether to
// clip or report.
func (s *Series) ValueAt(t float64) (float64, error) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Time > t })
	if i == 0 {
		return 0, trialerr.New(trialerr.ComponentHeartRate, timeRecord(t), trialerr.ErrOutOfRange, "before first heart-rate sample")
	}
	return s.samples[i-1].BPM, nil
}

// Summary describes the readings of a series.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summary returns descriptive statistics over the readings.
func (s *Series) Summary() Summary {
	if len(s.samples) == 0 {
		return Summary{}
	}
	vals := make([]float64, len(s.samples))
	sum := Summary{Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
	for i, smp := range s.samples {
		vals[i] = smp.BPM
		sum.Min = math.Min(sum.Min, smp.BPM)
		sum.Max = math.Max(sum.Max, smp.BPM)
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(vals, nil)
	if len(vals) == 1 {
		sum.StdDev = 0
	}
	return sum
}
