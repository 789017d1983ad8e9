// Package testutil provides shared test fixtures for trial data.
//
// This package centralises the synthetic trajectories and heart-rate tables
// that several packages' tests build, so every test agrees on their shape.
package testutil

import (
	"testing"

	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"gonum.org/v1/gonum/spatial/r3"
)

// TetraMarkers names the four markers of Tetrahedron.
var TetraMarkers = []string{"A", "B", "C", "D"}

// Tetrahedron returns frames of a right tetrahedron with one vertex at the
// origin and the others on each axis at scale(i), sampled every step
// seconds for n frames. A nil scale keeps the unit tetrahedron, volume 1/6.
func Tetrahedron(n int, step float64, scale func(i int) float64) []mocap.Frame {
	frames := make([]mocap.Frame, n)
	for i := range frames {
		s := 1.0
		if scale != nil {
			s = scale(i)
		}
		frames[i] = mocap.Frame{
			Time: float64(i) * step,
			Positions: map[string]r3.Vec{
				"A": {},
				"B": {X: s},
				"C": {Y: s},
				"D": {Z: s},
			},
		}
	}
	return frames
}

// TetraStore loads Tetrahedron frames covering [0, end].
func TetraStore(t testing.TB, end, step float64) *mocap.Store {
	t.Helper()
	n := int(end/step+1e-9) + 1
	return Store(t, TetraMarkers, Tetrahedron(n, step, nil))
}

// Store loads frames, failing the test on error.
func Store(t testing.TB, markers []string, frames []mocap.Frame) *mocap.Store {
	t.Helper()
	s, err := mocap.Load(markers, frames)
	AssertNoError(t, err)
	return s
}

// HeartRate returns one sample per time with BPM counting up from bpm0.
func HeartRate(subject string, bpm0 float64, times ...float64) []heartrate.Sample {
	samples := make([]heartrate.Sample, len(times))
	for i, ts := range times {
		samples[i] = heartrate.Sample{Subject: subject, Time: ts, BPM: bpm0 + float64(i)}
	}
	return samples
}

// HeartRateSeries loads HeartRate samples, failing the test on error.
func HeartRateSeries(t testing.TB, subject string, bpm0 float64, times ...float64) *heartrate.Series {
	t.Helper()
	s, err := heartrate.Load(HeartRate(subject, bpm0, times...))
	AssertNoError(t, err)
	return s
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
