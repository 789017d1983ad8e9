package catalog

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/trial"
	"gonum.org/v1/gonum/spatial/r3"
)

// newTestCatalog opens a migrated catalogue in a per-test temp directory.
func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

var nan = r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}

// sampleTables is a two-second trial at 2 Hz with HEAD occluded in frame 2.
func sampleTables() *trial.Tables {
	tb := &trial.Tables{Markers: []string{"HEAD", "LHAND", "RHAND", "TAB1"}}
	for i := 0; i < 5; i++ {
		fr := mocap.Frame{
			Time: float64(i) * 0.5,
			Positions: map[string]r3.Vec{
				"HEAD":  {X: 0, Y: 1.7, Z: float64(i)},
				"LHAND": {X: -0.4, Y: 1.0, Z: 0.2},
				"RHAND": {X: 0.4, Y: 1.1, Z: 0.1},
				"TAB1":  {X: 1, Y: 0.8, Z: 1},
			},
		}
		if i == 2 {
			fr.Positions["HEAD"] = nan
		}
		tb.Frames = append(tb.Frames, fr)
	}
	tb.Events = []behavior.Event{
		{Subject: "S08", Behavior: "reach", Kind: behavior.KindStart, Time: 0.25, Record: 0},
		{Subject: "S08", Behavior: "reach", Kind: behavior.KindStop, Time: 1.5, Record: 1},
		{Subject: "S08", Behavior: "look", Kind: behavior.KindPoint, Time: 1.75, Record: 2},
	}
	tb.HeartRate = []heartrate.Sample{
		{Subject: "S08", Time: 0, BPM: 88},
		{Subject: "S08", Time: 1, BPM: 91.5},
	}
	return tb
}
