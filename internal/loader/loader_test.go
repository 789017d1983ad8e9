package loader

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/fsutil"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackedCSV = "\ufeffBTS tracked export\n" +
	"Protocol,Caregiving\n" +
	"Frequency,100\n" +
	"\n" +
	"Frame, Time, HEADf.X, HEADf.Y, HEADf.Z, LHAND.X, LHAND.Y, LHAND.Z, TAB1f.X, TAB1f.Y, TAB1f.Z\n" +
	"1, 0.00, 1, 2, 3, 4, 5, 6, 7, 8, 9\n" +
	"2, 0.01, , , , 4.5, 5, 6, 7, 8, 9\n" +
	"3, 0.02, 1, 2, NaN, 4, 5, 6.5, 7, 8, 9\n" +
	"\n"

const borisCSV = "Observation id,T01\n" +
	"Observation date,2018-10-01\n" +
	"Media file,video.mp4\n" +
	"\n" +
	"Time,Media file path,Total length,FPS,Subject,Behavior,Behavioral category,Comment,Status\n" +
	"1.5,video.mp4,120,30,S08,walk,,,START\n" +
	"4.0,video.mp4,120,30,S08,walk,,,STOP\n" +
	"5.25,video.mp4,120,30,S08,reach,,,POINT\n"

const workbookCSV = ",CPU,,SPU\n" +
	",RFT,,RFT\n" +
	",1,2,1\n" +
	"0,,,\n" +
	"1,80,81,90\n" +
	"2,,82,91\n" +
	"3,84,83,\n"

func TestReadTracked(t *testing.T) {
	markers, frames, err := ReadTracked(strings.NewReader(trackedCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"HEAD", "LHAND", "TAB1"}, markers)
	require.Len(t, frames, 3)
	assert.Equal(t, 0.01, frames[1].Time)
	assert.Equal(t, 4.5, frames[1].Positions["LHAND"].X)
	assert.True(t, math.IsNaN(frames[1].Positions["HEAD"].X))
	assert.True(t, math.IsNaN(frames[2].Positions["HEAD"].Y), "one NaN coordinate marks the whole marker missing")

	store, err := mocap.Load(markers, frames)
	require.NoError(t, err)
	_, ok := store.Position("HEAD", 1)
	assert.False(t, ok)
	p, ok := store.Position("TAB1", 2)
	assert.True(t, ok)
	assert.Equal(t, 9.0, p.Z)
}

func TestReadTrackedErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"no header", "just,a,preamble\n"},
		{"no time column", "Frame,A.X,A.Y,A.Z\n1,1,2,3\n"},
		{"incomplete marker", "Frame,Time,A.X,A.Y\n1,0,1,2\n"},
		{"duplicate after normalising", "Frame,Time,A.X,A.Y,A.Z,Af.X,Af.Y,Af.Z\n"},
		{"bad number", "Frame,Time,A.X,A.Y,A.Z\n1,0,1,two,3\n"},
		{"bad time", "Frame,Time,A.X,A.Y,A.Z\n1,,1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadTracked(strings.NewReader(tt.csv))
			assert.ErrorIs(t, err, trialerr.ErrMalformedTrajectoryData)
		})
	}
}

func TestMarkerNames(t *testing.T) {
	assert.Equal(t, "TAB1", NormalizeMarker("TAB1f"))
	assert.Equal(t, "HEAD", NormalizeMarker("HEAD"))
	assert.Equal(t, "f", NormalizeMarker("f"))
	assert.Equal(t, "Leftf", NormalizeMarker("Leftf"))

	assert.True(t, BodyMarkers("HEAD"))
	assert.True(t, BodyMarkers("LHANDf"))
	assert.False(t, BodyMarkers("TAB1f"))
	assert.False(t, BodyMarkers("FRM2"))
	assert.False(t, BodyMarkers("tab3"))
}

func TestReadEvents(t *testing.T) {
	events, err := ReadEvents(strings.NewReader(borisCSV))
	require.NoError(t, err)

	want := []behavior.Event{
		{Subject: "S08", Behavior: "walk", Kind: behavior.KindStart, Time: 1.5, Record: 0},
		{Subject: "S08", Behavior: "walk", Kind: behavior.KindStop, Time: 4.0, Record: 1},
		{Subject: "S08", Behavior: "reach", Kind: behavior.KindPoint, Time: 5.25, Record: 2},
	}
	assert.Equal(t, want, events)
}

func TestReadEventsWithoutStatusAlternates(t *testing.T) {
	csv := "Time,Subject,Behavior\n" +
		"0,S1,eat\n" +
		"1,S1,walk\n" +
		"2.5,S1,eat\n" +
		"3,S1,eat\n" +
		"4,S1,walk\n"
	events, err := ReadEvents(strings.NewReader(csv))
	require.NoError(t, err)

	kinds := make([]behavior.Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []behavior.Kind{
		behavior.KindStart, behavior.KindStart, behavior.KindStop, behavior.KindStart, behavior.KindStop,
	}, kinds)
}

func TestReadEventsUnknownStatusReachesReconstructor(t *testing.T) {
	csv := "Time,Subject,Behavior,Status\n" +
		"0,S1,eat,START\n" +
		"1,S1,eat,PAUSE\n"
	events, err := ReadEvents(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, behavior.Kind("pause"), events[1].Kind)

	_, err = behavior.NewReconstructor(behavior.DefaultConfig()).Reconstruct(events, 10)
	assert.ErrorIs(t, err, trialerr.ErrUnknownEventKind)
	assert.Contains(t, err.Error(), "record 1")
}

func TestReadEventsErrors(t *testing.T) {
	for name, csv := range map[string]string{
		"no header":      "Observation id,T01\n",
		"bad time":       "Time,Behavior\nsoon,eat\n",
		"empty behavior": "Time,Behavior\n1,\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadEvents(strings.NewReader(csv))
			assert.ErrorIs(t, err, trialerr.ErrMalformedSamples)
		})
	}
}

func TestReadHeartRate(t *testing.T) {
	csv := "subject,time,bpm\n" +
		"S08,5,72\n" +
		"S08,10,\n" +
		"S08,15,80\n"
	samples, err := ReadHeartRate(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []heartrate.Sample{
		{Subject: "S08", Time: 5, BPM: 72},
		{Subject: "S08", Time: 15, BPM: 80},
	}, samples)

	_, err = ReadHeartRate(strings.NewReader("time,bpm\n1,fast\n"))
	assert.ErrorIs(t, err, trialerr.ErrMalformedSamples)
}

func TestReadHeartRateWorkbook(t *testing.T) {
	samples, err := ReadHeartRateWorkbook(strings.NewReader(workbookCSV), "S08",
		WorkbookColumn{Trial: "CPU", Volume: "RFT", Attempt: "2"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []heartrate.Sample{
		{Subject: "S08", Time: 0, BPM: 81},
		{Subject: "S08", Time: 1, BPM: 82},
		{Subject: "S08", Time: 2, BPM: 83},
	}, samples)

	// gaps keep their place on the time axis
	samples, err = ReadHeartRateWorkbook(strings.NewReader(workbookCSV), "S08",
		WorkbookColumn{Trial: "CPU", Volume: "RFT", Attempt: "1"}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []heartrate.Sample{
		{Subject: "S08", Time: 0, BPM: 80},
		{Subject: "S08", Time: 1, BPM: 84},
	}, samples)

	_, err = ReadHeartRateWorkbook(strings.NewReader(workbookCSV), "S08",
		WorkbookColumn{Trial: "XYZ", Volume: "RFT", Attempt: "1"}, 1)
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)
}

func TestParseTrialName(t *testing.T) {
	tn, err := ParseTrialName("MVOL_S08_02_CPU_RFT_1")
	require.NoError(t, err)
	assert.Equal(t, "S08", tn.Subject)
	assert.Equal(t, WorkbookColumn{Trial: "CPU", Volume: "RFT", Attempt: "1"}, tn.Column)

	_, err = ParseTrialName("pilot")
	assert.Error(t, err)
	_, err = ParseTrialName("MVOL__02_CPU_RFT_1")
	assert.Error(t, err)
}

func memDir(t *testing.T) *Dir {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	root := "/data"
	files := map[string]string{
		filepath.Join(root, TrackedDir, "MVOL_S08_02_CPU_RFT_1_tracked.csv"): trackedCSV,
		filepath.Join(root, TrackedDir, "pilot_tracked.csv"):                 trackedCSV,
		filepath.Join(root, BorisDir, "MVOL_S08_02_CPU_RFT_1.csv"):           borisCSV,
		filepath.Join(root, HeartRateDir, "HeartRate_S08.csv"):               workbookCSV,
		filepath.Join(root, HeartRateDir, "pilot.csv"):                       "subject,time,bpm\nS1,0,70\n",
	}
	for name, data := range files {
		require.NoError(t, mfs.WriteFile(name, []byte(data), 0o644))
	}
	return &Dir{FS: mfs, Root: root, HeartRatePeriod: 1}
}

func TestDirTrialsAndLoad(t *testing.T) {
	d := memDir(t)

	names, err := d.Trials()
	require.NoError(t, err)
	assert.Equal(t, []string{"MVOL_S08_02_CPU_RFT_1", "pilot"}, names)

	tables, err := d.Load(context.Background(), "MVOL_S08_02_CPU_RFT_1")
	require.NoError(t, err)
	assert.Len(t, tables.Markers, 3)
	assert.Len(t, tables.Frames, 3)
	assert.Len(t, tables.Events, 3)
	require.Len(t, tables.HeartRate, 2) // workbook column CPU/RFT/1
	assert.Equal(t, 84.0, tables.HeartRate[1].BPM)

	pilot, err := d.Load(context.Background(), "pilot")
	require.NoError(t, err)
	assert.Empty(t, pilot.Events)
	assert.Equal(t, []heartrate.Sample{{Subject: "S1", Time: 0, BPM: 70}}, pilot.HeartRate)
}

func TestDirLoadErrors(t *testing.T) {
	d := memDir(t)

	_, err := d.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)

	_, err = d.Load(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trial name")

	mfs := d.FS.(*fsutil.MemoryFileSystem)
	require.NoError(t, mfs.WriteFile("/data/tracked_data/broken_tracked.csv", []byte("Frame,Time,A.X\n"), 0o644))
	_, err = d.Load(context.Background(), "broken")
	assert.True(t, errors.Is(err, trialerr.ErrMalformedTrajectoryData))
	assert.Contains(t, err.Error(), "broken_tracked.csv")
}

const dualTrackedCSV = "Frame, Time, HEAD.X, HEAD.Y, HEAD.Z, LHAND.X, LHAND.Y, LHAND.Z, " +
	"TAB1.X, TAB1.Y, TAB1.Z, TAB4.X, TAB4.Y, TAB4.Z, HEAD2.X, HEAD2.Y, HEAD2.Z\n" +
	"1, 0.00, 1, 2, 3, 4, 5, 6, 7, 8, 9, 7, 8, 1, 3, 3, 3\n" +
	"2, 0.01, 1, 2, 3, 4, 5, 6, 7, 8, 9, 7, 8, 1, 3, 3, 4\n"

const dualBorisCSV = "Time,Subject,Behavior,Status\n" +
	"0.5,S08,walk,START\n" +
	"1.0,S07,reach,POINT\n" +
	"2.0,S08,walk,STOP\n"

const dualWorkbookCSV = ",AC2\n" +
	",LSX\n" +
	",1\n" +
	"1,70\n" +
	"2,71\n"

func TestSplitCaregivers(t *testing.T) {
	assert.Equal(t, [][]string{{"HEAD", "LHAND"}, {"HEAD2"}},
		SplitCaregivers([]string{"HEAD", "LHAND", "TAB1", "FRM2", "TAB4", "HEAD2"}))
	assert.Equal(t, [][]string{{"HEAD", "LHAND"}},
		SplitCaregivers([]string{"HEAD", "LHAND", "FRM1", "TAB1"}))
	assert.Equal(t, [][]string{{"HEAD", "LHAND"}},
		SplitCaregivers([]string{"HEAD", "LHAND"}))
	assert.Equal(t, [][]string{{"HEAD"}},
		SplitCaregivers([]string{"TAB1", "HEAD"}), "markers after the fixtures alone are one caregiver")
}

func dualDir(t *testing.T) *Dir {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	root := "/data"
	name := "MVOL_S78_03_AC2_LSX_1"
	files := map[string]string{
		filepath.Join(root, TrackedDir, name+"_tracked.csv"):   dualTrackedCSV,
		filepath.Join(root, BorisDir, name+".csv"):             dualBorisCSV,
		filepath.Join(root, HeartRateDir, "HeartRate_S07.csv"): dualWorkbookCSV,
		filepath.Join(root, HeartRateDir, "HeartRate_S08.csv"): strings.Replace(dualWorkbookCSV, "70", "110", 1),
	}
	for path, data := range files {
		require.NoError(t, mfs.WriteFile(path, []byte(data), 0o644))
	}
	return &Dir{FS: mfs, Root: root, HeartRatePeriod: 1}
}

func TestDirLoadDualCaregivers(t *testing.T) {
	d := dualDir(t)
	d.Caregivers = []string{"S07", "S08"}

	tables, err := d.Load(context.Background(), "MVOL_S78_03_AC2_LSX_1")
	require.NoError(t, err)
	require.Len(t, tables.Caregivers, 2)
	assert.Equal(t, "S07", tables.Caregivers[0].Subject)
	assert.Equal(t, []string{"HEAD", "LHAND"}, tables.Caregivers[0].Markers)
	assert.Equal(t, "S08", tables.Caregivers[1].Subject)
	assert.Equal(t, []string{"HEAD2"}, tables.Caregivers[1].Markers)

	// each caregiver's own workbook, never the trial-name subject S78
	assert.Equal(t, []heartrate.Sample{
		{Subject: "S07", Time: 0, BPM: 70},
		{Subject: "S07", Time: 1, BPM: 71},
		{Subject: "S08", Time: 0, BPM: 110},
		{Subject: "S08", Time: 1, BPM: 71},
	}, tables.HeartRate)
}

func TestDirLoadDualCaregiversFromObservationLog(t *testing.T) {
	tables, err := dualDir(t).Load(context.Background(), "MVOL_S78_03_AC2_LSX_1")
	require.NoError(t, err)
	require.Len(t, tables.Caregivers, 2)
	assert.Equal(t, "S08", tables.Caregivers[0].Subject, "first subject in the log")
	assert.Equal(t, "S07", tables.Caregivers[1].Subject)
}

func TestDirLoadSingleCaregiverHasNoSplit(t *testing.T) {
	tables, err := memDir(t).Load(context.Background(), "MVOL_S08_02_CPU_RFT_1")
	require.NoError(t, err)
	assert.Empty(t, tables.Caregivers)
}
