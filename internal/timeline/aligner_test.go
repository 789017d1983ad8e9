package timeline

import (
	"math"
	"testing"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/testutil"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"github.com/banshee-data/trial.report/internal/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tetraStore(t *testing.T, end, step float64) *mocap.Store {
	return testutil.TetraStore(t, end, step)
}

func heartRate(t *testing.T, times ...float64) *heartrate.Series {
	return testutil.HeartRateSeries(t, "S1", 70, times...)
}

func inputs(t *testing.T, store *mocap.Store, hr *heartrate.Series, events []behavior.Event) Inputs {
	t.Helper()
	vol, err := volume.Compute(store, volume.DefaultConfig())
	require.NoError(t, err)
	_, trialEnd := store.TimeRange()
	res, err := behavior.NewReconstructor(behavior.DefaultConfig()).Reconstruct(events, trialEnd)
	require.NoError(t, err)
	return Inputs{
		Trajectory: NewTrajectorySource(store),
		HeartRate:  []ScalarSource{NewStepSeries(NameHeartRate, hr)},
		Volume:     []ScalarSource{NewCumulativeSeries(NameVolume, vol)},
		Behavior:   NewIntervalSeries(NameBehavior, events, res),
	}
}

var walkAndEat = []behavior.Event{
	{Subject: "S1", Behavior: "walk", Kind: behavior.KindStart, Time: 2, Record: 0},
	{Subject: "S1", Behavior: "walk", Kind: behavior.KindStop, Time: 20, Record: 1},
	{Subject: "S1", Behavior: "eat", Kind: behavior.KindStart, Time: 55, Record: 2},
}

func TestHeartRateNotStartedAndHeld(t *testing.T) {
	hr := heartRate(t, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50)
	in := inputs(t, tetraStore(t, 60, 0.5), hr, walkAndEat)

	b, err := Aligner{}.Align(in)
	require.NoError(t, err)

	assert.Equal(t, 0.5, b.Resolution)
	require.Equal(t, 121, b.Len())
	assert.Equal(t, 0.0, b.Axis[0])
	assert.Equal(t, 60.0, b.Axis[b.Len()-1])

	vals, ok := b.Scalar(NameHeartRate)
	require.True(t, ok)
	for i, t0 := range b.Axis {
		v := vals[i]
		switch {
		case t0 < 5:
			assert.Equal(t, StatusNotStarted, v.Status, "t=%v", t0)
			assert.True(t, math.IsNaN(v.Value), "t=%v", t0)
		case t0 <= 50:
			assert.Equal(t, StatusActive, v.Status, "t=%v", t0)
		default:
			assert.Equal(t, StatusEnded, v.Status, "t=%v", t0)
			assert.Equal(t, 79.0, v.Value, "t=%v", t0)
		}
	}
	assert.Equal(t, 70.0, vals[10].Value) // t=5
	assert.Equal(t, 70.0, vals[19].Value) // t=9.5 holds
	assert.Equal(t, 71.0, vals[20].Value) // t=10
}

func TestVolumeAndTrajectoryProjections(t *testing.T) {
	events := []behavior.Event{
		{Subject: "S1", Behavior: "walk", Kind: behavior.KindStart, Time: 2},
		{Subject: "S1", Behavior: "walk", Kind: behavior.KindStop, Time: 8, Record: 1},
	}
	in := inputs(t, tetraStore(t, 10, 1), heartRate(t, 0, 5, 10), events)

	b, err := Aligner{}.Align(in)
	require.NoError(t, err)
	require.Equal(t, 11, b.Len())

	vol, _ := b.Scalar(NameVolume)
	traj, _ := b.Scalar(NameTrajectory)
	for i := range b.Axis {
		assert.InDelta(t, float64(i+1)/6, vol[i].Value, 1e-9)
		assert.Equal(t, StatusActive, vol[i].Status)
		assert.Equal(t, 4.0, traj[i].Value)
		if i > 0 {
			assert.GreaterOrEqual(t, vol[i].Value, vol[i-1].Value)
		}
	}
	assert.Equal(t, []string{NameTrajectory, NameHeartRate, NameVolume}, b.Scalars())
}

func TestBehaviorChannels(t *testing.T) {
	in := inputs(t, tetraStore(t, 60, 0.5), heartRate(t, 5, 50), walkAndEat)

	b, err := Aligner{}.Align(in)
	require.NoError(t, err)

	walk := behavior.Key{Subject: "S1", Behavior: "walk"}
	eat := behavior.Key{Subject: "S1", Behavior: "eat"}
	assert.Equal(t, []behavior.Key{walk, eat}, b.Channels())

	assert.True(t, b.ActiveAt(walk, 10))
	assert.False(t, b.ActiveAt(walk, 20))
	assert.False(t, b.ActiveAt(eat, 54))
	assert.True(t, b.ActiveAt(eat, 59.5))

	eats := b.Channel(eat)
	require.Len(t, eats, 1)
	assert.True(t, eats[0].Unterminated)
	assert.Equal(t, 60.0, eats[0].End)

	row := b.At(20) // t=10
	assert.Equal(t, 10.0, row.Time)
	assert.Equal(t, []behavior.Key{walk}, row.Active)
	assert.Equal(t, StatusActive, row.Values[NameHeartRate].Status)
}

func TestResolutionOverride(t *testing.T) {
	in := inputs(t, tetraStore(t, 60, 0.5), heartRate(t, 5, 50), walkAndEat)

	b, err := Aligner{Resolution: 7}.Align(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7, 14, 21, 28, 35, 42, 49, 56, 60}, b.Axis)
}

func TestEmptyTrial(t *testing.T) {
	store := tetraStore(t, 10, 1)

	in := inputs(t, store, heartRate(t), walkAndEat[:2])
	_, err := Aligner{}.Align(in)
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)

	in = inputs(t, store, heartRate(t, 1, 2), walkAndEat[:2])
	in.Behavior = nil
	_, err = Aligner{}.Align(in)
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)

	in = inputs(t, store, heartRate(t, 1, 2), nil)
	_, err = Aligner{}.Align(in)
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)
}

func TestNonOverlappingSources(t *testing.T) {
	in := inputs(t, tetraStore(t, 60, 0.5), heartRate(t, 100, 110), walkAndEat)

	b, err := Aligner{}.Align(in)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, trialerr.ErrNonOverlappingSources)
	var te *trialerr.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "heart_rate vs trajectory", te.Record)
}

func TestBehaviorStatusOutsideObservationLog(t *testing.T) {
	events := []behavior.Event{
		{Subject: "S1", Behavior: "walk", Kind: behavior.KindStart, Time: 10, Record: 0},
		{Subject: "S1", Behavior: "walk", Kind: behavior.KindStop, Time: 20, Record: 1},
		{Subject: "S1", Behavior: "eat", Kind: behavior.KindStart, Time: 25, Record: 2},
		{Subject: "S1", Behavior: "eat", Kind: behavior.KindStop, Time: 30, Record: 3},
	}
	in := inputs(t, tetraStore(t, 60, 0.5), heartRate(t, 0, 60), events)

	b, err := Aligner{}.Align(in)
	require.NoError(t, err)
	start, end := b.BehaviorRange()
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 30.0, end)

	before := b.At(10) // t=5
	assert.Equal(t, StatusNotStarted, before.Behavior)
	assert.Empty(t, before.Active)

	idle := b.At(44) // t=22, observed but nothing active
	assert.Equal(t, StatusActive, idle.Behavior)
	assert.Empty(t, idle.Active)

	during := b.At(30) // t=15
	assert.Equal(t, StatusActive, during.Behavior)
	assert.Equal(t, []behavior.Key{{Subject: "S1", Behavior: "walk"}}, during.Active)

	after := b.At(80) // t=40
	assert.Equal(t, StatusEnded, after.Behavior)
	assert.Empty(t, after.Active)

	assert.Equal(t, StatusActive, b.BehaviorStatus(30))
	assert.Equal(t, StatusEnded, b.BehaviorStatus(30.5))
}

func TestPerSubjectSources(t *testing.T) {
	store := tetraStore(t, 20, 1)
	vol, err := volume.Compute(store, volume.DefaultConfig())
	require.NoError(t, err)
	s07 := testutil.HeartRateSeries(t, "S07", 60, 0, 10, 20)
	s08 := testutil.HeartRateSeries(t, "S08", 110, 0, 5, 20)
	events := walkAndEat[:2]
	res, err := behavior.NewReconstructor(behavior.DefaultConfig()).Reconstruct(events, 20)
	require.NoError(t, err)

	in := Inputs{
		Trajectory: NewTrajectorySource(store),
		HeartRate: []ScalarSource{
			NewStepSeries(SourceName(NameHeartRate, "S07"), s07),
			NewStepSeries(SourceName(NameHeartRate, "S08"), s08),
		},
		Volume: []ScalarSource{
			NewCumulativeSeries(SourceName(NameVolume, "S07"), vol),
			NewCumulativeSeries(SourceName(NameVolume, "S08"), vol),
		},
		Behavior: NewIntervalSeries(NameBehavior, events, res),
	}
	b, err := Aligner{}.Align(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"heart_rate/S07", "heart_rate/S08"}, b.ScalarsOf(NameHeartRate))
	assert.Equal(t, []string{"volume/S07", "volume/S08"}, b.ScalarsOf(NameVolume))

	hr07, _ := b.Scalar("heart_rate/S07")
	hr08, _ := b.Scalar("heart_rate/S08")
	assert.Equal(t, 60.0, hr07[6].Value) // t=6 holds the t=0 reading
	assert.Equal(t, 111.0, hr08[6].Value)

	in.Volume[1] = in.Volume[0]
	_, err = Aligner{}.Align(in)
	assert.ErrorIs(t, err, trialerr.ErrMalformedSamples)

	in.Volume = nil
	_, err = Aligner{}.Align(in)
	assert.ErrorIs(t, err, trialerr.ErrEmptyTrial)
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "heart_rate", SourceName(NameHeartRate, ""))
	assert.Equal(t, "heart_rate/S07", SourceName(NameHeartRate, "S07"))

	base, subject := SplitSourceName("volume/S08")
	assert.Equal(t, NameVolume, base)
	assert.Equal(t, "S08", subject)
	base, subject = SplitSourceName("trajectory")
	assert.Equal(t, NameTrajectory, base)
	assert.Empty(t, subject)
}

func TestBuildAxis(t *testing.T) {
	axis, err := buildAxis(3, 3, 0.1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, axis)

	axis, err = buildAxis(0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, axis)

	_, err = buildAxis(0, 1e6, 1e-6)
	assert.ErrorIs(t, err, trialerr.ErrOutOfRange)
}

func TestMedianPeriod(t *testing.T) {
	assert.Equal(t, 0.0, medianPeriod([]float64{1}))
	assert.Equal(t, 1.0, medianPeriod([]float64{0, 1, 2, 3, 10}))
}
