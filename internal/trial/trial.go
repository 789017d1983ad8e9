// Package trial threads one trial's raw tables through the derivation
// pipeline and runs batches of trials concurrently.
package trial

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/config"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/mocap"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/timeline"
	"github.com/banshee-data/trial.report/internal/timeutil"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"github.com/banshee-data/trial.report/internal/volume"
)

// Tables are the raw per-trial inputs handed over by a loader.
type Tables struct {
	Markers   []string
	Frames    []mocap.Frame
	Events    []behavior.Event
	HeartRate []heartrate.Sample // long format, any number of subjects

	// Caregivers splits the markers of a dual-caregiver trial. Empty for a
	// single-caregiver trial, whose volume uses every body marker.
	Caregivers []Caregiver
}

// Caregiver assigns the markers tracked on one subject.
type Caregiver struct {
	Subject string
	Markers []string
}

// Trial is one recorded session after load and derivation. It is not
// modified once Run returns it.
type Trial struct {
	Name       string
	Store      *mocap.Store
	Events     []behavior.Event
	HeartRates []*heartrate.Series // one per subject
	Volumes    []Volume            // one per caregiver
	Behavior   *behavior.Result
}

// Volume is the cumulative volume of one caregiver. Subject is empty for a
// single-caregiver trial.
type Volume struct {
	Subject string
	*volume.Series
}

// HeartRate returns the heart-rate series of subject.
func (t *Trial) HeartRate(subject string) (*heartrate.Series, bool) {
	for _, s := range t.HeartRates {
		if s.Subject() == subject {
			return s, true
		}
	}
	return nil, false
}

// DegenerateFrames sums the degenerate frames of every caregiver's volume.
func (t *Trial) DegenerateFrames() int {
	n := 0
	for _, v := range t.Volumes {
		n += v.DegenerateFrames()
	}
	return n
}

// End returns the latest time any source reaches.
func (t *Trial) End() float64 {
	_, end := t.Store.TimeRange()
	for _, hr := range t.HeartRates {
		if hr.Len() > 0 {
			_, hrEnd := hr.TimeRange()
			end = math.Max(end, hrEnd)
		}
	}
	if _, evEnd, ok := behavior.EventTimeRange(t.Events); ok {
		end = math.Max(end, evEnd)
	}
	return end
}

// Result is a completed trial run.
type Result struct {
	Trial            *Trial
	Bundle           *timeline.Bundle
	DegenerateFrames int
	Anomalies        int
	Elapsed          time.Duration
}

// Pipeline derives and aligns a single trial.
type Pipeline struct {
	cfg *config.PipelineConfig

	// BodyMarkers selects the markers that contribute to volume when the
	// configuration asks for body markers only. Nil keeps every marker.
	BodyMarkers func(marker string) bool

	Clock timeutil.Clock
}

// NewPipeline returns a pipeline using cfg. A nil cfg uses defaults.
func NewPipeline(cfg *config.PipelineConfig) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	return &Pipeline{cfg: cfg, Clock: timeutil.RealClock{}}
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() *config.PipelineConfig { return p.cfg }

// Run loads, derives and aligns one trial. Trajectory load precedes volume,
// event reconstruction precedes alignment, and any failure aborts the trial
// with the trial name attached to the error.
func (p *Pipeline) Run(ctx context.Context, name string, tables *Tables) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := p.Clock.Now()
	res, err := p.run(name, tables)
	if err != nil {
		return nil, trialerr.WithTrial(err, name)
	}
	res.Elapsed = p.Clock.Since(started)
	monitoring.Opsf("trial %s: aligned %d points in %v (%d degenerate frames, %d anomalies)",
		name, res.Bundle.Len(), res.Elapsed, res.DegenerateFrames, res.Anomalies)
	return res, nil
}

func (p *Pipeline) run(name string, tables *Tables) (*Result, error) {
	if tables == nil {
		tables = &Tables{}
	}
	tr := &Trial{Name: name, Events: tables.Events}

	store, err := mocap.Load(tables.Markers, tables.Frames)
	if err != nil {
		return nil, err
	}
	tr.Store = store
	monitoring.Diagf("trial %s: trajectory %s", name, store)

	caregivers := tables.Caregivers
	if len(caregivers) == 0 {
		caregivers = []Caregiver{{}}
	}
	for _, cg := range caregivers {
		v, err := p.volume(store, cg)
		if err != nil {
			return nil, err
		}
		tr.Volumes = append(tr.Volumes, Volume{Subject: cg.Subject, Series: v})
	}

	if tr.HeartRates, err = heartrate.BySubject(tables.HeartRate); err != nil {
		return nil, err
	}

	rec := behavior.NewReconstructor(behavior.Config{
		PointDuration: p.cfg.GetPointDuration(),
		MergeGap:      p.cfg.GetMergeGap(),
	})
	if tr.Behavior, err = rec.Reconstruct(tr.Events, tr.End()); err != nil {
		return nil, err
	}
	for _, a := range tr.Behavior.Anomalies {
		monitoring.Diagf("trial %s: %s at %.3fs for %s (record %d)", name, a.Kind, a.Event.Time, a.Event.Key(), a.Event.Record)
	}

	in := timeline.Inputs{
		Trajectory: timeline.NewTrajectorySource(store),
		Behavior:   timeline.NewIntervalSeries(timeline.NameBehavior, tr.Events, tr.Behavior),
	}
	for _, hr := range tr.HeartRates {
		in.HeartRate = append(in.HeartRate, timeline.NewStepSeries(timeline.SourceName(timeline.NameHeartRate, hr.Subject()), hr))
	}
	for _, v := range tr.Volumes {
		in.Volume = append(in.Volume, timeline.NewCumulativeSeries(timeline.SourceName(timeline.NameVolume, v.Subject), v.Series))
	}
	bundle, err := timeline.Aligner{Resolution: p.cfg.GetAxisResolution()}.Align(in)
	if err != nil {
		return nil, err
	}

	return &Result{
		Trial:            tr,
		Bundle:           bundle,
		DegenerateFrames: tr.DegenerateFrames(),
		Anomalies:        len(tr.Behavior.Anomalies),
	}, nil
}

// volume computes one caregiver's cumulative volume. A caregiver with no
// markers listed uses every marker, or every body marker when the
// configuration asks for that.
func (p *Pipeline) volume(store *mocap.Store, cg Caregiver) (*volume.Series, error) {
	var err error
	switch {
	case len(cg.Markers) > 0:
		tracked := make(map[string]bool)
		for _, m := range store.Markers() {
			tracked[m] = true
		}
		own := make(map[string]bool, len(cg.Markers))
		for _, m := range cg.Markers {
			if !tracked[m] {
				return nil, trialerr.New(trialerr.ComponentTrajectory, cg.Subject, trialerr.ErrMalformedTrajectoryData,
					"caregiver marker %q is not in the trajectory", m)
			}
			own[m] = true
		}
		if store, err = store.Filter(func(m string) bool { return own[m] }); err != nil {
			return nil, err
		}
		monitoring.Diagf("volume: caregiver %s tracked by %d markers", cg.Subject, len(store.Markers()))
	case p.BodyMarkers != nil && p.cfg.GetBodyMarkersOnly():
		if store, err = store.Filter(p.BodyMarkers); err != nil {
			return nil, err
		}
	}
	return volume.Compute(store, volume.Config{
		Epsilon: p.cfg.GetHullEpsilon(),
		Stride:  p.cfg.GetVolumeStride(),
		Mode:    volume.Mode(p.cfg.GetVolumeMode()),
	})
}
