package loader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/fsutil"
	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/security"
	"github.com/banshee-data/trial.report/internal/trial"
	"github.com/banshee-data/trial.report/internal/trialerr"
)

// Data directory layout.
const (
	TrackedDir   = "tracked_data"
	BorisDir     = "boris_data"
	HeartRateDir = "heartrate_data"

	trackedSuffix = "_tracked.csv"
)

// Dir reads trials from a data directory laid out as
//
//	tracked_data/<trial>_tracked.csv
//	boris_data/<trial>.csv
//	heartrate_data/<trial>.csv            (long format)
//	heartrate_data/HeartRate_<subject>.csv (workbook, fallback)
//
// Only the tracked file is required. A missing event or heart-rate file
// gives an empty table, which alignment reports as an empty trial.
//
// A tracked file with body markers on both sides of the fixture columns is
// a dual-caregiver trial. Its two caregivers are named by Caregivers, or
// else by the first two subjects of the observation log, and each one's
// workbook is read from HeartRate_<subject>.csv.
type Dir struct {
	FS              fsutil.FileSystem
	Root            string
	HeartRatePeriod float64  // seconds between workbook rows
	Caregivers      []string // dual-trial subjects, first caregiver first
}

// NewDir returns a Dir over the OS filesystem.
func NewDir(root string) *Dir {
	return &Dir{FS: fsutil.OSFileSystem{}, Root: root, HeartRatePeriod: 1}
}

// Trials lists the trial names that have tracked data.
func (d *Dir) Trials() ([]string, error) {
	matches, err := d.FS.Glob(filepath.Join(d.Root, TrackedDir, "*"+trackedSuffix))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), trackedSuffix))
	}
	return names, nil
}

// Load reads every table of one trial.
func (d *Dir) Load(_ context.Context, name string) (*trial.Tables, error) {
	if err := security.ValidateTrialName(name); err != nil {
		return nil, fmt.Errorf("invalid trial name: %w", err)
	}
	tables := &trial.Tables{}

	path, err := security.JoinWithin(d.Root, TrackedDir, name+trackedSuffix)
	if err != nil {
		return nil, err
	}
	if !d.FS.Exists(path) {
		return nil, trialerr.New(trialerr.ComponentLoader, path, trialerr.ErrEmptyTrial, "no tracked data")
	}
	err = d.read(path, func(r io.Reader) (err error) {
		tables.Markers, tables.Frames, err = ReadTracked(r)
		return
	})
	if err != nil {
		return nil, err
	}

	path, err = security.JoinWithin(d.Root, BorisDir, name+".csv")
	if err != nil {
		return nil, err
	}
	if d.FS.Exists(path) {
		err = d.read(path, func(r io.Reader) (err error) {
			tables.Events, err = ReadEvents(r)
			return
		})
		if err != nil {
			return nil, err
		}
	} else {
		monitoring.Diagf("loader: %s: no observation file at %s", name, path)
	}

	var subjects []string
	if groups := SplitCaregivers(tables.Markers); len(groups) == 2 {
		subjects = d.caregiverSubjects(name, tables.Events)
		for i, g := range groups {
			tables.Caregivers = append(tables.Caregivers, trial.Caregiver{Subject: subjects[i], Markers: g})
		}
		monitoring.Diagf("loader: %s: dual caregivers %s (%d markers) and %s (%d markers)",
			name, subjects[0], len(groups[0]), subjects[1], len(groups[1]))
	}

	if tables.HeartRate, err = d.loadHeartRate(name, subjects); err != nil {
		return nil, err
	}
	return tables, nil
}

// caregiverSubjects names the two caregivers of a dual trial.
func (d *Dir) caregiverSubjects(name string, events []behavior.Event) []string {
	if len(d.Caregivers) == 2 {
		return append([]string(nil), d.Caregivers...)
	}
	var subjects []string
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.Subject != "" && !seen[ev.Subject] {
			seen[ev.Subject] = true
			subjects = append(subjects, ev.Subject)
		}
	}
	if len(subjects) >= 2 {
		return subjects[:2]
	}
	monitoring.Opsf("loader: %s: dual-caregiver markers but no caregivers configured, naming them caregiver1 and caregiver2", name)
	return []string{"caregiver1", "caregiver2"}
}

// loadHeartRate reads the trial's long-format table, or else the workbook
// column of each subject. subjects is empty for a single-caregiver trial,
// whose subject comes from the trial name.
func (d *Dir) loadHeartRate(name string, subjects []string) ([]heartrate.Sample, error) {
	long, err := security.JoinWithin(d.Root, HeartRateDir, name+".csv")
	if err != nil {
		return nil, err
	}
	if d.FS.Exists(long) {
		var samples []heartrate.Sample
		err := d.read(long, func(r io.Reader) (err error) {
			samples, err = ReadHeartRate(r)
			return
		})
		return samples, err
	}

	tn, err := ParseTrialName(name)
	if err != nil {
		monitoring.Diagf("loader: %s: no heart-rate file and %v", name, err)
		return nil, nil
	}
	if len(subjects) == 0 {
		subjects = []string{tn.Subject}
	}
	period := d.HeartRatePeriod
	if !(period > 0) {
		period = 1
	}

	var all []heartrate.Sample
	for _, subject := range subjects {
		if err := security.ValidateTrialName(subject); err != nil {
			return nil, fmt.Errorf("invalid subject: %w", err)
		}
		wb, err := security.JoinWithin(d.Root, HeartRateDir, "HeartRate_"+subject+".csv")
		if err != nil {
			return nil, err
		}
		if !d.FS.Exists(wb) {
			monitoring.Diagf("loader: %s: no heart-rate workbook for %s", name, subject)
			continue
		}
		var samples []heartrate.Sample
		err = d.read(wb, func(r io.Reader) (err error) {
			samples, err = ReadHeartRateWorkbook(r, subject, tn.Column, period)
			return
		})
		if err != nil {
			return nil, err
		}
		all = append(all, samples...)
	}
	return all, nil
}

func (d *Dir) read(path string, parse func(io.Reader) error) error {
	f, err := d.FS.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := parse(f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
