package loader

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/trial.report/internal/heartrate"
	"github.com/banshee-data/trial.report/internal/trialerr"
)

// ReadHeartRate parses a long-format table with subject, time and bpm
// columns. Rows with an empty bpm are gaps and are skipped.
func ReadHeartRate(r io.Reader) ([]heartrate.Sample, error) {
	cr := newReader(r)
	header, line, err := findHeader(cr, func(rec []string) bool {
		cols := columnIndex(rec)
		_, hasTime := cols["time"]
		_, hasBPM := cols["bpm"]
		return hasTime && hasBPM
	})
	if err != nil {
		return nil, trialerr.New(trialerr.ComponentLoader, "heartrate", trialerr.ErrMalformedSamples, "%v", err)
	}
	cols := columnIndex(header)
	subjCol, ok := cols["subject"]
	if !ok {
		subjCol = -1
	}

	var samples []heartrate.Sample
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples, "%v", err)
		}
		if blank(rec) {
			continue
		}
		t, tMissing, err := parseCell(field(rec, cols["time"]))
		if err != nil || tMissing {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples,
				"bad time %q", field(rec, cols["time"]))
		}
		bpm, missing, err := parseCell(field(rec, cols["bpm"]))
		if err != nil {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples,
				"bad bpm %q", field(rec, cols["bpm"]))
		}
		if missing {
			continue
		}
		samples = append(samples, heartrate.Sample{Subject: field(rec, subjCol), Time: t, BPM: bpm})
	}
	return samples, nil
}

// WorkbookColumn addresses one column of a heart-rate workbook export, whose
// three header rows name the trial, volume and attempt.
type WorkbookColumn struct {
	Trial   string
	Volume  string
	Attempt string
}

// ReadHeartRateWorkbook reads one column of a per-subject workbook. Rows are
// indexed from 1 and taken period seconds apart; blank cells are gaps.
// Header cells left blank inherit the value to their left, as merged
// spreadsheet cells export that way.
func ReadHeartRateWorkbook(r io.Reader, subject string, col WorkbookColumn, period float64) ([]heartrate.Sample, error) {
	cr := newReader(r)
	var levels [3][]string
	for i := range levels {
		rec, err := cr.Read()
		if err != nil {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(i+1), trialerr.ErrMalformedSamples,
				"workbook header: %v", err)
		}
		levels[i] = fillRight(rec)
	}

	target := -1
	for j := 1; j < len(levels[0]); j++ {
		if cell(levels[0], j) == col.Trial && cell(levels[1], j) == col.Volume && cell(levels[2], j) == col.Attempt {
			target = j
			break
		}
	}
	if target < 0 {
		return nil, trialerr.New(trialerr.ComponentLoader, "heartrate", trialerr.ErrEmptyTrial,
			"no workbook column %s/%s/%s", col.Trial, col.Volume, col.Attempt)
	}

	var bpm []float64
	for line := 4; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples, "%v", err)
		}
		idx, err := strconv.Atoi(field(rec, 0))
		if err != nil || idx < 1 {
			continue
		}
		v, _, err := parseCell(field(rec, target))
		if err != nil {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples,
				"bad bpm %q", field(rec, target))
		}
		for len(bpm) < idx-1 {
			bpm = append(bpm, math.NaN())
		}
		if len(bpm) >= idx {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples,
				"row index %d out of order", idx)
		}
		bpm = append(bpm, v)
	}

	series, err := heartrate.FromIndexed(subject, 0, period, bpm)
	if err != nil {
		return nil, err
	}
	return series.Samples(), nil
}

func fillRight(rec []string) []string {
	out := make([]string, len(rec))
	prev := ""
	for i, c := range rec {
		c = strings.TrimSpace(strings.TrimPrefix(c, bom))
		if c == "" || strings.HasPrefix(c, "Unnamed") {
			c = prev
		}
		out[i], prev = c, c
	}
	return out
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// TrialName is a parsed trial identifier such as MVOL_S08_02_CPU_RFT_1:
// study, subject, session, then the workbook trial, volume and attempt.
type TrialName struct {
	Study   string
	Subject string
	Session string
	Column  WorkbookColumn
}

// ParseTrialName splits an underscore-separated trial identifier.
func ParseTrialName(name string) (TrialName, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 6 {
		return TrialName{}, fmt.Errorf("trial name %q: want 6 underscore-separated fields, got %d", name, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return TrialName{}, fmt.Errorf("trial name %q: field %d is empty", name, i+1)
		}
	}
	return TrialName{
		Study:   parts[0],
		Subject: parts[1],
		Session: parts[2],
		Column:  WorkbookColumn{Trial: parts[3], Volume: parts[4], Attempt: parts[5]},
	}, nil
}
