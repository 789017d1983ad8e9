package loader

import (
	"errors"
	"io"
	"strings"

	"github.com/banshee-data/trial.report/internal/behavior"
	"github.com/banshee-data/trial.report/internal/trialerr"
)

// ReadEvents parses a BORIS aggregated-events export. The preamble is
// skipped up to the row naming both Time and Behavior. Subject may be
// absent for single-subject observations.
//
// Exports without a Status column are read the way observers recorded
// them: each (subject, behaviour) alternates start, stop, start, ...
func ReadEvents(r io.Reader) ([]behavior.Event, error) {
	cr := newReader(r)
	header, line, err := findHeader(cr, func(rec []string) bool {
		cols := columnIndex(rec)
		_, hasTime := cols["time"]
		_, hasBehavior := cols["behavior"]
		return hasTime && hasBehavior
	})
	if err != nil {
		return nil, trialerr.New(trialerr.ComponentLoader, "events", trialerr.ErrMalformedSamples, "%v", err)
	}
	cols := columnIndex(header)
	timeCol, behCol := cols["time"], cols["behavior"]
	subjCol, ok := cols["subject"]
	if !ok {
		subjCol = -1
	}
	statusCol, hasStatus := cols["status"]

	var events []behavior.Event
	toggled := make(map[behavior.Key]bool)
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
		t, missing, err := parseCell(field(rec, timeCol))
		if err != nil || missing {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples,
				"bad time %q", field(rec, timeCol))
		}
		ev := behavior.Event{
			Subject:  field(rec, subjCol),
			Behavior: field(rec, behCol),
			Time:     t,
			Record:   len(events),
		}
		if ev.Behavior == "" {
			return nil, trialerr.New(trialerr.ComponentLoader, lineRecord(line), trialerr.ErrMalformedSamples, "empty behavior")
		}
		if hasStatus {
			status := field(rec, statusCol)
			k, err := behavior.ParseKind(status)
			if err != nil {
				// left for the reconstructor to reject with the record number
				k = behavior.Kind(strings.ToLower(status))
			}
			ev.Kind = k
		} else {
			key := ev.Key()
			ev.Kind = behavior.KindStart
			if toggled[key] {
				ev.Kind = behavior.KindStop
			}
			toggled[key] = !toggled[key]
		}
		events = append(events, ev)
	}
	return events, nil
}
