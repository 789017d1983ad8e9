// Package behavior rebuilds continuous behaviour intervals from the discrete
// start/stop/point events of an observation log.
//
// Each (subject, behaviour) pair is an independent channel with its own
// idle/active state. Channels of the same subject may overlap; intervals of
// one channel never do.
package behavior

import (
	"strconv"
	"strings"

	"github.com/banshee-data/trial.report/internal/trialerr"
)

// Kind is the type of an observation event.
type Kind string

const (
	KindStart Kind = "start"
	KindStop  Kind = "stop"
	KindPoint Kind = "point" // instantaneous behaviour
)

// ParseKind maps an observation-log status (START, STOP, POINT in any case)
// to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindStart, KindStop, KindPoint:
		return k, nil
	}
	return "", trialerr.New(trialerr.ComponentBehavior, "", trialerr.ErrUnknownEventKind, "%q", s)
}

// Event is one row of the observation log.
type Event struct {
	Subject  string
	Behavior string
	Kind     Kind
	Time     float64 // seconds, trial-relative
	Record   int     // source row, for diagnostics
}

// Key identifies a behaviour channel.
type Key struct {
	Subject  string
	Behavior string
}

func (k Key) String() string { return k.Subject + "/" + k.Behavior }

// Key returns the channel the event belongs to.
func (e Event) Key() Key { return Key{Subject: e.Subject, Behavior: e.Behavior} }

func (e Event) record() string { return "record " + strconv.Itoa(e.Record) }

// Interval is a span during which a behaviour was active for a subject.
type Interval struct {
	Subject      string
	Behavior     string
	Start        float64
	End          float64
	Unterminated bool // still active when the log ended; End is the trial end
	Point        bool // built from a point event
}

// Key returns the channel the interval belongs to.
func (i Interval) Key() Key { return Key{Subject: i.Subject, Behavior: i.Behavior} }

// Duration returns End - Start.
func (i Interval) Duration() float64 { return i.End - i.Start }

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t float64) bool { return t >= i.Start && t < i.End }
