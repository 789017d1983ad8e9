package behavior

import (
	"math"
	"sort"

	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/trialerr"
)

// State is the per-channel state of the reconstructor.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// AnomalyKind classifies a recoverable problem in the event log.
type AnomalyKind string

const (
	AnomalyDuplicateStart   AnomalyKind = "duplicate_start"    // start while already active
	AnomalyStrayStop        AnomalyKind = "stray_stop"         // stop while idle
	AnomalyZeroLength       AnomalyKind = "zero_length"        // interval with no duration
	AnomalyOutOfOrder       AnomalyKind = "out_of_order"       // earlier than the channel's previous event
	AnomalyPointWhileActive AnomalyKind = "point_while_active" // point event on an active channel
	AnomalyPointTrimmed     AnomalyKind = "point_trimmed"      // point interval cut short by the channel's next interval
)

// Anomaly records an event that was ignored, or whose interval was trimmed.
type Anomaly struct {
	Kind  AnomalyKind
	Event Event
}

// Config holds reconstruction parameters (seconds).
type Config struct {
	PointDuration float64 // width of point-event intervals
	MergeGap      float64 // merge same-channel intervals separated by at most this; 0 disables
}

// DefaultConfig returns the production-default configuration.
func DefaultConfig() Config {
	return Config{PointDuration: 0.1}
}

// Reconstructor converts event logs into intervals. It holds no state between
// calls, so one instance may be reused across trials.
type Reconstructor struct {
	cfg Config
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(cfg Config) *Reconstructor {
	return &Reconstructor{cfg: cfg}
}

type channel struct {
	state    State
	open     Event
	lastTime float64
	seen     bool
	out      []pending
}

// pending is an interval awaiting trimming, with the event that opened it.
type pending struct {
	iv Interval
	ev Event
}

// Reconstruct runs the per-channel state machine over events, in the order
// given. Intervals still open at the end are closed at trialEnd and marked
// Unterminated.
func (r *Reconstructor) Reconstruct(events []Event, trialEnd float64) (*Result, error) {
	if math.IsNaN(trialEnd) || math.IsInf(trialEnd, 0) {
		return nil, trialerr.New(trialerr.ComponentBehavior, "", trialerr.ErrMalformedSamples, "non-finite trial end")
	}

	res := &Result{}
	channels := make(map[Key]*channel)

	for _, ev := range events {
		switch ev.Kind {
		case KindStart, KindStop, KindPoint:
		default:
			return nil, trialerr.New(trialerr.ComponentBehavior, ev.record(), trialerr.ErrUnknownEventKind,
				"%q for %s", ev.Kind, ev.Key())
		}
		if math.IsNaN(ev.Time) || math.IsInf(ev.Time, 0) {
			return nil, trialerr.New(trialerr.ComponentBehavior, ev.record(), trialerr.ErrMalformedSamples,
				"non-finite time for %s", ev.Key())
		}

		key := ev.Key()
		ch, ok := channels[key]
		if !ok {
			ch = &channel{state: StateIdle}
			channels[key] = ch
			res.channels = append(res.channels, key)
		}

		if ch.seen && ev.Time < ch.lastTime {
			res.note(AnomalyOutOfOrder, ev)
			continue
		}
		ch.seen = true
		ch.lastTime = ev.Time

		switch {
		case ev.Kind == KindPoint && ch.state == StateActive:
			res.note(AnomalyPointWhileActive, ev)
		case ev.Kind == KindPoint:
			ch.out = append(ch.out, pending{iv: Interval{
				Subject: ev.Subject, Behavior: ev.Behavior,
				Start: ev.Time, End: ev.Time + r.cfg.PointDuration,
				Point: true,
			}, ev: ev})
		case ev.Kind == KindStart && ch.state == StateIdle:
			ch.state = StateActive
			ch.open = ev
		case ev.Kind == KindStart:
			res.note(AnomalyDuplicateStart, ev)
		case ev.Kind == KindStop && ch.state == StateActive:
			ch.state = StateIdle
			if ev.Time <= ch.open.Time {
				res.note(AnomalyZeroLength, ev)
				continue
			}
			ch.out = append(ch.out, pending{
				iv: Interval{Subject: ev.Subject, Behavior: ev.Behavior, Start: ch.open.Time, End: ev.Time},
				ev: ch.open,
			})
		default:
			res.note(AnomalyStrayStop, ev)
		}
	}

	for _, key := range res.channels {
		ch := channels[key]
		if ch.state == StateActive {
			end := math.Max(trialEnd, ch.open.Time)
			ch.out = append(ch.out, pending{iv: Interval{
				Subject: key.Subject, Behavior: key.Behavior,
				Start: ch.open.Time, End: end,
				Unterminated: true,
			}, ev: ch.open})
			monitoring.Diagf("behavior: %s still active at end of log, closed at %.3fs", key, end)
		}
		res.Intervals = append(res.Intervals, r.finish(res, ch.out)...)
	}

	sort.SliceStable(res.Intervals, func(a, b int) bool {
		ia, ib := res.Intervals[a], res.Intervals[b]
		if ia.Start != ib.Start {
			return ia.Start < ib.Start
		}
		if ia.Subject != ib.Subject {
			return ia.Subject < ib.Subject
		}
		return ia.Behavior < ib.Behavior
	})
	return res, nil
}

// finish trims overlapping point intervals and applies gap merging within a
// single channel. Only point intervals can overlap their successor; a trim
// is recorded as AnomalyPointTrimmed, and a point cut down to nothing is
// dropped as AnomalyZeroLength.
func (r *Reconstructor) finish(res *Result, in []pending) []Interval {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(a, b int) bool { return in[a].iv.Start < in[b].iv.Start })

	out := []pending{in[0]}
	for _, next := range in[1:] {
		cur := &out[len(out)-1]
		if next.iv.Start < cur.iv.End {
			if next.iv.Start <= cur.iv.Start {
				res.note(AnomalyZeroLength, cur.ev)
				out = out[:len(out)-1]
				if len(out) == 0 {
					out = append(out, next)
					continue
				}
				cur = &out[len(out)-1]
			} else {
				cur.iv.End = next.iv.Start
				res.trimmed(cur.ev, cur.iv.End)
			}
		}
		if r.cfg.MergeGap > 0 && !cur.iv.Point && !next.iv.Point && next.iv.Start-cur.iv.End <= r.cfg.MergeGap {
			cur.iv.End = next.iv.End
			cur.iv.Unterminated = next.iv.Unterminated
			continue
		}
		out = append(out, next)
	}

	ivs := make([]Interval, len(out))
	for i, p := range out {
		ivs[i] = p.iv
	}
	return ivs
}

// Result holds the intervals and anomalies of one reconstruction.
type Result struct {
	Intervals []Interval // ordered by start time, then subject, then behaviour
	Anomalies []Anomaly
	channels  []Key
}

func (res *Result) note(kind AnomalyKind, ev Event) {
	res.Anomalies = append(res.Anomalies, Anomaly{Kind: kind, Event: ev})
	monitoring.Diagf("behavior: %s for %s at %.3fs (record %d), ignored", kind, ev.Key(), ev.Time, ev.Record)
}

func (res *Result) trimmed(ev Event, end float64) {
	res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyPointTrimmed, Event: ev})
	monitoring.Diagf("behavior: %s for %s at %.3fs (record %d), cut to end at %.3fs",
		AnomalyPointTrimmed, ev.Key(), ev.Time, ev.Record, end)
}

// Channels returns every (subject, behaviour) pair in first-seen order.
func (res *Result) Channels() []Key { return append([]Key(nil), res.channels...) }

// Subjects returns the distinct subjects in first-seen order.
func (res *Result) Subjects() []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range res.channels {
		if !seen[k.Subject] {
			seen[k.Subject] = true
			out = append(out, k.Subject)
		}
	}
	return out
}

// BySubject returns the subject's intervals ordered by start time.
func (res *Result) BySubject(subject string) []Interval {
	var out []Interval
	for _, iv := range res.Intervals {
		if iv.Subject == subject {
			out = append(out, iv)
		}
	}
	return out
}

// ForKey returns one channel's intervals ordered by start time.
func (res *Result) ForKey(key Key) []Interval {
	var out []Interval
	for _, iv := range res.Intervals {
		if iv.Key() == key {
			out = append(out, iv)
		}
	}
	return out
}

// AnomalyCount returns how many events of the given kind were ignored.
func (res *Result) AnomalyCount(kind AnomalyKind) int {
	n := 0
	for _, a := range res.Anomalies {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// TimeRange returns the earliest start and latest end over all intervals.
// ok is false when there are no intervals.
func (res *Result) TimeRange() (start, end float64, ok bool) {
	if len(res.Intervals) == 0 {
		return 0, 0, false
	}
	start, end = math.Inf(1), math.Inf(-1)
	for _, iv := range res.Intervals {
		start = math.Min(start, iv.Start)
		end = math.Max(end, iv.End)
	}
	return start, end, true
}

// EventTimeRange returns the earliest and latest event times. ok is false
// for an empty log.
func EventTimeRange(events []Event) (start, end float64, ok bool) {
	if len(events) == 0 {
		return 0, 0, false
	}
	start, end = math.Inf(1), math.Inf(-1)
	for _, ev := range events {
		start = math.Min(start, ev.Time)
		end = math.Max(end, ev.Time)
	}
	return start, end, true
}
