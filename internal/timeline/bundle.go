package timeline

import (
	"math"

	"github.com/banshee-data/trial.report/internal/behavior"
)

// Bundle is the read-only projection of every source onto a shared axis.
type Bundle struct {
	Axis       []float64
	Resolution float64
	Start, End float64
	// OverlapLo and OverlapHi bound the span every source covers.
	OverlapLo, OverlapHi float64

	scalarNames []string
	scalars     map[string][]Value
	keys        []behavior.Key
	channels    map[behavior.Key][]behavior.Interval

	behaviorStart, behaviorEnd float64
}

// Row is one axis point across every source. Active lists the channels
// covering Time and is only meaningful while Behavior is StatusActive.
type Row struct {
	Time     float64
	Values   map[string]Value
	Behavior Status
	Active   []behavior.Key
}

// Len returns the number of axis points.
func (b *Bundle) Len() int { return len(b.Axis) }

// Scalars returns the scalar source names in projection order.
func (b *Bundle) Scalars() []string { return append([]string(nil), b.scalarNames...) }

// Scalar returns the projection of the named source.
func (b *Bundle) Scalar(name string) ([]Value, bool) {
	v, ok := b.scalars[name]
	return v, ok
}

// ScalarsOf returns the scalar sources sharing a base name, such as every
// per-subject heart-rate source.
func (b *Bundle) ScalarsOf(base string) []string {
	var out []string
	for _, name := range b.scalarNames {
		if got, _ := SplitSourceName(name); got == base {
			out = append(out, name)
		}
	}
	return out
}

// BehaviorRange returns the extent of the observation log.
func (b *Bundle) BehaviorRange() (start, end float64) { return b.behaviorStart, b.behaviorEnd }

// BehaviorStatus places t relative to the observation log: before its first
// event, within it, or after its last event or interval.
func (b *Bundle) BehaviorStatus(t float64) Status {
	switch {
	case t < b.behaviorStart:
		return StatusNotStarted
	case t > b.behaviorEnd:
		return StatusEnded
	}
	return StatusActive
}

// Channels returns the behaviour channels in order of first clipped interval.
func (b *Bundle) Channels() []behavior.Key { return append([]behavior.Key(nil), b.keys...) }

// Channel returns the clipped intervals of one channel.
func (b *Bundle) Channel(key behavior.Key) []behavior.Interval {
	return append([]behavior.Interval(nil), b.channels[key]...)
}

// ActiveAt reports whether key has an interval covering t.
func (b *Bundle) ActiveAt(key behavior.Key, t float64) bool {
	for _, iv := range b.channels[key] {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// At returns the row for axis point i.
func (b *Bundle) At(i int) Row {
	t := b.Axis[i]
	row := Row{Time: t, Values: make(map[string]Value, len(b.scalarNames)), Behavior: b.BehaviorStatus(t)}
	for _, name := range b.scalarNames {
		row.Values[name] = b.scalars[name][i]
	}
	for _, k := range b.keys {
		if b.ActiveAt(k, t) {
			row.Active = append(row.Active, k)
		}
	}
	return row
}

// clip keeps the parts of intervals that fall inside the axis bounds.
func (b *Bundle) clip(intervals []behavior.Interval) {
	for _, iv := range intervals {
		if iv.End < b.Start || iv.Start > b.End {
			continue
		}
		iv.Start = math.Max(iv.Start, b.Start)
		iv.End = math.Min(iv.End, b.End)
		k := iv.Key()
		if _, seen := b.channels[k]; !seen {
			b.keys = append(b.keys, k)
		}
		b.channels[k] = append(b.channels[k], iv)
	}
}
