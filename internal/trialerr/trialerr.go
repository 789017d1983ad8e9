// Package trialerr defines the failure taxonomy shared by every stage of the
// trial pipeline. Each failure is fatal to the trial it occurred in, but never
// to the batch it was part of.
package trialerr

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. Match them with errors.Is.
var (
	ErrMalformedTrajectoryData = errors.New("malformed trajectory data")
	ErrInsufficientGeometry    = errors.New("insufficient geometry")
	ErrUnknownEventKind        = errors.New("unknown event kind")
	ErrOutOfRange              = errors.New("out of range")
	ErrEmptyTrial              = errors.New("empty trial")
	ErrNonOverlappingSources   = errors.New("non-overlapping sources")
	ErrMalformedSamples        = errors.New("malformed samples")
)

// Component names used in Error.Component.
const (
	ComponentTrajectory = "trajectory"
	ComponentVolume     = "volume"
	ComponentBehavior   = "behavior"
	ComponentHeartRate  = "heartrate"
	ComponentTimeline   = "timeline"
	ComponentLoader     = "loader"
)

// Error reports a trial failure with enough context to find the offending
// record: the trial name, the component that failed and a record identifier
// (frame index, event row, sample time, source name).
type Error struct {
	Trial     string
	Component string
	Record    string
	Err       error
	Detail    string
}

// New builds an Error. kind should be one of the sentinel values above.
func New(component, record string, kind error, format string, args ...interface{}) *Error {
	return &Error{
		Component: component,
		Record:    record,
		Err:       kind,
		Detail:    fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	prefix := e.Component
	if e.Record != "" {
		prefix += "[" + e.Record + "]"
	}
	if e.Trial != "" {
		if prefix == "" {
			prefix = "trial " + e.Trial
		} else {
			prefix = "trial " + e.Trial + ": " + prefix
		}
	}
	if prefix == "" {
		return msg
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithTrial stamps the trial name onto err. If err is not an *Error it is
// wrapped in one with an empty component so callers can still read the trial.
func WithTrial(err error, trial string) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Trial == "" {
			te.Trial = trial
		}
		return err
	}
	return &Error{Trial: trial, Err: err}
}
