// Package monitoring owns the diagnostic log streams used by the trial
// pipeline.
//
// Three streams are kept apart so a batch run can surface trial failures
// without drowning them in per-frame detail:
//   - Ops: lifecycle events and trial failures
//   - Diag: recoverable anomalies (duplicate starts, stray stops, degenerate frames)
//   - Trace: per-frame and per-sample telemetry
//
// Every stream is off until SetLogWriters is called, except Ops, which
// defaults to Logf.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level fallback logger used by Opsf when no Ops writer
// has been configured. It defaults to log.Printf and may be replaced by
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the fallback logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger("[trial] ", w.Ops)
	diagLogger = newLogger("[trial] ", w.Diag)
	traceLogger = newLogger("[trial] ", w.Trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream, falling back to Logf when unset.
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
		return
	}
	Logf(format, args...)
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
