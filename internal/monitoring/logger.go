// Package monitoring holds the diagnostic logger shared by the analysis
// stages.
package monitoring

import (
	"log"
	"time"

	"github.com/banshee-data/charges.report/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// clock times the stages; tests swap in a timeutil.MockClock.
var clock timeutil.Clock = timeutil.RealClock{}

// Stage logs the start of a named pipeline stage and returns a func that
// logs its completion and elapsed time. Typical use:
//
//	defer monitoring.Stage("fit additive")()
func Stage(name string) func() {
	start := clock.Now()
	Logf("[%s] start", name)
	return func() {
		Logf("[%s] done in %s", name, clock.Since(start).Round(time.Millisecond))
	}
}

// Warnf logs an advisory condition that does not stop the run.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
