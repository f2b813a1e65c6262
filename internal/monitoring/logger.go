// Package monitoring holds the diagnostic logger shared by the device packages.
package monitoring

import (
	"fmt"
	"log"
	"log/slog"
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

// SlogLogf adapts a structured logger to the Logf signature. Messages are
// emitted at info level with a component attribute.
func SlogLogf(l *slog.Logger, component string) func(format string, v ...interface{}) {
	if l == nil {
		l = slog.Default()
	}
	l = l.With("component", component)
	return func(format string, v ...interface{}) {
		l.Info(fmt.Sprintf(format, v...))
	}
}
