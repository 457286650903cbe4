// Package logging generalizes the teacher's hand-rolled leveled Logger
// (pkg/mcast/types.Logger / definition.DefaultLogger) into a structured
// logger backed by github.com/prometheus/common/log, the package the
// teacher imports directly in pkg/mcast/core/transport.go.
package logging

import (
	"fmt"

	plog "github.com/prometheus/common/log"
)

// Logger is the leveled logging surface used across the node: peers,
// storage, and the HTTP layer all take one of these rather than reaching
// for a global.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// With returns a child logger that tags every subsequent line with the
	// given key, e.g. Logger.With("peer", id.String()).
	With(key string, value interface{}) Logger
}

// plogLogger adapts prometheus/common/log.Logger to the Logger interface,
// accumulating fields the way the teacher's DefaultLogger accumulates a
// fixed prefix.
type plogLogger struct {
	base plog.Logger
}

// New creates the default Logger, writing to stderr via prometheus/common/log.
func New() Logger {
	return &plogLogger{base: plog.Base()}
}

func (l *plogLogger) Debugf(format string, v ...interface{}) { l.base.Debugf(format, v...) }
func (l *plogLogger) Infof(format string, v ...interface{})  { l.base.Infof(format, v...) }
func (l *plogLogger) Warnf(format string, v ...interface{})  { l.base.Warnf(format, v...) }
func (l *plogLogger) Errorf(format string, v ...interface{}) { l.base.Errorf(format, v...) }

func (l *plogLogger) With(key string, value interface{}) Logger {
	return &plogLogger{base: l.base.With(key, fmt.Sprintf("%v", value))}
}

// Nop is a Logger that discards everything, useful in tests that don't
// care about log output.
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}
func (Nop) With(string, interface{}) Logger { return Nop{} }
