// Package netlog wires github.com/sirupsen/logrus into netrt the way the
// retrieval pack's nestybox-sysbox-libs modules consume it: one injected
// *logrus.Logger per component, never a bare package-level logrus.Info
// call from inside library code, structured fields over formatted strings.
package netlog

import "github.com/sirupsen/logrus"

// Fields used consistently across netrt's log call sites.
const (
	FieldPrimitiveID = "primitive_id"
	FieldPass        = "pass"
	FieldKernel      = "kernel"
	FieldBuildID     = "build_id"
)

// New returns a logrus.Logger with netrt's default field order and a
// text formatter with full timestamps, matching the teacher pack's
// convention of one constructed logger per process rather than a global.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Discard returns a logger that drops everything — the default for
// components that received no WithLogger option, so library code never
// needs a nil check before logging.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
