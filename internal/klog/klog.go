// Package klog is the core's leveled logging facade. Every subsystem logs
// through here rather than fmt.Println, the way the teacher's own (internal,
// unavailable in this tree) pkg/log wraps whatever sink it is given; this
// facade wraps logrus, the structured logger already in the corpus.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// SetOutput redirects the facade's output, mainly for tests that want to
// capture or silence log lines.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	base.SetOutput(w)
}

func Debugf(format string, args ...interface{}) { base.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { base.Infof(format, args...) }
func Warningf(format string, args ...interface{}) {
	base.Warnf(format, args...)
}

// WithFields starts a structured log entry, e.g. for a task's identity,
// which the debug/log layer (spec.md §1) consumes passively.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return base.WithFields(logrus.Fields(fields))
}
