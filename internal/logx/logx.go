// Package logx wraps logrus with the structured-field convention used
// across every subsystem of this module: a fixed "component" field
// plus whatever per-call fields (session, remote, packet_type) the
// caller supplies.
package logx

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}()

// SetLevel adjusts the base logger's verbosity.
func SetLevel(level logrus.Level) { base.SetLevel(level) }

// For returns a logger scoped to component, e.g. "transport", "crypto",
// "acds", "nat". Every log line from the returned entry carries this
// field.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
