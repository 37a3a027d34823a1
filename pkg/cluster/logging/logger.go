// Package logging provides the default types.Logger implementation,
// backed by sirupsen/logrus the way the teacher's transport layer reached
// for prometheus/common/log rather than the bare standard library
// "log" package for anything that crosses a component boundary.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// Logrus adapts a *logrus.Entry to the types.Logger interface.
type Logrus struct {
	entry *logrus.Entry
}

// New returns a Logrus logger writing to stderr with the given fields
// attached to every line (typically the local NodeId).
func New(fields logrus.Fields) *Logrus {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logrus{entry: base.WithFields(fields)}
}

// WithField returns a derived logger with an additional field attached,
// used to tag log lines with e.g. the event kind being dispatched.
func (l *Logrus) WithField(key string, value interface{}) *Logrus {
	return &Logrus{entry: l.entry.WithField(key, value)}
}

func (l *Logrus) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *Logrus) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *Logrus) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *Logrus) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *Logrus) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }

var _ types.Logger = (*Logrus)(nil)
