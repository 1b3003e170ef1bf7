// Package logrus adapts a *logrus.Entry to cachecore.Logger.
package logrus

import (
	"github.com/goforj/nscache/cachecore"
	"github.com/sirupsen/logrus"
)

var _ cachecore.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps the standard logger when l is nil.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f cachecore.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f cachecore.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cachecore.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cachecore.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
