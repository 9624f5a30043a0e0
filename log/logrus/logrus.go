// Package logrus adapts a *logrus.Entry to mongocache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	mongocache "github.com/drgatoxd/mongo-cache"
)

var _ mongocache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "mongocache")}
}

func (l Logger) Debug(msg string, f mongocache.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f mongocache.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f mongocache.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f mongocache.Fields) { l.entry(f).Error(msg) }

func (l Logger) entry(f mongocache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			continue
		}
		lf[k] = v
	}
	return e.WithFields(lf)
}
