// Package zap adapts a *zap.Logger to mongocache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	mongocache "github.com/drgatoxd/mongo-cache"
)

var _ mongocache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "mongocache". The namespace arrives with every entry's
// fields, so it is not bound here.
func New(l *zap.Logger) Logger {
	return Logger{L: l.Named("mongocache")}
}

func (z Logger) Debug(msg string, f mongocache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f mongocache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f mongocache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f mongocache.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; errors use zap's error encoding.
func fields(f mongocache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
