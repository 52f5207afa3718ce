// Package zap adapts a *zap.Logger to memocache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/memocache"
)

var _ memocache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "memocache" so its lines are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("memocache")} }

func (z Logger) Debug(msg string, f memocache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f memocache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f memocache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f memocache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f memocache.Fields) []zap.Field {
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
