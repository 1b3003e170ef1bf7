// Package slog adapts a *slog.Logger to cachecore.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/goforj/nscache/cachecore"
)

var _ cachecore.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

func (s Logger) Debug(msg string, f cachecore.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f cachecore.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f cachecore.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f cachecore.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f cachecore.Fields) {
	l := s.L
	if l == nil {
		l = stdslog.Default()
	}
	l.LogAttrs(context.Background(), level, msg, attrs(f)...)
}

func attrs(f cachecore.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
