package zap

import (
	"errors"
	"testing"

	"github.com/goforj/nscache/cachecore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerForwardsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", cachecore.Fields{"op": "get"})
	l.Warn("retrying", cachecore.Fields{"try": 1, "err": errors.New("boom")})
	l.Error("e", cachecore.Fields{})

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "get", entries[1].ContextMap()["op"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["err"])
	assert.EqualValues(t, 1, entries[2].ContextMap()["try"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestNewNilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { New(nil).Info("x", cachecore.Fields{"k": "v"}) })
}
