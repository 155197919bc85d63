package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New("loud")
	assert.Error(t, err)
}

func TestTemporalAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tl := Temporal(zap.New(core))

	tl.Info("review started", "shop", "demo.myshopify.com", "score", 55)
	tl.(log.WithLogger).With("workflow", "wf-1").Warn("late")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "review started", entries[0].Message)
	assert.Equal(t, "demo.myshopify.com", entries[0].ContextMap()["shop"])
	assert.Equal(t, int64(55), entries[0].ContextMap()["score"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "wf-1", entries[1].ContextMap()["workflow"])
}
