package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New("", "console")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestBuildReplacesGlobal(t *testing.T) {
	log, err := Build(Options{Level: "debug", Caller: true, Sample: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))
}
