package logging

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ asynq.Logger = (*AsynqLogger)(nil)

func TestNewHonorsModeAndLevel(t *testing.T) {
	logger, err := New("release", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New("debug", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New("debug", "loud")
	assert.Error(t, err)
}

func TestAsynqLoggerFatalDoesNotExit(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewAsynqLogger(zap.New(core))

	l.Info("server started")
	l.Fatal("redis unreachable")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "redis unreachable", entries[1].Message)
}
