package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewStdRoutesThroughZap(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	std := NewStd(zap.New(core), "http")
	std.Print("tls handshake error")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "http", entries[0].LoggerName)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "tls handshake error", entries[0].Message)
}

func TestNewStdNilLogger(t *testing.T) {
	t.Parallel()
	require.NotNil(t, NewStd(nil, "x"))
}
