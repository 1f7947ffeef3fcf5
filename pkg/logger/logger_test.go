package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithoutContext(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "Info",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Debug",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "Warn",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "Error",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			dut := ZapLogger{zap.New(observerLogger)}
			const testMessage = "ABC"
			switch tc.name {
			case "Info":
				dut.Info(testMessage)
			case "Debug":
				dut.Debug(testMessage)
			case "Warn":
				dut.Warn(testMessage)
			case "Error":
				dut.Error(testMessage)
			}
			require.Equal(t, 1, logs.Len())

			actualMessage := logs.All()[0]
			require.Equal(t, testMessage, actualMessage.Message)
			require.Empty(t, actualMessage.ContextMap())
			require.Equal(t, tc.expectedLevel, actualMessage.Level)
		})
	}
}

func TestWithContextAddsRunID(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "InfoWithContext",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "DebugWithContext",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "WarnWithContext",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "ErrorWithContext",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			dut := ZapLogger{zap.New(observerLogger)}
			ctx := ContextWithRunID(context.Background(), "01HZX")
			const testMessage = "ABC"
			switch tc.name {
			case "InfoWithContext":
				dut.InfoWithContext(ctx, testMessage)
			case "DebugWithContext":
				dut.DebugWithContext(ctx, testMessage)
			case "WarnWithContext":
				dut.WarnWithContext(ctx, testMessage)
			case "ErrorWithContext":
				dut.ErrorWithContext(ctx, testMessage)
			}
			require.Equal(t, 1, logs.Len())

			actualMessage := logs.All()[0]
			require.Equal(t, testMessage, actualMessage.Message)
			require.Equal(t, map[string]interface{}{"run_id": "01HZX"}, actualMessage.ContextMap())
			require.Equal(t, tc.expectedLevel, actualMessage.Level)
		})
	}
}

func TestWithContextWithoutRunID(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	dut := ZapLogger{zap.New(observerLogger)}

	dut.InfoWithContext(context.Background(), "ABC", zap.Int("members", 3))

	require.Equal(t, 1, logs.Len())
	require.Equal(t, map[string]interface{}{"members": int64(3)}, logs.All()[0].ContextMap())
}

func TestWithFields(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	logger := &ZapLogger{zap.New(observerLogger)}

	logger.With(zap.String("TestOption", "Message"))
	logger.Info("ABC")

	require.Equal(t, map[string]interface{}{"TestOption": "Message"}, logs.All()[0].ContextMap())
}

func TestNewLogger(t *testing.T) {
	t.Run("none_is_noop", func(t *testing.T) {
		l, err := NewLogger("text", "none", "Unix")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("text", "verbose", "Unix")
		require.EqualError(t, err, "unknown log level: verbose")
	})

	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			l, err := NewLogger(format, "warn", "ISO8601")
			require.NoError(t, err)
			require.False(t, l.Core().Enabled(zapcore.InfoLevel))
			require.True(t, l.Core().Enabled(zapcore.WarnLevel))
		})
	}

	t.Run("must_panics_on_error", func(t *testing.T) {
		require.Panics(t, func() {
			MustNewLogger("text", "verbose", "Unix")
		})
	})
}

func TestObserverLogger(t *testing.T) {
	l, logs := NewObserverLogger("info")
	l.Debug("hidden")
	l.Info("shown")
	l.Warn("also shown")

	require.Equal(t, []string{"shown", "also shown"}, Messages(logs))
	require.Equal(t, "shown", logs.TakeAll()[0].Message)
	require.Equal(t, 0, logs.Len())
	require.Empty(t, Messages(logs))
}
