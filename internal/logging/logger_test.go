package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	for level, expected := range map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"ERROR":   logrus.ErrorLevel,
		"fatal":   logrus.FatalLevel,
		"Info":    logrus.InfoLevel,
		"trace":   logrus.TraceLevel,
		"warn":    logrus.WarnLevel,
		"unknown": logrus.TraceLevel,
		"":        logrus.TraceLevel,
	} {
		assert.Equal(t, expected, GetLevel(level), level)
	}
}

func TestSentryHook_Fire(t *testing.T) {
	var captured []*sentry.Event
	hook := NewSentryHook([]logrus.Level{logrus.ErrorLevel})
	hook.capture = func(event *sentry.Event) {
		captured = append(captured, event)
	}

	assert.Equal(t, []logrus.Level{logrus.ErrorLevel}, hook.Levels())

	now := time.Now()
	entry := &logrus.Entry{
		Level:   logrus.ErrorLevel,
		Message: "insert message failed",
		Time:    now,
		Data: logrus.Fields{
			"error": errors.New("connection refused"),
			"kind":  "operational",
			"code":  500,
		},
	}
	require.NoError(t, hook.Fire(entry))

	require.Len(t, captured, 1)
	event := captured[0]
	assert.Equal(t, sentry.LevelError, event.Level)
	assert.Equal(t, "insert message failed", event.Message)
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, "connection refused", event.Extra["error"])
	assert.Equal(t, "operational", event.Extra["kind"])
	assert.Equal(t, "500", event.Extra["code"])
}

func TestSentryLevel(t *testing.T) {
	assert.Equal(t, sentry.LevelFatal, sentryLevel(logrus.PanicLevel))
	assert.Equal(t, sentry.LevelFatal, sentryLevel(logrus.FatalLevel))
	assert.Equal(t, sentry.LevelWarning, sentryLevel(logrus.WarnLevel))
	assert.Equal(t, sentry.LevelInfo, sentryLevel(logrus.InfoLevel))
	assert.Equal(t, sentry.LevelDebug, sentryLevel(logrus.TraceLevel))
}
