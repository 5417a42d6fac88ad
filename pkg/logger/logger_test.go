package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ logger.Logger = (*logger.SlogHandler)(nil)
	_ logger.Logger = (*logger.LogData)(nil)
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.NewBuild().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.Equal(t, 0, buff.Len())

	templogger.Info("recomputed", "models", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buff.Bytes(), &line))
	assert.Equal(t, "recomputed", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 3, line["models"])
}

func TestLogLevel(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.NewBuild().FromBuffer(buff).Level(zerolog.WarnLevel).Make()
	require.NoError(t, err)

	templogger.Debug("hidden")
	templogger.Info("hidden")
	assert.Equal(t, 0, buff.Len())

	templogger.Warn("shown")
	assert.Contains(t, buff.String(), "shown")
}

func TestSlogHandler(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	l := logger.New(slog.NewJSONHandler(buff, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		fn    func(msg string, args ...any)
		level string
	}{
		{fn: l.Error, level: "ERROR"},
		{fn: l.Warn, level: "WARN"},
		{fn: l.Info, level: "INFO"},
		{fn: l.Debug, level: "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buff.Reset()
			tt.fn("message", "attr", "title")

			var line map[string]any
			require.NoError(t, json.Unmarshal(buff.Bytes(), &line))
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, "message", line["msg"])
			assert.Equal(t, "title", line["attr"])
		})
	}
}
