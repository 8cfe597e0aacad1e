package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func ExampleNewDefaultLogger() {
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Debug("This is a debug message")
	log.Info("Import summary", "total", 10) // green in a terminal
	log.Warn("Skipping record", "line", 3)  // yellow
	log.Error("Failed to import case")      // red
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Info("plain message", "k", "v")
	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	log.With("batch", "001").Error("Batch failed")
	assert.Contains(t, buf.String(), "\033[31m")
	assert.Contains(t, buf.String(), "batch=001")
	assert.Contains(t, buf.String(), "\033[0m\n")

	buf.Reset()
	log.Info("Import summary")
	assert.Contains(t, buf.String(), "\033[32m")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("dropped")
	log.Warn("kept", "n", 1)
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("nonsense"))
}
