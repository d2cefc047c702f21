package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		checkFunc func(t *testing.T, logger *Logger, output *bytes.Buffer)
	}{
		{
			name:   "json format keeps debug lines at debug level",
			config: Config{Level: "debug", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("Job claimed", slog.String("job_id", "abc"))

				var logEntry map[string]any
				require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

				assert.Equal(t, "DEBUG", logEntry["level"])
				assert.Equal(t, "Job claimed", logEntry["msg"])
				assert.Equal(t, "abc", logEntry["job_id"])
				assert.Contains(t, logEntry, "time")
			},
		},
		{
			name:   "warn level drops info lines",
			config: Config{Level: "warn", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("Trigger accepted")
				logger.Warn("Portal authentication disabled", slog.String("reason", "no secret"))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				require.Len(t, lines, 1)

				var logEntry map[string]any
				require.NoError(t, json.Unmarshal([]byte(lines[0]), &logEntry))
				assert.Equal(t, "WARN", logEntry["level"])
				assert.Equal(t, "no secret", logEntry["reason"])
			},
		},
		{
			name:   "console format uses tint",
			config: Config{Level: "info", Format: "console", TimeFormat: time.RFC3339},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("Worker pool spawned")

				// tint prints "INF" rather than "INFO"
				assert.Contains(t, output.String(), "INF")
				assert.Contains(t, output.String(), "Worker pool spawned")
			},
		},
		{
			name:   "source location",
			config: Config{Level: "info", Format: "json", EnableSource: true},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("message with source")

				var logEntry map[string]any
				require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

				source, ok := logEntry["source"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, source, "file")
				assert.Contains(t, source, "line")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			cfg := tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)

			tt.checkFunc(t, logger, output)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "portal.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("first")
	require.NoError(t, logger.Close())

	// A second logger appends instead of truncating
	logger, err = New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Info("second")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"msg":"first"`)
	assert.Contains(t, lines[1], `"msg":"second"`)
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "DEBUG", expected: slog.LevelInfo}, // case-sensitive
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_Derived(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.WithGroup("dispatch").
		WithAttrs(slog.String("dispatch_key", "dly")).
		With(slog.Int("workers", 2)).
		Info("Trigger accepted")

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

	group, ok := logEntry["dispatch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dly", group["dispatch_key"])
	assert.Equal(t, float64(2), group["workers"])
}
