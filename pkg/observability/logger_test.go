package observability

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/waldo-cli/internal/config"
)

// setupTestLogger initializes the global logger to write to a buffer.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitializeLogger(t *testing.T) {
	t.Run("console format", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{Level: "debug", Format: "console"})

		GetLogger().Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{Level: "info", Format: "json"})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "waldo", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("too quiet")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		ResetForTest()

		logFile := filepath.Join(t.TempDir(), "waldo.log")
		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(io.Discard))

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()

		buf1 := setupTestLogger(config.LoggerConfig{Level: "info", Format: "console"})
		logger1 := GetLogger()

		buf2 := setupTestLogger(config.LoggerConfig{Level: "debug", Format: "console"})
		logger2 := GetLogger()

		assert.Same(t, logger1, logger2)

		logger2.Info("test message")
		Sync()

		assert.Contains(t, buf1.String(), "test message")
		assert.Empty(t, buf2.String(), "the second initialization must be a no-op")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()

		// The fallback warns on stderr; swallow it to keep test output clean.
		oldStderr := os.Stderr
		r, w, err := os.Pipe()
		require.NoError(t, err)
		os.Stderr = w

		logger := GetLogger()

		w.Close()
		os.Stderr = oldStderr

		require.NotNil(t, logger)

		var captured bytes.Buffer
		_, _ = io.Copy(&captured, r)
		assert.Contains(t, captured.String(), "Global logger requested before initialization")
	})

	t.Run("returns the global instance after initialization", func(t *testing.T) {
		ResetForTest()
		setupTestLogger(config.LoggerConfig{Level: "info", Format: "json"})

		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
