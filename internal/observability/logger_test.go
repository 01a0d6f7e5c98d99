// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/redcrawl/internal/config"
)

// initForTest resets the global logger and initializes it against an
// in-memory buffer so assertions can inspect the output.
func initForTest(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		buf := initForTest(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "redcrawl-test",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("engine started")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "engine started")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
	})

	t.Run("json format emits valid structured entries", func(t *testing.T) {
		buf := initForTest(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "redcrawl-test",
		})

		GetLogger().Warn("session rotated", zap.String("cookie", "web_session"))

		var entry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err, "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "session rotated", entry["msg"])
		assert.Equal(t, "web_session", entry["cookie"])
		assert.Equal(t, "redcrawl-test", entry["logger"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		buf := initForTest(t, config.LoggerConfig{
			Level:  "warn",
			Format: "json",
		})

		GetLogger().Info("should not appear")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := initForTest(t, config.LoggerConfig{
			Level:  "not-a-level",
			Format: "json",
		})

		GetLogger().Debug("dropped")
		GetLogger().Info("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger should never be nil")
}
