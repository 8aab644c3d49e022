package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	logger, err := New("info", "json", "paybill-test", path)
	require.NoError(t, err)
	logger.Info("push accepted")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "push accepted")
	assert.Contains(t, string(b), `"service_name":"paybill-test"`)
}

func TestNewConsole(t *testing.T) {
	logger, err := New("debug", "console", "", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 500))
	long := strings.Repeat("x", 600)
	out := Truncate(long, 500)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 500)))
	assert.True(t, strings.HasSuffix(out, "...(truncated)"))
}
