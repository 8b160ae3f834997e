package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigurationCheck(t *testing.T) {
	assert.NoError(t, NewConfiguration().Check())

	tests := []struct {
		name   string
		modify func(*Configuration)
		err    error
	}{
		{"level", func(c *Configuration) { c.Level = "verbose" }, ErrInvalidLevel},
		{"format", func(c *Configuration) { c.Format = "xml" }, ErrInvalidFormat},
		{"rotation", func(c *Configuration) { c.Rotation = true }, ErrNoLogFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfiguration()
			tt.modify(&c)
			assert.ErrorIs(t, c.Check(), tt.err)
		})
	}
}

func TestSwitchLoggingFormat(t *testing.T) {
	for in, want := range map[string]LoggingFormat{
		"":            JSONFormat,
		"JSON":        JSONFormat,
		"Stackdriver": StackdriverFormat,
		"console":     ConsoleFormat,
	} {
		got, err := switchLoggingFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, zapcore.InfoLevel, JSONFormat)
	log.Debug("hidden")
	log.Info("node added", zap.String("host", "h1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"node added"`)
	assert.Contains(t, out, `"host":"h1"`)
}

func TestStackdriverFormat(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf, zapcore.InfoLevel, StackdriverFormat).Warn("lost session")
	assert.Contains(t, buf.String(), `"severity":"WARNING"`)
	assert.Contains(t, buf.String(), `"message":"lost session"`)
}

func TestNewWithFile(t *testing.T) {
	c := NewConfiguration()
	c.Stdout = false
	c.File = filepath.Join(t.TempDir(), "logs", "ranger.log")
	c.Rotation = true

	log, startup, err := New(c)
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.NotNil(t, startup)

	// lumberjack opens the file on first write
	log.Info("started")
	_ = log.Sync()
	assert.FileExists(t, c.File)
}
