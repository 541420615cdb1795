package logging_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logging.NewWriter(&buf, slog.LevelInfo).Error("boom", "error", errors.New("bad"))
	assert.Contains(t, buf.String(), "err=bad")
	assert.NotContains(t, buf.String(), "error=bad")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case_outputs", "ocean_channel.log")
	logger, f, err := logging.NewFile(path, slog.LevelDebug)
	require.NoError(t, err)
	logger.Debug("hello", "step", "init")
	_, _ = f.WriteString("raw process output\n")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello step=init")
	assert.Contains(t, string(data), "raw process output")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}
