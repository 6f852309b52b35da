package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Tutortoise/vision-inference/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLevelsSplitAcrossStreams(t *testing.T) {
	var stdout, stderr zaptest.Buffer
	logger, closer, err := build(config.LogConfig{Level: "info"}, &stdout, &stderr)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("started")
	logger.Warn("slow frame")
	logger.Error("inference failed")
	require.NoError(t, closer())

	out := stdout.Lines()
	require.Len(t, out, 1)
	assert.Contains(t, out[0], `"msg":"started"`)

	errs := stderr.Lines()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "slow frame")
	assert.Contains(t, errs[1], "inference failed")
}

func TestDebugLevel(t *testing.T) {
	var stdout, stderr zaptest.Buffer
	logger, _, err := build(config.LogConfig{Level: "debug", Development: true}, &stdout, &stderr)
	require.NoError(t, err)

	logger.Debug("processing times")
	assert.Contains(t, stdout.String(), "processing times")
	assert.Empty(t, stderr.String())
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vision.log")
	var stdout, stderr zaptest.Buffer
	logger, closer, err := build(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &stdout, &stderr)
	require.NoError(t, err)

	logger.Info("model loaded")
	logger.Warn("frame skipped")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "model loaded")
	assert.Contains(t, string(data), "frame skipped")
}
