package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithServiceAttribute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collabd.log")
	logger := New(Config{Level: LevelInfo, Service: "collabd", JSON: true, LogFile: path})

	logger.Info("room opened", "doc_id", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "collabd", record["service"])
	assert.Equal(t, "room opened", record["msg"])
	assert.Equal(t, "abc", record["doc_id"])
}

func TestDefaultReturnsUsableLogger(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	logger.Info("startup")
}

func TestNewMirrorsToLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "collabd.log")

	logger := New(Config{Level: LevelInfo, Service: "collabd", LogFile: path})
	logger.Info("peer joined", "peer_id", "p1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "peer joined")
	assert.Contains(t, string(data), "p1")
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: LevelWarn.slogLevel()})
	logger := slog.New(handler)

	logger.Info("should be dropped")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}
