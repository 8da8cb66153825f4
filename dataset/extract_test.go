package dataset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-colorize/dataset"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestHashFile(t *testing.T) {
	path := writeTempFile(t, "video.mp4", []byte("not really a video"))

	hash, err := dataset.HashFile(path)
	require.NoError(t, err)
	// 160-bit digest, hex encoded
	assert.Len(t, hash, 40)

	again, err := dataset.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again, "hash must be deterministic")

	other := writeTempFile(t, "other.mp4", []byte("different content"))
	otherHash, err := dataset.HashFile(other)
	require.NoError(t, err)
	assert.NotEqual(t, hash, otherHash)
}

func TestHashFileMissing(t *testing.T) {
	_, err := dataset.HashFile(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
}

func TestExtractCreatesHashDirectory(t *testing.T) {
	source := writeTempFile(t, "video.mp4", []byte("frame data"))
	destination := t.TempDir()

	// "true" stands in for ffmpeg: directory creation and the overwrite
	// guard are what is under test here
	dir, err := dataset.Extract(context.Background(), source, destination, dataset.WithFFmpeg("true"))
	require.NoError(t, err)

	hash, err := dataset.HashFile(source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destination, hash), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtractRefusesExistingDestination(t *testing.T) {
	source := writeTempFile(t, "video.mp4", []byte("frame data"))
	destination := t.TempDir()

	_, err := dataset.Extract(context.Background(), source, destination, dataset.WithFFmpeg("true"))
	require.NoError(t, err)

	// re-running on identical input is a guard violation, not an overwrite
	_, err = dataset.Extract(context.Background(), source, destination, dataset.WithFFmpeg("true"))
	require.Error(t, err)
}
