package logrotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotator_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{LogDir: dir, MaxSizeBytes: 1024, MaxFiles: 3, FilePrefix: "test"})
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	contents, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(contents))
}

func TestRotator_RotatesPastMaxSize(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{LogDir: dir, MaxSizeBytes: 4, MaxFiles: 3, FilePrefix: "test"})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = r.Write([]byte("efgh"))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "exceeding MaxSizeBytes should rotate the previous file out")

	current, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(current))
}

func TestRotator_PrunesOldestBeyondMaxFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{LogDir: dir, MaxSizeBytes: 1, MaxFiles: 2, FilePrefix: "test"})
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 5; i++ {
		_, err := r.Write([]byte("x"))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/log/iotmqtt")
	assert.Equal(t, "/var/log/iotmqtt", cfg.LogDir)
	assert.Equal(t, "iotmqtt", cfg.FilePrefix)
	assert.Greater(t, cfg.MaxFiles, 0)
}
