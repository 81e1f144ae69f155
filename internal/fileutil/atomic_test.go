package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "game.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	assert.Equal(t, []string{"game.json"}, entries(t, dir), "no temp files are left behind")
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	t.Parallel()

	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "game.json"), []byte("x"), 0o644)
	assert.ErrorContains(t, err, "failed to create temp file")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "room.json")
	require.NoError(t, WriteJSON(path, map[string]any{"code": "ABCDEF", "players": 3}, 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"ABCDEF","players":3}`, string(data))
	assert.Equal(t, byte('\n'), data[len(data)-1])

	err = WriteJSON(path, map[string]any{"bad": func() {}}, 0o644)
	assert.ErrorContains(t, err, "failed to encode room.json")
	assert.Equal(t, []string{"room.json"}, entries(t, dir))
}
