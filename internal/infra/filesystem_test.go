package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemManager_ExpandHome(t *testing.T) {
	fm := NewFileSystemManagerWithHome("/home/alex")

	tests := []struct {
		in   string
		want string
	}{
		{"~", "/home/alex"},
		{"~/Videos", "/home/alex/Videos"},
		{"/abs/path", "/abs/path"},
		{"~other", "~other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fm.ExpandHome(tt.in), tt.in)
	}
}

func TestFileSystemManager_MoveAndSize(t *testing.T) {
	dir := t.TempDir()
	fm := NewFileSystemManagerWithHome(dir)

	src := filepath.Join(dir, "Replay 2024.mkv")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0644))

	dst := filepath.Join(dir, "Dota 2", "Dota 2_01.01.2024.mkv")
	require.NoError(t, fm.Move(src, dst))

	assert.False(t, fm.Exists(src))
	assert.True(t, fm.Exists(dst))

	size, err := fm.Size(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	// Home-relative paths resolve against the configured home.
	assert.True(t, fm.Exists("~/Dota 2/Dota 2_01.01.2024.mkv"))
}

func TestFileSystemManager_MoveMissingSource(t *testing.T) {
	dir := t.TempDir()
	fm := NewFileSystemManagerWithHome(dir)

	err := fm.Move(filepath.Join(dir, "missing.mkv"), filepath.Join(dir, "out.mkv"))
	assert.Error(t, err)

	_, err = fm.Size(filepath.Join(dir, "missing.mkv"))
	assert.Error(t, err)
}

func TestCopyAndRemove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mkv")
	dst := filepath.Join(dir, "b.mkv")
	require.NoError(t, os.WriteFile(src, []byte("clip"), 0640))

	require.NoError(t, copyAndRemove(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "clip", string(data))
	assert.NoFileExists(t, src)

	// Refuses to clobber an existing file.
	require.NoError(t, os.WriteFile(src, []byte("again"), 0640))
	assert.Error(t, copyAndRemove(src, dst))
	assert.FileExists(t, src)
}
