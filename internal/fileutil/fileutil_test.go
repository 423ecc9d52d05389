package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile_PreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "server")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0755))

	dst := filepath.Join(tmpDir, "out", "nested", "server")
	require.NoError(t, CopyFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(content))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestCopyFile_Overwrites(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "a")
	dst := filepath.Join(tmpDir, "b")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old content"), 0600))

	require.NoError(t, CopyFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestCopyFile_MissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	err := CopyFile(filepath.Join(tmpDir, "missing"), filepath.Join(tmpDir, "dst"))
	assert.Error(t, err)
	assert.False(t, Exists(filepath.Join(tmpDir, "dst")))
}

func TestIsFile(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, IsFile(file))
	assert.False(t, IsFile(tmpDir))
	assert.True(t, Exists(tmpDir))
}
