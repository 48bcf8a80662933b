package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestPlace_NewFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	dest := filepath.Join(dir, "copy.sh")
	writeFile(t, src, "#!/bin/sh\n", 0o600)

	changed, err := Place(src, dest, 0o755)
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPlace_Unchanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	dest := filepath.Join(dir, "copy.sh")
	writeFile(t, src, "#!/bin/sh\n", 0o600)
	writeFile(t, dest, "#!/bin/sh\n", 0o755)

	changed, err := Place(src, dest, 0o755)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPlace_ModeOnly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	dest := filepath.Join(dir, "copy.sh")
	writeFile(t, src, "#!/bin/sh\n", 0o600)
	writeFile(t, dest, "#!/bin/sh\n", 0o600)

	changed, err := Place(src, dest, 0o755)
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPlace_ContentChanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	dest := filepath.Join(dir, "copy.sh")
	writeFile(t, src, "#!/bin/sh\necho new\n", 0o600)
	writeFile(t, dest, "#!/bin/sh\necho old\n", 0o755)

	changed, err := Place(src, dest, 0o755)
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "new")
}

func TestPlace_SameFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "openshift.sh")
	writeFile(t, src, "#!/bin/sh\n", 0o600)

	changed, err := Place(src, src, 0o755)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPlace_DestIsDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	writeFile(t, src, "#!/bin/sh\n", 0o600)

	_, err := Place(src, t.TempDir(), 0o755)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestPlace_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Place(filepath.Join(dir, "missing.sh"), filepath.Join(dir, "copy.sh"), 0)
	require.Error(t, err)
}
