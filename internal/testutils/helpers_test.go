package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
)

func TestCreateTempProject(t *testing.T) {
	dir := CreateTempProject(t)

	tree := SnapshotTree(t, dir)
	assert.Equal(t, SampleProject, tree)
}

func TestCreateTestConfig(t *testing.T) {
	dir := CreateTempProject(t)
	cfg := CreateTestConfig(dir)

	require.NoError(t, config.Validate(cfg))
	assert.True(t, filepath.IsAbs(cfg.Paths.Root))

	pages, err := config.Expand(cfg.Paths.Templates.Pages)
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	icons, err := config.Expand(cfg.Paths.SVG.Src)
	require.NoError(t, err)
	assert.Len(t, icons, 1)
}

func TestWriteAndReadTree(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string]string{"a/b/c.txt": "deep", "top.txt": "top"})

	assert.Equal(t, "deep", ReadFile(t, filepath.Join(dir, "a", "b", "c.txt")))
	assert.Equal(t, map[string]string{"a/b/c.txt": "deep", "top.txt": "top"}, SnapshotTree(t, dir))
}

func TestAssertFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.Chmod(path, 0755))

	AssertFilePermissions(t, path, 0755)
}

func TestWaitForFileChange(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("initial"), 0644))

	info, err := os.Stat(testFile)
	require.NoError(t, err)
	originalModTime := info.ModTime()

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(testFile, []byte("modified"), 0644)
	}()

	WaitForFileChange(t, testFile, originalModTime, 2*time.Second)
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(testFile)
		return err == nil && string(data) == "modified"
	}, time.Second, 10*time.Millisecond)
}
