// Package testutils holds fixtures shared by the stage, pipeline and server
// tests.
package testutils

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
)

// SampleProject is a small site in the default src/ layout: two pages and a
// layout, an entry stylesheet with a glob import, one script, an image, an
// icon, a font and a stale file in the output root.
var SampleProject = map[string]string{
	"src/views/layouts/base.pug":         "doctype html\nhtml\n  body\n    block content\n",
	"src/views/pages/index.pug":          "doctype html\nhtml\n  body\n    h1 Home\n",
	"src/views/pages/about.pug":          "doctype html\nhtml\n  body\n    h1 About\n",
	"src/assets/styles/main.scss":        "@import \"partials/*\";\n",
	"src/assets/styles/partials/_a.scss": "a { color: red; }\n",
	"src/assets/scripts/main.js":         "console.log('main');\n",
	"src/assets/img/logo.png":            "png",
	"src/assets/img/icons/home.svg":      `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 8 8"><path fill="red" d="M0 0h8v8H0z"/></svg>`,
	"src/assets/fonts/body.woff2":        "woff2",
	"dist/stale.html":                    "old",
}

// CreateTempProject writes SampleProject into a temporary directory and
// returns it.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	WriteTree(t, dir, SampleProject)
	return dir
}

// CreateTestConfig returns the default configuration with every path of the
// path table made absolute under projectDir, so tests never depend on the
// working directory.
func CreateTestConfig(projectDir string) *config.Config {
	abs := func(p string) string { return filepath.ToSlash(filepath.Join(projectDir, p)) }

	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		Root: abs("dist"),
		Templates: config.TemplatePaths{
			Pages: abs("src/views/pages/*.pug"),
			Src:   abs("src/views/**/*.pug"),
			Dest:  abs("dist"),
		},
		Styles: config.StylePaths{
			Main: abs("src/assets/styles/main.scss"),
			Src:  abs("src/assets/styles/**/*.scss"),
			Dest: abs("dist/assets/styles"),
		},
		Scripts: config.PathEntry{Src: abs("src/assets/scripts/*.js"), Dest: abs("dist/assets/scripts")},
		Img:     config.PathEntry{Src: abs("src/assets/img/**/*.*"), Dest: abs("dist/assets/img")},
		Fonts:   config.PathEntry{Src: abs("src/assets/fonts/**/*.*"), Dest: abs("dist/assets/fonts")},
		SVG:     config.PathEntry{Src: abs("src/assets/img/**/*.svg"), Dest: abs("dist/assets/img")},
	}
	cfg.Scripts.Entries = map[string]string{"main": abs("src/assets/scripts/main.js")}
	cfg.Templates.Pretty = false
	cfg.Notify.Desktop = false
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

// WriteTree creates files under dir from a slash-separated path -> contents
// map.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
}

// ReadFile returns the contents of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// SnapshotTree returns every file under root keyed by its slash-separated
// relative path.
func SnapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	}))
	return tree
}

// AssertFilePermissions checks the permission bits of path.
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0777), expectedMode)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
