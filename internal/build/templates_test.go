package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/testutils"
)

// stubRenderer renders "<p>name</p>" and fails for pages listed in failing.
type stubRenderer struct {
	failing map[string]bool
}

func (r stubRenderer) Render(file string, data PageData) ([]byte, error) {
	if r.failing[data.Name] {
		return nil, fmt.Errorf("%s: unexpected token", file)
	}
	return []byte("<p>" + data.Name + "</p>"), nil
}

func templatePaths(dir string) config.TemplatePaths {
	return config.TemplatePaths{
		Pages: filepath.ToSlash(filepath.Join(dir, "src/views/pages/*.pug")),
		Src:   filepath.ToSlash(filepath.Join(dir, "src/views/**/*.pug")),
		Dest:  filepath.Join(dir, "dist"),
	}
}

func TestJadeRendererRendersPage(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{
		"index.pug": "doctype html\nhtml\n  body\n    h1 Hello\n",
	})

	renderer := &JadeRenderer{Funcs: PageFuncs("/assets")}
	html, err := renderer.Render(filepath.Join(dir, "index.pug"), PageData{Name: "index"})
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Hello</h1>")
}

func TestJadeRendererMissingFile(t *testing.T) {
	renderer := &JadeRenderer{Funcs: PageFuncs("")}
	_, err := renderer.Render(filepath.Join(t.TempDir(), "missing.pug"), PageData{})
	assert.Error(t, err)
}

func TestPageFuncs(t *testing.T) {
	funcs := PageFuncs("assets")

	asset := funcs["asset"].(func(string) string)
	assert.Equal(t, "/assets/styles/main.min.css", asset("styles/main.min.css"))

	html, err := markdownToHTML("# Title")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Title</h1>", strings.TrimSpace(string(html)))
}

func TestTemplatesRendersEveryPage(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{
		"src/views/pages/index.pug":  "",
		"src/views/pages/about.pug":  "",
		"src/views/layouts/base.pug": "",
		"src/views/pages/notes.txt":  "",
	})

	stage := &Templates{
		Paths:    templatePaths(dir),
		Renderer: stubRenderer{},
		Logger:   logging.Nop(),
	}
	require.NoError(t, stage.Run(context.Background()))

	assert.Equal(t, "<p>index</p>", testutils.ReadFile(t, filepath.Join(dir, "dist", "index.html")))
	assert.Equal(t, "<p>about</p>", testutils.ReadFile(t, filepath.Join(dir, "dist", "about.html")))
	_, err := os.Stat(filepath.Join(dir, "dist", "base.html"))
	assert.True(t, os.IsNotExist(err), "layouts are not pages")
}

func TestTemplatesFailureIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{
		"src/views/pages/index.pug":  "",
		"src/views/pages/broken.pug": "",
	})

	stage := &Templates{
		Paths:    templatePaths(dir),
		Renderer: stubRenderer{failing: map[string]bool{"broken": true}},
		Logger:   logging.Nop(),
	}
	err := stage.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRecoverable(err))
	assert.Contains(t, err.Error(), "unexpected token")
	assert.Contains(t, err.Error(), LabelTemplates)

	// The healthy page is still written.
	assert.Equal(t, "<p>index</p>", testutils.ReadFile(t, filepath.Join(dir, "dist", "index.html")))
}

func TestNewTemplatesUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Templates.Data = map[string]interface{}{"title": "Site"}

	stage := NewTemplates(cfg, logging.Nop())
	assert.Equal(t, StageTemplates, stage.Name())
	assert.Equal(t, cfg.Paths.Templates, stage.Paths)
	assert.Equal(t, "Site", stage.Site["title"])
	assert.IsType(t, &JadeRenderer{}, stage.Renderer)
}
