// Package build implements the individual build stages of the site pipeline.
//
// Each stage transforms one source glob from the path table into artifacts
// under its destination directory. The transformations themselves are
// delegated to libraries (jade for pug templates, Dart Sass and esbuild for
// styles, esbuild for scripts, minify for SVG); the stages decide what to
// read, in which order to call the libraries and where to write.
//
// Stages write to disjoint destinations and share no mutable state, so the
// orchestrator may run them concurrently.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stage names double as CLI task names.
const (
	StageClean     = "clean"
	StageStyles    = "styles"
	StageTemplates = "templates"
	StageScripts   = "scripts"
	StageImg       = "img"
	StageFonts     = "fonts"
	StageSVG       = "svg"
)

// Tool labels used in recoverable error notifications.
const (
	LabelTemplates = "PUG"
	LabelStyles    = "SASS"
)

// Stage is one named build task.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) error
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Run implements Stage.
func (s StageFunc) Run(ctx context.Context) error { return s.Fn(ctx) }

// writeFile writes data to path, creating parent directories on first write.
func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// copyFile copies src to dst byte for byte, keeping the file mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
