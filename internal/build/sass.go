package build

import (
	"context"
	"fmt"
	"sync"

	"github.com/bep/godartsass/v2"
)

// SassInput is one stylesheet handed to a SassCompiler.
type SassInput struct {
	Source       string
	URL          string
	IncludePaths []string
	SourceMap    bool
}

// SassOutput is the compiled CSS and its source map.
type SassOutput struct {
	CSS       string
	SourceMap string
}

// SassCompiler compiles SCSS to CSS.
type SassCompiler interface {
	Compile(ctx context.Context, in SassInput) (SassOutput, error)
	Close() error
}

// DartSass compiles through the Dart Sass embedded protocol. The transpiler
// process is started on first use and reused across watcher rebuilds.
type DartSass struct {
	Binary string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass creates a compiler that runs the given Dart Sass binary.
func NewDartSass(binary string) *DartSass {
	return &DartSass{Binary: binary}
}

func (d *DartSass) start() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler != nil {
		return d.transpiler, nil
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: d.Binary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start dart sass (%s): %w", d.Binary, err)
	}
	d.transpiler = t
	return t, nil
}

// Compile implements SassCompiler.
func (d *DartSass) Compile(ctx context.Context, in SassInput) (SassOutput, error) {
	t, err := d.start()
	if err != nil {
		return SassOutput{}, err
	}

	res, err := t.Execute(godartsass.Args{
		Source:                  in.Source,
		URL:                     in.URL,
		IncludePaths:            in.IncludePaths,
		OutputStyle:             godartsass.OutputStyleExpanded,
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		EnableSourceMap:         in.SourceMap,
		SourceMapIncludeSources: in.SourceMap,
	})
	if err != nil {
		return SassOutput{}, err
	}

	return SassOutput{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

// Close stops the transpiler process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
