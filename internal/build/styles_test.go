package build

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/testutils"
)

// fakeSass returns fixed CSS and records the last input.
type fakeSass struct {
	css  string
	err  error
	last SassInput
}

func (f *fakeSass) Compile(ctx context.Context, in SassInput) (SassOutput, error) {
	f.last = in
	if f.err != nil {
		return SassOutput{}, f.err
	}
	return SassOutput{CSS: f.css}, nil
}

func (f *fakeSass) Close() error { return nil }

func TestExpandGlobImports(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{
		"partials/_b.scss":       "",
		"partials/_a.scss":       "",
		"partials/readme.txt":    "",
		"components/nav/_x.scss": "",
	})

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "single level",
			source: `@import "partials/*";`,
			want:   "@import \"partials/_a.scss\";\n@import \"partials/_b.scss\";",
		},
		{
			name:   "recursive with use",
			source: `  @use './components/**/*.scss';`,
			want:   `  @use "components/nav/_x.scss";`,
		},
		{
			name:   "plain import untouched",
			source: `@import "variables";`,
			want:   `@import "variables";`,
		},
		{
			name:   "no matches",
			source: `@import "missing/*";`,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandGlobImports(tt.source, dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTargets(t *testing.T) {
	engines, err := ParseTargets([]string{"chrome109", " Safari15.4 ", "ios15"})
	require.NoError(t, err)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "109"},
		{Name: api.EngineSafari, Version: "15.4"},
		{Name: api.EngineIOS, Version: "15"},
	}, engines)

	for _, bad := range []string{"", "109", "netscape4"} {
		_, err := ParseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPostProcessCSSMinifies(t *testing.T) {
	css, err := PostProcessCSS(SassOutput{CSS: "a {\n  color: red;\n}\n"}, "main.min.css", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}\n", string(css))
}

func TestPostProcessCSSSourceMap(t *testing.T) {
	css, err := PostProcessCSS(SassOutput{CSS: "a { color: red; }"}, "main.min.css", nil, true)
	require.NoError(t, err)
	assert.Contains(t, string(css), "a{color:red}")
	assert.Contains(t, string(css), "sourceMappingURL=data:application/json;base64,")
}

func newTestStyles(dir string, compiler SassCompiler) *Styles {
	cfg := config.Default()
	return &Styles{
		Paths: config.StylePaths{
			Main: filepath.Join(dir, "src/styles/main.scss"),
			Src:  filepath.ToSlash(filepath.Join(dir, "src/styles/**/*.scss")),
			Dest: filepath.Join(dir, "dist/assets/styles"),
		},
		Options:  cfg.Styles,
		Compiler: compiler,
		Logger:   logging.Nop(),
	}
}

func TestStylesWritesMinifiedOutput(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{
		"src/styles/main.scss":        `@import "partials/*";`,
		"src/styles/partials/_a.scss": "",
	})

	compiler := &fakeSass{css: "a {\n  color: red;\n}\n"}
	stage := newTestStyles(dir, compiler)
	require.NoError(t, stage.Run(context.Background()))

	assert.Equal(t, "main.min.css", stage.OutputName())
	out := testutils.ReadFile(t, filepath.Join(dir, "dist/assets/styles/main.min.css"))
	assert.Contains(t, out, "a{color:red}")
	assert.Contains(t, out, "sourceMappingURL=")

	assert.Equal(t, `@import "partials/_a.scss";`, compiler.last.Source)
	assert.Equal(t, filepath.Join(dir, "src/styles"), compiler.last.IncludePaths[0])
	assert.True(t, compiler.last.SourceMap)
}

func TestStylesCompileErrorIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, map[string]string{"src/styles/main.scss": "a { color: }"})

	stage := newTestStyles(dir, &fakeSass{err: errors.New("expected expression")})
	err := stage.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRecoverable(err))
	assert.Contains(t, err.Error(), LabelStyles)
	assert.Contains(t, err.Error(), "expected expression")
}

func TestStylesMissingEntryIsRecoverable(t *testing.T) {
	stage := newTestStyles(t.TempDir(), &fakeSass{})
	err := stage.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRecoverable(err))
}
