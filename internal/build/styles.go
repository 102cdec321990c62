package build

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// globImport matches @import/@use rules whose target contains a glob.
var globImport = regexp.MustCompile(`(?m)^([ \t]*)@(import|use)\s+["']([^"']*[*?\[{][^"']*)["']\s*;`)

// ExpandGlobImports replaces every glob @import or @use in source with one
// rule per matching file, resolved relative to dir and sorted. A glob with no
// matches expands to nothing.
func ExpandGlobImports(source, dir string) (string, error) {
	var expandErr error
	fsys := os.DirFS(dir)

	expanded := globImport.ReplaceAllStringFunc(source, func(rule string) string {
		m := globImport.FindStringSubmatch(rule)
		indent, keyword, pattern := m[1], m[2], strings.TrimPrefix(m[3], "./")

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			expandErr = fmt.Errorf("invalid glob import %q: %w", m[3], err)
			return rule
		}
		sort.Strings(matches)

		lines := make([]string, 0, len(matches))
		for _, match := range matches {
			if !isStylesheet(match) {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s@%s %q;", indent, keyword, match))
		}
		return strings.Join(lines, "\n")
	})

	return expanded, expandErr
}

func isStylesheet(name string) bool {
	switch filepath.Ext(name) {
	case ".scss", ".sass", ".css":
		return true
	}
	return false
}

// ParseTargets converts browser targets such as "chrome109" or "safari15.4"
// into esbuild engines, which drive vendor prefixing.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		target = strings.ToLower(strings.TrimSpace(target))
		i := strings.IndexFunc(target, unicode.IsDigit)
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", target)
		}

		var name api.EngineName
		switch target[:i] {
		case "chrome":
			name = api.EngineChrome
		case "edge":
			name = api.EngineEdge
		case "firefox":
			name = api.EngineFirefox
		case "safari":
			name = api.EngineSafari
		case "ios":
			name = api.EngineIOS
		case "opera":
			name = api.EngineOpera
		default:
			return nil, fmt.Errorf("unsupported browser %q in target %q", target[:i], target)
		}
		engines = append(engines, api.Engine{Name: name, Version: target[i:]})
	}
	return engines, nil
}

// PostProcessCSS prefixes and minifies compiled CSS with esbuild. When a
// source map is given it is chained through and the result carries an inline
// source map.
func PostProcessCSS(out SassOutput, sourcefile string, engines []api.Engine, sourceMap bool) ([]byte, error) {
	css := out.CSS
	if sourceMap && out.SourceMap != "" {
		css += "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString([]byte(out.SourceMap)) + " */\n"
	}

	mode := api.SourceMapNone
	if sourceMap {
		mode = api.SourceMapInline
	}

	result := api.Transform(css, api.TransformOptions{
		Loader:            api.LoaderCSS,
		Engines:           engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		Sourcemap:         mode,
		Sourcefile:        sourcefile,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, esbuildError(result.Errors)
	}
	return result.Code, nil
}

// Styles compiles the entry stylesheet to a single minified file.
type Styles struct {
	Paths    config.StylePaths
	Options  config.StylesConfig
	Compiler SassCompiler
	Logger   logging.Logger
}

// NewStyles creates the style stage from configuration.
func NewStyles(cfg *config.Config, compiler SassCompiler, logger logging.Logger) *Styles {
	return &Styles{
		Paths:    cfg.Paths.Styles,
		Options:  cfg.Styles,
		Compiler: compiler,
		Logger:   logger.WithComponent(StageStyles),
	}
}

// Name implements Stage.
func (s *Styles) Name() string { return StageStyles }

// OutputName returns the file name the entry stylesheet is written under,
// e.g. main.scss -> main.min.css.
func (s *Styles) OutputName() string {
	base := filepath.Base(s.Paths.Main)
	return strings.TrimSuffix(base, filepath.Ext(base)) + s.Options.Suffix + ".css"
}

// Run compiles, prefixes, minifies and writes the entry stylesheet. Every
// failure is recoverable.
func (s *Styles) Run(ctx context.Context) error {
	css, err := s.compile(ctx)
	if err != nil {
		return errs.Recoverable(StageStyles, LabelStyles, err)
	}

	dest := filepath.Join(s.Paths.Dest, s.OutputName())
	if err := writeFile(dest, css, 0644); err != nil {
		return errs.Recoverable(StageStyles, LabelStyles, err)
	}

	s.Logger.Info(ctx, "Compiled stylesheet", "output", dest, "bytes", len(css))
	return nil
}

func (s *Styles) compile(ctx context.Context) ([]byte, error) {
	main, err := filepath.Abs(s.Paths.Main)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(main)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(main)
	expanded, err := ExpandGlobImports(string(source), dir)
	if err != nil {
		return nil, err
	}

	engines, err := ParseTargets(s.Options.Targets)
	if err != nil {
		return nil, err
	}

	includePaths := append([]string{dir}, s.Options.IncludePaths...)
	out, err := s.Compiler.Compile(ctx, SassInput{
		Source:       expanded,
		URL:          (&url.URL{Scheme: "file", Path: filepath.ToSlash(main)}).String(),
		IncludePaths: includePaths,
		SourceMap:    s.Options.SourceMap,
	})
	if err != nil {
		return nil, err
	}

	return PostProcessCSS(out, s.OutputName(), engines, s.Options.SourceMap)
}
