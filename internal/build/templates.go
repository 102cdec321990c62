package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Joker/jade"
	"github.com/yosssi/gohtml"
	"github.com/yuin/goldmark"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// PageData is the data every page template executes with.
type PageData struct {
	// Name is the page file name without extension.
	Name string
	// URL is the site-relative URL of the rendered page.
	URL string
	// Site holds the global values from templates.data.
	Site map[string]interface{}
}

// PageRenderer renders one page template file to HTML.
type PageRenderer interface {
	Render(file string, data PageData) ([]byte, error)
}

// JadeRenderer compiles pug syntax with jade into an html/template and
// executes it.
type JadeRenderer struct {
	Funcs  template.FuncMap
	Pretty bool
}

// NewJadeRenderer creates a renderer with the standard page functions.
func NewJadeRenderer(cfg config.TemplatesConfig) *JadeRenderer {
	return &JadeRenderer{
		Funcs:  PageFuncs(cfg.AssetsPrefix),
		Pretty: cfg.Pretty,
	}
}

// Render implements PageRenderer.
func (r *JadeRenderer) Render(file string, data PageData) ([]byte, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	compiled, err := jade.Parse(file, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", file, err)
	}

	tpl, err := template.New(filepath.Base(file)).Funcs(r.Funcs).Parse(compiled)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compiled %s: %w", file, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", file, err)
	}

	if r.Pretty {
		return []byte(gohtml.Format(buf.String()) + "\n"), nil
	}
	return buf.Bytes(), nil
}

// PageFuncs returns the functions available to every page template.
//
// asset resolves a path under the public assets prefix. Script bundles are
// ES modules and must be referenced from <script type="module">.
func PageFuncs(assetsPrefix string) template.FuncMap {
	return template.FuncMap{
		"markdown": markdownToHTML,
		"asset": func(p string) string {
			return path.Join("/", assetsPrefix, p)
		},
	}
}

// markdownToHTML converts a markdown string to HTML using goldmark.
func markdownToHTML(input string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Templates renders each page template to an HTML file in the output root.
type Templates struct {
	Paths    config.TemplatePaths
	Site     map[string]interface{}
	Renderer PageRenderer
	Logger   logging.Logger
}

// NewTemplates creates the template stage from configuration.
func NewTemplates(cfg *config.Config, logger logging.Logger) *Templates {
	return &Templates{
		Paths:    cfg.Paths.Templates,
		Site:     cfg.Templates.Data,
		Renderer: NewJadeRenderer(cfg.Templates),
		Logger:   logger.WithComponent(StageTemplates),
	}
}

// Name implements Stage.
func (t *Templates) Name() string { return StageTemplates }

// Run renders every page. A page that fails to render does not stop the
// others; all failures are reported together as one recoverable error.
func (t *Templates) Run(ctx context.Context) error {
	pages, err := config.Expand(t.Paths.Pages)
	if err != nil {
		return errs.Recoverable(StageTemplates, LabelTemplates, err)
	}

	var failures []error
	rendered := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return errs.Fatal(StageTemplates, err)
		}

		name := strings.TrimSuffix(filepath.Base(page), filepath.Ext(page))
		data := PageData{
			Name: name,
			URL:  "/" + name + ".html",
			Site: t.Site,
		}

		html, err := t.Renderer.Render(page, data)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		dest := filepath.Join(t.Paths.Dest, name+".html")
		if err := writeFile(dest, html, 0644); err != nil {
			failures = append(failures, err)
			continue
		}
		rendered++
	}

	t.Logger.Info(ctx, "Rendered pages", "count", rendered, "failed", len(failures))
	return errs.Recoverable(StageTemplates, LabelTemplates, errors.Join(failures...))
}
