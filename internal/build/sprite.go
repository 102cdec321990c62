package build

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

const svgMediaType = "image/svg+xml"

// strippedAttrs are removed from every icon element so icons inherit colour
// from the page.
var strippedAttrs = map[string]bool{
	"fill":   true,
	"stroke": true,
	"style":  true,
}

// Icon is one processed SVG ready to become a sprite symbol.
type Icon struct {
	ID                  string
	ViewBox             string
	PreserveAspectRatio string
	// Body is the serialized content of the root svg element.
	Body string
}

// Sprite combines individual SVG icons into one document of symbols.
type Sprite struct {
	Entry    config.PathEntry
	FileName string
	Logger   logging.Logger

	minifier *minify.M
}

// NewSprite creates the sprite stage from configuration.
func NewSprite(cfg *config.Config, logger logging.Logger) *Sprite {
	return &Sprite{
		Entry:    cfg.Paths.SVG,
		FileName: cfg.Sprite.Name,
		Logger:   logger.WithComponent(StageSVG),
	}
}

// Name implements Stage.
func (s *Sprite) Name() string { return StageSVG }

// Run optimizes every icon, strips presentational attributes and writes the
// combined sprite. Every failure is fatal.
func (s *Sprite) Run(ctx context.Context) error {
	files, err := config.Expand(s.Entry.Src)
	if err != nil {
		return errs.Fatal(StageSVG, fmt.Errorf("failed to expand %s: %w", s.Entry.Src, err))
	}

	dest := filepath.Join(s.Entry.Dest, s.fileName())
	ids := make(map[string]bool, len(files))
	icons := make([]Icon, 0, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return errs.Fatal(StageSVG, err)
		}
		// A previous sprite matched by the icon glob is not an icon.
		if sameFile(file, dest) {
			continue
		}

		rel, err := config.Rel(s.Entry.Src, file)
		if err != nil {
			return errs.Fatal(StageSVG, err)
		}

		source, err := os.ReadFile(file)
		if err != nil {
			return errs.Fatal(StageSVG, err)
		}

		icon, err := s.ProcessIcon(source)
		if err != nil {
			return errs.Fatal(StageSVG, fmt.Errorf("%s: %w", file, err))
		}
		icon.ID = uniqueID(ids, SymbolID(rel))
		icons = append(icons, icon)
	}

	if err := writeFile(dest, []byte(CombineIcons(icons)), 0644); err != nil {
		return errs.Fatal(StageSVG, err)
	}

	s.Logger.Info(ctx, "Generated sprite", "output", dest, "icons", len(icons))
	return nil
}

func (s *Sprite) fileName() string {
	if s.FileName == "" {
		return "sprite.svg"
	}
	return s.FileName
}

// ProcessIcon optimizes one SVG document and returns it as an icon without
// fill, stroke or style attributes.
func (s *Sprite) ProcessIcon(source []byte) (Icon, error) {
	if s.minifier == nil {
		s.minifier = minify.New()
		s.minifier.AddFunc(svgMediaType, svg.Minify)
		s.minifier.AddFunc("text/css", css.Minify)
	}

	optimized, err := s.minifier.Bytes(svgMediaType, source)
	if err != nil {
		return Icon{}, fmt.Errorf("failed to optimize: %w", err)
	}

	icon, err := stripIcon(optimized)
	if err != nil {
		return Icon{}, err
	}
	icon.Body = strings.ReplaceAll(icon.Body, "&gt;", ">")
	return icon, nil
}

// stripIcon serializes the children of the root svg element, dropping the
// stripped attributes, comments and processing instructions.
func stripIcon(data []byte) (Icon, error) {
	var (
		icon  Icon
		body  bytes.Buffer
		depth int
		root  bool
		open  bool // a start tag is written but not yet closed
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	closeOpen := func() {
		if open {
			body.WriteByte('>')
			open = false
		}
	}

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Icon{}, fmt.Errorf("failed to parse svg: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && !root {
				if t.Name.Local != "svg" {
					return Icon{}, fmt.Errorf("root element is <%s>, not <svg>", t.Name.Local)
				}
				root = true
				icon.ViewBox, icon.PreserveAspectRatio = rootGeometry(t.Attr)
				depth++
				continue
			}
			closeOpen()
			body.WriteByte('<')
			body.WriteString(qualifiedName(t.Name))
			for _, attr := range t.Attr {
				if attr.Name.Space == "" && strippedAttrs[attr.Name.Local] {
					continue
				}
				if isNamespaceDecl(attr.Name) {
					continue
				}
				body.WriteByte(' ')
				body.WriteString(qualifiedName(attr.Name))
				body.WriteString(`="`)
				xml.EscapeText(&body, []byte(attr.Value))
				body.WriteByte('"')
			}
			open = true
			depth++

		case xml.EndElement:
			depth--
			if depth == 0 {
				continue
			}
			if open {
				body.WriteString("/>")
				open = false
				continue
			}
			body.WriteString("</")
			body.WriteString(qualifiedName(t.Name))
			body.WriteByte('>')

		case xml.CharData:
			if depth == 0 {
				continue
			}
			closeOpen()
			xml.EscapeText(&body, t)
		}
	}

	if !root {
		return Icon{}, fmt.Errorf("no <svg> element found")
	}
	icon.Body = body.String()
	return icon, nil
}

// rootGeometry returns the viewBox of the root element, derived from width
// and height when absent, and its preserveAspectRatio.
func rootGeometry(attrs []xml.Attr) (viewBox, aspect string) {
	var width, height string
	for _, attr := range attrs {
		switch attr.Name.Local {
		case "viewBox":
			viewBox = attr.Value
		case "preserveAspectRatio":
			aspect = attr.Value
		case "width":
			width = strings.TrimSuffix(attr.Value, "px")
		case "height":
			height = strings.TrimSuffix(attr.Value, "px")
		}
	}
	if viewBox == "" && width != "" && height != "" {
		viewBox = "0 0 " + width + " " + height
	}
	return viewBox, aspect
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func isNamespaceDecl(name xml.Name) bool {
	return (name.Space == "" && name.Local == "xmlns") || name.Space == "xmlns"
}

// CombineIcons renders icons as one sprite document with a symbol per icon.
func CombineIcons(icons []Icon) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`)
	for _, icon := range icons {
		fmt.Fprintf(&b, `<symbol id="%s"`, icon.ID)
		if icon.ViewBox != "" {
			fmt.Fprintf(&b, ` viewBox="%s"`, icon.ViewBox)
		}
		if icon.PreserveAspectRatio != "" {
			fmt.Fprintf(&b, ` preserveAspectRatio="%s"`, icon.PreserveAspectRatio)
		}
		b.WriteByte('>')
		b.WriteString(icon.Body)
		b.WriteString("</symbol>")
	}
	b.WriteString("</svg>\n")
	return b.String()
}

var slugTransformer = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	cases.Lower(language.Und),
)

// SymbolID derives a symbol id from an icon path relative to the glob base:
// "social/Twitter Logo.svg" becomes "social--twitter-logo".
func SymbolID(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	parts := strings.Split(rel, "/")

	slugs := make([]string, 0, len(parts))
	for _, part := range parts {
		if slug := slugify(part); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	if len(slugs) == 0 {
		return "icon"
	}
	return strings.Join(slugs, "--")
}

func slugify(s string) string {
	folded, _, err := transform.String(slugTransformer, s)
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// uniqueID returns id, or id suffixed -2, -3 and so on when already taken.
// seen holds every emitted id, so a suffixed id never collides with an icon
// whose own slug ends in a number.
func uniqueID(seen map[string]bool, id string) string {
	candidate := id
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	seen[candidate] = true
	return candidate
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
