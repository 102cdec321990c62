package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"

	"github.com/a-h/templ"

	"github.com/conneroisu/sitepipe/internal/livereload"
)

// listingEntry is one row of a directory listing.
type listingEntry struct {
	Name  string
	Href  string
	IsDir bool
	Size  int64
}

func listEntries(urlPath string, entries []os.DirEntry) []listingEntry {
	rows := make([]listingEntry, 0, len(entries))
	for _, entry := range entries {
		row := listingEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		row.Href = path.Join(urlPath, entry.Name())
		if row.IsDir {
			row.Name += "/"
			row.Href += "/"
		} else if info, err := entry.Info(); err == nil {
			row.Size = info.Size()
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].IsDir != rows[j].IsDir {
			return rows[i].IsDir
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

func pageHead(w io.Writer, title string) error {
	_, err := fmt.Fprintf(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title>`+
		`<style>body{font-family:system-ui,sans-serif;margin:2rem}td{padding:.2rem 1rem .2rem 0}</style>`+
		`</head><body>`, templ.EscapeString(title))
	return err
}

func pageFoot(w io.Writer) error {
	_, err := fmt.Fprintf(w, `<script src="%s"></script></body></html>`, livereload.ScriptPath)
	return err
}

// listingPage renders the contents of a directory without an index.html.
func listingPage(urlPath string, rows []listingEntry) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := pageHead(w, "Index of "+urlPath); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<h1>Index of %s</h1><table>", templ.EscapeString(urlPath)); err != nil {
			return err
		}
		if urlPath != "/" {
			if _, err := io.WriteString(w, `<tr><td><a href="../">../</a></td><td></td></tr>`); err != nil {
				return err
			}
		}
		for _, row := range rows {
			size := ""
			if !row.IsDir {
				size = fmt.Sprintf("%d B", row.Size)
			}
			if _, err := fmt.Fprintf(w, `<tr><td><a href="%s">%s</a></td><td>%s</td></tr>`,
				templ.EscapeString(row.Href), templ.EscapeString(row.Name), size); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</table>"); err != nil {
			return err
		}
		return pageFoot(w)
	})
}

// notFoundPage is shown for paths missing from the output root.
func notFoundPage(urlPath string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := pageHead(w, "Not found"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<h1>404</h1><p>%s is not in the build output.</p><p><a href="/">Back to /</a></p>`,
			templ.EscapeString(urlPath)); err != nil {
			return err
		}
		return pageFoot(w)
	})
}

func renderNotFound(w http.ResponseWriter, r *http.Request) {
	templ.Handler(notFoundPage(r.URL.Path), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
}
