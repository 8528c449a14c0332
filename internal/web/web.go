// Package web holds the embedded templates and static assets of the
// CodeCanvas pages.
//
// TEMPLATE COMPOSITION:
// Every view is parsed together with the two layouts and the shared
// partials. A view defines "content" (and optionally "head"); the layout
// named by the route wraps it:
//
//	layouts.html  → {{define "main"}} header + {{template "content" .}} + toasts
//	              → {{define "bare"}} {{template "content" .}} + toasts
//	views/pen.html → {{define "content"}} ... {{end}}
//
// View sets are parsed on first use and cached, so a page nobody opens costs
// nothing at startup.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sakif/codecanvas/internal/routes"
)

//go:embed templates static
var files embed.FS

// Static serves the embedded static assets. Mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return http.FileServer(http.FS(sub))
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"initial": func(s string) string {
		for _, r := range s {
			return strings.ToUpper(string(r))
		}
		return "?"
	},
}

// Views renders page views.
type Views struct {
	sets map[string]func() (*template.Template, error) // fixed after NewViews
}

// NewViews prepares lazy template sets for every known view.
func NewViews() *Views {
	v := &Views{sets: make(map[string]func() (*template.Template, error))}
	for _, name := range []string{
		routes.ViewHome, routes.ViewTrending, routes.ViewSearch,
		routes.ViewEditor, routes.ViewPen,
		routes.ViewLogin, routes.ViewSignup, routes.ViewCallback, routes.ViewError,
		routes.ViewPromptPassword, routes.ViewResetPassword, routes.ViewNotFound,
	} {
		v.sets[name] = lazySet(name)
	}
	return v
}

func lazySet(view string) func() (*template.Template, error) {
	return sync.OnceValues(func() (*template.Template, error) {
		t, err := template.New(view).Funcs(funcs).ParseFS(files,
			"templates/layouts.html",
			"templates/partials.html",
			"templates/views/"+view+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("web: parsing view %s: %w", view, err)
		}
		return t, nil
	})
}

// Render executes view inside layout and writes it with status. The page
// is rendered into a buffer first so a template error never leaves a half
// written response.
func (v *Views) Render(w http.ResponseWriter, status int, view string, layout routes.Layout, page *Page) error {
	load, ok := v.sets[view]
	if !ok {
		return fmt.Errorf("web: unknown view %q", view)
	}

	t, err := load()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, string(layout), page); err != nil {
		return fmt.Errorf("web: rendering %s: %w", view, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

// Has reports whether view is known.
func (v *Views) Has(view string) bool {
	_, ok := v.sets[view]
	return ok
}
