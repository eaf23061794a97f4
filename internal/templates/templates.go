// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates holds the embedded HTML pages and exposes them as templ
// components.
package templates

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

//go:embed layouts/*.html partials/*.html pages/*.html pages/admin/*.html
var files embed.FS

// pages maps a page name such as "landing" or "admin/links" to its parsed
// set of layout, partials and page. The sets are never executed directly,
// only their clones.
var pages = mustParse(files)

// Page renders the named page inside the base layout.
func Page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return execute(ctx, w, name, "base", data)
	})
}

// Fragment renders a single block of the named page, used for partial
// updates of the verify panel.
func Fragment(name, block string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return execute(ctx, w, name, block, data)
	})
}

// Has reports whether a page with that name exists.
func Has(name string) bool {
	_, ok := pages[name]
	return ok
}

func execute(ctx context.Context, w io.Writer, name, block string, data any) error {
	set, ok := pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	t, err := set.Clone()
	if err != nil {
		return fmt.Errorf("cloning page %q: %w", name, err)
	}
	if err := t.Funcs(contextFuncs(ctx)).ExecuteTemplate(w, block, data); err != nil {
		return fmt.Errorf("rendering %s/%s: %w", name, block, err)
	}
	return nil
}

func mustParse(fsys fs.FS) map[string]*template.Template {
	set, err := parse(fsys)
	if err != nil {
		panic(err)
	}
	return set
}

func parse(fsys fs.FS) (map[string]*template.Template, error) {
	var names []string
	for _, pattern := range []string{"pages/*.html", "pages/admin/*.html"} {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		names = append(names, matches...)
	}

	set := make(map[string]*template.Template, len(names))
	for _, file := range names {
		name := strings.TrimSuffix(strings.TrimPrefix(file, "pages/"), ".html")
		t, err := template.New(path.Base(file)).
			Funcs(contextFuncs(context.Background())).
			ParseFS(fsys, "layouts/*.html", "partials/*.html", file)
		if err != nil {
			return nil, fmt.Errorf("parsing page %q: %w", name, err)
		}
		set[name] = t
	}
	return set, nil
}

// contextFuncs binds the request context to the template helpers.
func contextFuncs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t":       func(id string) string { return T(ctx, id) },
		"tdata":   func(id string, pairs ...any) string { return TData(ctx, id, pairs...) },
		"tplural": func(id string, n int) string { return tplural(ctx, id, n) },
		"csrf":    func() string { return CSRFToken(ctx) },
		"css":     func() string { return CSSPath(ctx) },
		"js":      func() string { return JSPath(ctx) },
		"locale":  func() string { return Locale(ctx) },
		"msg":     func(v any) string { return Message(ctx, v) },
		"flashes": func() any { return Flashes(ctx) },
		"admin":   func() bool { return IsAdmin(ctx) },
		"study":   func() any { return Study(ctx) },
		"phone":   FormatPhone,
		"time":    FormatTime,
		"dict":    dict,
		"lower":   lower,
		"add":     func(a, b int) int { return a + b },
		"pageurl": pageURL,
	}
}

// pageURL returns the relative URL of page n in the query parameter param,
// keeping the filters in query.
func pageURL(param, query string, n int) template.URL {
	values, _ := url.ParseQuery(query)
	if values == nil {
		values = url.Values{}
	}
	values.Set(param, strconv.Itoa(n))
	return template.URL("?" + values.Encode()) //nolint:gosec // values are re-encoded
}
