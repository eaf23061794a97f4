// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

//go:build !dev

// Package assets embeds the stylesheet and script of the portal. A release
// build may replace them with content-hashed bundles listed in the esbuild
// metafile.
package assets

import (
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed esbuild-meta.json
var metaData []byte

//go:embed static
var staticFS embed.FS

// Unbundled paths, used when the metafile lists no outputs.
const (
	defaultCSS = "/static/css/styles.css"
	defaultJS  = "/static/js/app.js"
)

// esbuildMeta is the subset of the esbuild metafile we read.
type esbuildMeta struct {
	Outputs map[string]struct{} `json:"outputs"`
}

var cssPath, jsPath = resolvePaths(metaData)

// resolvePaths returns the URL paths of the stylesheet and script named in
// the metafile, falling back to the unbundled files.
func resolvePaths(meta []byte) (css, js string) {
	css, js = defaultCSS, defaultJS
	if len(meta) == 0 {
		return css, js
	}

	var m esbuildMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		slog.Error("failed to parse esbuild meta", "error", err)
		return css, js
	}

	for output := range m.Outputs {
		idx := strings.Index(output, "/static/")
		if idx < 0 {
			continue
		}
		switch url := output[idx:]; {
		case strings.HasSuffix(url, ".css"):
			css = url
		case strings.HasSuffix(url, ".js"):
			js = url
		}
	}
	return css, js
}

// CSSPath returns the URL path of the stylesheet.
func CSSPath() string {
	return cssPath
}

// JSPath returns the URL path of the script.
func JSPath() string {
	return jsPath
}

// FileServer serves the embedded static directory.
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("failed to create sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
