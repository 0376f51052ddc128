// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

//go:build !dev

// Package assets provides embedded static assets with a content-hash version.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed static
var staticFS embed.FS

const stylesheet = "static/css/styles.css"

var cssPath = "/" + stylesheet

func init() {
	data, err := staticFS.ReadFile(stylesheet)
	if err != nil {
		slog.Error("failed to read stylesheet", "error", err)
		return
	}
	sum := sha256.Sum256(data)
	cssPath = "/" + stylesheet + "?v=" + hex.EncodeToString(sum[:])[:VersionLength]
	slog.Debug("loaded asset paths", "css", cssPath)
}

// CSSPath returns the versioned path to the main CSS file.
func CSSPath() string {
	return cssPath
}

// FileServer returns an http.Handler that serves embedded static files.
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("failed to create sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
