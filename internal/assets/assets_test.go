// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

//go:build !dev

package assets_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/synchro/synchroweb/internal/assets"
)

func TestCSSPath_Versioned(t *testing.T) {
	path, version, ok := strings.Cut(assets.CSSPath(), "?v=")

	require.True(t, ok)
	assert.Equal(t, "/static/css/styles.css", path)
	assert.True(t, assets.IsVersion(version), version)
}

func TestFileServer(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/css/styles.css", nil)

	assets.FileServer().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Contains(t, rec.Body.String(), ".site-header")
}

func TestIsVersion(t *testing.T) {
	tests := []struct {
		v        string
		expected bool
	}{
		{"abc12345", true},
		{"d073ff63", true},
		{"ABCDEFGH", false},  // uppercase not allowed
		{"abcd123", false},   // wrong length
		{"abcd12345", false}, // wrong length
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.v, func(t *testing.T) {
			assert.Equal(t, tt.expected, assets.IsVersion(tt.v))
		})
	}
}
