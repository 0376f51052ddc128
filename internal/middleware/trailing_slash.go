// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// StripTrailingSlash redirects requests with trailing slashes to the canonical URL without.
func StripTrailingSlash(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := strings.TrimRight(path, "/")
			if newURL == "" {
				newURL = "/"
			}
			if q := c.Request().URL.RawQuery; q != "" {
				newURL += "?" + q
			}
			return c.Redirect(http.StatusMovedPermanently, newURL)
		}
		return next(c)
	}
}
