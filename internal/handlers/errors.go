// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/templates"
)

var errorKeys = map[int]string{
	http.StatusBadRequest:            "error_bad_request",
	http.StatusForbidden:             "error_forbidden",
	http.StatusNotFound:              "error_not_found",
	http.StatusMethodNotAllowed:      "error_method_not_allowed",
	http.StatusRequestEntityTooLarge: "error_too_large",
	http.StatusTooManyRequests:       "error_rate_limited",
}

// ErrorMessage returns the user-facing text for an HTTP status.
func ErrorMessage(c echo.Context, code int) string {
	key, ok := errorKeys[code]
	if !ok {
		key = "error_internal"
	}
	return i18n.T(c.Request().Context(), key)
}

// plainErrors reports whether path answers errors as text instead of a page.
func plainErrors(path string) bool {
	return path == "/getsecret" || strings.HasPrefix(path, "/dist/")
}

// HTTPErrorHandler renders errors returned by handlers and middleware.
func (h *Handlers) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request_failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}

	if code == http.StatusTooManyRequests {
		c.Response().Header().Set("Retry-After", "1")
	}

	message := ErrorMessage(c, code)
	var rerr error
	switch {
	case c.Request().Method == http.MethodHead:
		rerr = c.NoContent(code)
	case plainErrors(c.Request().URL.Path):
		rerr = c.String(code, message)
	default:
		rerr = h.render(c, code, templates.Error(code, message))
	}
	if rerr != nil {
		slog.Error("error_page_failed", "error", rerr)
	}
}
