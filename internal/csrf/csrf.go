// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package csrf protects form posts with a double-submit cookie token.
package csrf

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"codeberg.org/synchro/synchroweb/internal/ctxkeys"
)

// CookieName is the cookie holding the token.
const CookieName = "_csrf"

// FormField is the form field templates submit the token in.
const FormField = "csrf_token"

const contextKey = "csrf"

// exempt paths are machine endpoints without forms.
var exempt = []string{"/getsecret", "/dist/", "/metrics", "/health", "/static/"}

// GetToken retrieves the CSRF token from the context
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}

// Middleware validates the token on unsafe methods and exposes it to
// templates through the request context.
func Middleware(secure bool) echo.MiddlewareFunc {
	protect := middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper:        skip,
		TokenLookup:    "form:" + FormField + ",header:X-CSRF-Token",
		ContextKey:     contextKey,
		CookieName:     CookieName,
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		ErrorHandler: func(err error, c echo.Context) error {
			slog.Warn("csrf_failure",
				"path", c.Request().URL.Path,
				"method", c.Request().Method,
				"ip", c.RealIP(),
				"error", err,
			)
			return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return protect(func(c echo.Context) error {
			if token, ok := c.Get(contextKey).(string); ok {
				ctx := context.WithValue(c.Request().Context(), ctxkeys.CSRFToken{}, token)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		})
	}
}

func skip(c echo.Context) bool {
	path := c.Request().URL.Path
	for _, p := range exempt {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}
