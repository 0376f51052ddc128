// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/appcontext"
	"codeberg.org/synchro/synchroweb/internal/ctxkeys"
	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// customContext wraps the Echo context with the app context carrying the
// request's session.
func customContext(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &appcontext.Context{
				Context: c,
				Session: sessions.Load(c.Request()),
			}
			return next(cc)
		}
	}
}

// assetsToContext populates request.Context with asset paths for template access.
func assetsToContext(cssPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), ctxkeys.CSSPath{}, cssPath)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
