// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides the Echo middleware of the site.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/appcontext"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// RequireSignedIn redirects anonymous visitors to the login page and
// remembers the requested path so login can return to it.
func RequireSignedIn(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc, ok := appcontext.From(c)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "session middleware missing")
		}
		if cc.IsAuthenticated() {
			return next(c)
		}

		cc.Session.AddFlash(session.LevelInfo, i18n.T(c.Request().Context(), "flash_sign_in_required"))
		cc.Session.NextPage = c.Request().URL.Path
		if err := cc.SaveSession(); err != nil {
			return err
		}
		return c.Redirect(http.StatusFound, "/login")
	}
}
