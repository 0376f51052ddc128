// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"codeberg.org/synchro/synchroweb/internal/assets"
	"codeberg.org/synchro/synchroweb/internal/csrf"
	mw "codeberg.org/synchro/synchroweb/internal/middleware"
)

func setupMiddleware(e *echo.Echo, app *App) {
	cfg := app.Config

	e.Pre(mw.StripTrailingSlash)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(mw.RequestLogger())
	e.Use(app.Metrics.Middleware())
	e.Use(middleware.Secure())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{Skipper: skipGzip}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(staticCacheHeaders())
	e.Use(mw.Locale)
	e.Use(csrf.Middleware(cfg.SecureCookies()))
	e.Use(assetsToContext(assets.CSSPath()))
	e.Use(customContext(app.Sessions))
}

// ipExtractor takes the client IP from the connection. X-Forwarded-For is
// only read when the connection comes from one of the trusted ranges.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range trusted {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// skipGzip leaves downloads untouched so Content-Length survives.
func skipGzip(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasPrefix(path, "/dist/") || path == "/metrics"
}

// staticCacheHeaders adds cache headers for static assets.
func staticCacheHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/static/") {
				if assets.IsVersion(c.QueryParam("v")) {
					// Versioned assets get immutable caching
					c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				} else {
					c.Response().Header().Set("Cache-Control", "no-cache")
				}
			}
			return next(c)
		}
	}
}
