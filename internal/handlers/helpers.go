// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/appcontext"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/services/session"
	"codeberg.org/synchro/synchroweb/internal/templates"
)

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Render renders a templ component with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTML(statusCode, buf.String())
}

// render drains the session's flashes into the page frame, saves the
// session and renders component.
func (h *Handlers) render(c echo.Context, status int, component templ.Component) error {
	chrome := templates.Chrome{Site: h.site.Name}

	if cc, ok := appcontext.From(c); ok {
		s := cc.Session
		chrome.SignedIn = s.SignedIn()
		chrome.Email = s.Email
		chrome.Name = s.Name
		chrome.Verified = s.Verified
		chrome.LicenseAgreed = s.LicenseAgreed
		chrome.Flashes = s.Flashes()
		if err := cc.SaveSession(); err != nil {
			return err
		}
	}

	ctx := templates.WithChrome(c.Request().Context(), chrome)
	c.SetRequest(c.Request().WithContext(ctx))
	return Render(c, status, component)
}

// redirect saves the session and redirects with 302.
func redirect(c echo.Context, to string) error {
	if cc, ok := appcontext.From(c); ok {
		if err := cc.SaveSession(); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusFound, to)
}

// appContext returns the request's app context or a 500 error.
func appContext(c echo.Context) (*appcontext.Context, error) {
	cc, ok := appcontext.From(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "session middleware missing")
	}
	return cc, nil
}

// flash queues the translated message key.
func flash(cc *appcontext.Context, level, key string, data map[string]any) {
	cc.Session.AddFlash(level, i18n.TData(cc.Request().Context(), key, data))
}

func info(cc *appcontext.Context, key string) {
	flash(cc, session.LevelInfo, key, nil)
}

func warn(cc *appcontext.Context, key string) {
	flash(cc, session.LevelWarn, key, nil)
}

// decodeForm fills dst from the query string and form body.
func decodeForm(c echo.Context, dst any) error {
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if err := formDecoder.Decode(dst, params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	return nil
}

// back is the same-site page the request came from, or "/".
func back(c echo.Context) string {
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Host != c.Request().Host || ref.Path == "" {
		return "/"
	}
	return ref.RequestURI()
}

// localPath reports whether p is a path on this site. Protocol-relative
// forms like //host and /\host are rejected.
func localPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// nextOr consumes the remembered page, falling back to def.
func nextOr(cc *appcontext.Context, def string) string {
	if next := cc.Session.TakeNextPage(); next != "" {
		return next
	}
	return def
}
