// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers maps HTTP requests onto the account lifecycle.
package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/repository"
	"codeberg.org/synchro/synchroweb/internal/services/account"
	"codeberg.org/synchro/synchroweb/internal/services/blob"
	"codeberg.org/synchro/synchroweb/internal/services/sso"
	"codeberg.org/synchro/synchroweb/internal/templates"
)

// Deps are the collaborators of the handlers.
type Deps struct {
	Accounts *account.Service
	Store    repository.AccountStore
	Blobs    blob.Store
	SSO      *sso.Bridge
	Site     config.SiteConfig
	BaseURL  string // empty derives links from the request
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	accounts *account.Service
	store    repository.AccountStore
	blobs    blob.Store
	sso      *sso.Bridge
	site     config.SiteConfig
	base     string
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	return &Handlers{
		accounts: d.Accounts,
		store:    d.Store,
		blobs:    d.Blobs,
		sso:      d.SSO,
		site:     d.Site,
		base:     strings.TrimSuffix(d.BaseURL, "/"),
	}
}

// Health reports whether the account store is reachable.
func (h *Handlers) Health(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Home renders the home page.
func (h *Handlers) Home(c echo.Context) error {
	return h.render(c, http.StatusOK, templates.Home())
}

// baseURL is the origin used in mailed links.
func (h *Handlers) baseURL(c echo.Context) string {
	if h.base != "" {
		return h.base
	}
	return c.Scheme() + "://" + c.Request().Host
}

// absolute turns a site path into a full URL.
func (h *Handlers) absolute(c echo.Context, path string) string {
	if strings.HasPrefix(path, "/") {
		return h.baseURL(c) + path
	}
	return path
}

// defaultNext is where a login lands without a remembered page. Logins
// coming through the help center host go to the main site instead.
func (h *Handlers) defaultNext(c echo.Context) string {
	if h.site.SupportHost != "" && h.site.HomeURL != "" &&
		strings.HasPrefix(c.Request().Host, h.site.SupportHost) {
		return h.site.HomeURL
	}
	return "/"
}
