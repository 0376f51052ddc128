// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ZendeskLoginPage is the remote authentication entry of the help center.
// Signed-in users go straight back with a token; others log in first.
func (h *Handlers) ZendeskLoginPage(c echo.Context) error {
	if !h.sso.Enabled() {
		return echo.ErrNotFound
	}
	cc, err := appContext(c)
	if err != nil {
		return err
	}

	returnTo := c.QueryParam("return_to")
	if !h.allowedReturnTo(returnTo) {
		returnTo = ""
	}
	if !cc.Session.SignedIn() {
		if returnTo != "" {
			cc.Session.NextPage = returnTo
		}
		return h.LoginPage(c)
	}

	a := h.currentAccount(c, cc)
	if a == nil {
		return redirect(c, "/")
	}
	to, err := h.sso.LoginURL(identity(a), returnTo)
	if err != nil {
		return err
	}
	return redirect(c, to)
}

// ZendeskLogin handles the login form posted from the help center entry.
func (h *Handlers) ZendeskLogin(c echo.Context) error {
	if !h.sso.Enabled() {
		return echo.ErrNotFound
	}
	return h.Login(c)
}

// ZendeskLogout is where the help center sends users after its own logout.
func (h *Handlers) ZendeskLogout(c echo.Context) error {
	if !h.sso.Enabled() {
		return c.Redirect(http.StatusFound, "/")
	}
	return h.signOut(c)
}

// allowedReturnTo accepts paths on this site and pages of the help center.
func (h *Handlers) allowedReturnTo(raw string) bool {
	return localPath(raw) || h.sso.AllowsReturnTo(raw)
}
