// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the request-scoped Echo context.
package appcontext

import (
	"github.com/labstack/echo/v4"

	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// Context is a custom Echo context carrying the request's session.
type Context struct {
	echo.Context
	Session *session.Session
}

// From returns the app context of c. Handlers registered behind the session
// middleware always get one.
func From(c echo.Context) (*Context, bool) {
	cc, ok := c.(*Context)
	return cc, ok && cc.Session != nil
}

// IsAuthenticated returns true if an identity is stored in the session.
func (c *Context) IsAuthenticated() bool {
	return c.Session != nil && c.Session.SignedIn()
}

// SaveSession writes the session cookie to the response.
func (c *Context) SaveSession() error {
	return c.Session.Save(c.Request(), c.Response())
}
