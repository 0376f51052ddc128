// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import (
	"context"

	"codeberg.org/synchro/synchroweb/internal/ctxkeys"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// Chrome is the data every page frame shows.
type Chrome struct {
	Site          string
	SignedIn      bool
	Email         string
	Name          string
	Verified      bool
	LicenseAgreed bool
	Flashes       []session.Flash
}

// DisplayName is the name shown in the header.
func (c Chrome) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// WithChrome adds the page frame data to ctx.
func WithChrome(ctx context.Context, c Chrome) context.Context {
	return context.WithValue(ctx, ctxkeys.Chrome{}, c)
}

// GetChrome returns the page frame data from ctx.
func GetChrome(ctx context.Context) Chrome {
	c, _ := ctx.Value(ctxkeys.Chrome{}).(Chrome)
	return c
}

// CSRFToken returns the CSRF token from the context.
func CSRFToken(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}

// CSSPath returns the path to the stylesheet.
func CSSPath(ctx context.Context) string {
	if path, ok := ctx.Value(ctxkeys.CSSPath{}).(string); ok {
		return path
	}
	return "/static/css/styles.css"
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return i18n.T(ctx, messageID)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return i18n.TData(ctx, messageID, data)
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}
