// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys defines typed context keys used across packages.
package ctxkeys

// CSRFToken is the context key for the CSRF token.
type CSRFToken struct{}

// CSSPath is the context key for the stylesheet path.
type CSSPath struct{}

// Chrome is the context key for the page frame data (site name, identity, flashes).
type Chrome struct{}
