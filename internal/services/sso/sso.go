// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sso signs Zendesk JWT single sign-on requests.
package sso

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrDisabled is returned when no shared key is configured.
var ErrDisabled = errors.New("zendesk sso is not configured")

// Identity is the signed-in user handed to the help desk.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Claims is the Zendesk JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Name       string `json:"name"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id,omitempty"`
}

// Bridge builds login and logout redirects for a Zendesk subdomain.
type Bridge struct {
	subdomain string
	key       []byte
	now       func() time.Time
}

// New creates a bridge. An empty shared key leaves it disabled.
func New(subdomain, sharedKey string) *Bridge {
	return &Bridge{subdomain: subdomain, key: []byte(sharedKey), now: time.Now}
}

// WithClock returns a copy of b using now as its clock.
func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	c := *b
	c.now = now
	return &c
}

// Enabled reports whether help desk sign-on is configured.
func (b *Bridge) Enabled() bool {
	return b != nil && len(b.key) > 0 && b.subdomain != ""
}

func (b *Bridge) baseURL() string {
	return "https://" + b.subdomain + ".zendesk.com/"
}

// AllowsReturnTo reports whether raw points into the help center, the only
// absolute destination accepted after sign-on.
func (b *Bridge) AllowsReturnTo(raw string) bool {
	if !b.Enabled() {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.User == nil && strings.EqualFold(u.Host, b.subdomain+".zendesk.com")
}

// LoginURL signs a token for id and returns the Zendesk JWT endpoint,
// passing returnTo through when set.
func (b *Bridge) LoginURL(id Identity, returnTo string) (string, error) {
	if !b.Enabled() {
		return "", ErrDisabled
	}

	name := id.Name
	if name == "" {
		name = id.Email
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(b.now()),
			ID:       uuid.NewString(),
		},
		Name:       name,
		Email:      id.Email,
		ExternalID: id.ID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	if err != nil {
		return "", fmt.Errorf("signing sso token: %w", err)
	}

	q := url.Values{}
	q.Set("jwt", token)
	if returnTo != "" {
		q.Set("return_to", returnTo)
	}
	return b.baseURL() + "access/jwt?" + q.Encode(), nil
}

// LogoutURL is the Zendesk endpoint that signs the user out there and then
// redirects back to the configured logout route.
func (b *Bridge) LogoutURL() string {
	return b.baseURL() + "access/logout"
}
