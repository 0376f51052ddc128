// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"codeberg.org/synchro/synchroweb/internal/ctxkeys"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/services/session"
	"codeberg.org/synchro/synchroweb/internal/templates"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func englishCtx() context.Context {
	return i18n.WithLocale(context.Background(), language.English)
}

func TestPages_Render(t *testing.T) {
	pages := map[string]templ.Component{
		"home":            templates.Home(),
		"signup":          templates.Signup(templates.Form{}),
		"signup_complete": templates.SignupComplete(),
		"login":           templates.Login(templates.Form{}),
		"verify":          templates.Verify(templates.Form{}),
		"verify_complete": templates.VerifyComplete(""),
		"forgot":          templates.Forgot(templates.Form{}),
		"reset":           templates.Reset(templates.Form{}),
		"account":         templates.Account(templates.Form{}),
		"changepass":      templates.ChangePassword(),
		"changeemail":     templates.ChangeEmail(templates.Form{}),
		"license":         templates.License(templates.Form{Version: "1.0"}),
		"error":           templates.Error(404, "Not Found"),
	}

	for name, c := range pages {
		t.Run(name, func(t *testing.T) {
			html := renderString(t, englishCtx(), c)
			assert.Contains(t, html, "<!doctype html>")
			assert.Contains(t, html, `<html lang="en">`)
			assert.NotContains(t, html, "page_")
		})
	}
}

func TestPage_Title(t *testing.T) {
	ctx := templates.WithChrome(englishCtx(), templates.Chrome{Site: "Synchro"})

	html := renderString(t, ctx, templates.Login(templates.Form{}))

	assert.Contains(t, html, "<title>Sign in | Synchro</title>")
}

func TestPage_GermanLocale(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	html := renderString(t, ctx, templates.Login(templates.Form{}))

	assert.Contains(t, html, `<html lang="de">`)
	assert.Contains(t, html, "Anmelden")
}

func TestPage_CSRFToken(t *testing.T) {
	ctx := context.WithValue(englishCtx(), ctxkeys.CSRFToken{}, "tok-123")

	html := renderString(t, ctx, templates.Signup(templates.Form{}))

	assert.Contains(t, html, `name="csrf_token" value="tok-123"`)
}

func TestPage_CSSPath(t *testing.T) {
	html := renderString(t, englishCtx(), templates.Home())
	assert.Contains(t, html, `href="/static/css/styles.css"`)

	ctx := context.WithValue(englishCtx(), ctxkeys.CSSPath{}, "/static/css/styles.css?v=abc")
	html = renderString(t, ctx, templates.Home())
	assert.Contains(t, html, `href="/static/css/styles.css?v=abc"`)
}

func TestPage_Chrome(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		html := renderString(t, englishCtx(), templates.Home())

		assert.Contains(t, html, `href="/login"`)
		assert.NotContains(t, html, `href="/logout"`)
	})

	t.Run("signed in unverified", func(t *testing.T) {
		ctx := templates.WithChrome(englishCtx(), templates.Chrome{
			SignedIn: true,
			Email:    "a@x.com",
			Name:     "Ada",
		})

		html := renderString(t, ctx, templates.Home())

		assert.Contains(t, html, `href="/logout"`)
		assert.Contains(t, html, "Ada")
		assert.Contains(t, html, "Your email address a@x.com has not been verified yet.")
	})

	t.Run("signed in verified", func(t *testing.T) {
		ctx := templates.WithChrome(englishCtx(), templates.Chrome{
			SignedIn: true,
			Email:    "a@x.com",
			Verified: true,
		})

		html := renderString(t, ctx, templates.Home())

		assert.NotContains(t, html, "has not been verified")
	})
}

func TestPage_Flashes(t *testing.T) {
	ctx := templates.WithChrome(englishCtx(), templates.Chrome{
		Flashes: []session.Flash{
			{Level: session.LevelInfo, Message: "Saved"},
			{Level: session.LevelWarn, Message: "<b>careful</b>"},
		},
	})

	html := renderString(t, ctx, templates.Home())

	assert.Contains(t, html, `class="flash flash-info"`)
	assert.Contains(t, html, "Saved")
	assert.Contains(t, html, "&lt;b&gt;careful&lt;/b&gt;")
}

func TestReset_CodeField(t *testing.T) {
	hidden := renderString(t, englishCtx(), templates.Reset(templates.Form{Code: "rec-1"}))
	assert.Contains(t, hidden, `type="hidden" name="code" value="rec-1"`)

	shown := renderString(t, englishCtx(), templates.Reset(templates.Form{Code: "rec-1", ShowCode: true}))
	assert.Contains(t, shown, `type="text" name="code" value="rec-1"`)
}

func TestVerifyComplete_Next(t *testing.T) {
	html := renderString(t, englishCtx(), templates.VerifyComplete("/license"))

	assert.Contains(t, html, `href="/license"`)
}

func TestChrome_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada", templates.Chrome{Name: "Ada", Email: "a@x.com"}.DisplayName())
	assert.Equal(t, "a@x.com", templates.Chrome{Email: "a@x.com"}.DisplayName())
}
