// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/synchro/synchroweb/internal/assets"
	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/csrf"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/metrics"
	"codeberg.org/synchro/synchroweb/internal/ratelimit"
	"codeberg.org/synchro/synchroweb/internal/repository"
	"codeberg.org/synchro/synchroweb/internal/services/account"
	"codeberg.org/synchro/synchroweb/internal/services/sso"
	"codeberg.org/synchro/synchroweb/internal/testutil"
)

func init() {
	_ = i18n.Init()
}

type fixture struct {
	app      *App
	repo     *repository.Repository
	notifier *testutil.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	notifier := &testutil.Notifier{}
	m := metrics.New()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", MaxBodySize: 1},
		Site:   config.SiteConfig{Name: "Synchro"},
	}
	return &fixture{
		app: &App{
			Config:   cfg,
			Store:    repo,
			Accounts: account.NewService(repo, notifier, account.DefaultPolicy(), account.WithRecorder(m)),
			Blobs:    &testutil.Blobs{Files: map[string]string{"sdk.zip": "zipdata"}},
			SSO:      sso.New("", ""),
			Sessions: testutil.NewSessionManager(t),
			Metrics:  m,
			Limiter:  ratelimit.New(0, 0),
		},
		repo:     repo,
		notifier: notifier,
	}
}

// browser keeps cookies across requests and does not follow redirects.
type browser struct {
	t      *testing.T
	base   *url.URL
	client *http.Client
}

func newBrowser(t *testing.T, app *App) *browser {
	t.Helper()
	srv := httptest.NewServer(New(app))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return res, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base.String()+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) getWithHeader(path string, header http.Header) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base.String()+path, nil)
	require.NoError(b.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return b.do(req)
}

// post submits form with the CSRF token from the cookie jar.
func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	form.Set(csrf.FormField, b.csrfToken())
	req, err := http.NewRequest(http.MethodPost, b.base.String()+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) csrfToken() string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == csrf.CookieName {
			return c.Value
		}
	}
	b.t.Fatal("no csrf cookie, GET a page first")
	return ""
}

func secretQuery(email, password string) string {
	return "/getsecret?" + url.Values{"email": {email}, "password": {password}}.Encode()
}

func TestSignupToSecret(t *testing.T) {
	f := newFixture(t)
	b := newBrowser(t, f.app)

	res, _ := b.get("/signup")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = b.post("/signup", url.Values{
		"email":    {"ada@x.com"},
		"password": {"engine"},
		"name":     {"Ada"},
	})
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/signup-complete", res.Header.Get("Location"))

	res, body := b.get("/")
	assert.Contains(t, body, "Your email address ada@x.com has not been verified yet.")

	res, _ = b.get(secretQuery("ada@x.com", "engine"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	mail, ok := f.notifier.LastVerification()
	require.True(t, ok)
	res, _ = b.get("/verify?code=" + url.QueryEscape(mail.Code))
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/verify-complete", res.Header.Get("Location"))

	res, body = b.get("/verify-complete")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, body, "has not been verified")

	res, _ = b.get(secretQuery("ada@x.com", "engine"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = b.get("/license")
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = b.post("/license", url.Values{"name": {"Ada Lovelace"}, "title": {"Analyst"}})
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))

	res, body = b.get(secretQuery("ada@x.com", "engine"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var creds account.Credentials
	require.NoError(t, json.Unmarshal([]byte(body), &creds))
	assert.Equal(t, "ada@x.com", creds.Email)
	assert.NotEmpty(t, creds.Secret)

	res, body = b.get("/dist/" + creds.Secret + "/sdk.zip")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "zipdata", body)
	assert.Equal(t, "7", res.Header.Get("Content-Length"))
}

func TestForgotResetLogin(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "a@x.com")
	b := newBrowser(t, f.app)

	res, _ := b.get("/forgot")
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = b.post("/forgot", url.Values{"email": {"a@x.com"}})
	require.Equal(t, http.StatusFound, res.StatusCode)

	mail, ok := f.notifier.LastRecovery()
	require.True(t, ok)

	res, body := b.get("/reset?code=" + url.QueryEscape(mail.Code))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `type="hidden" name="code"`)

	res, _ = b.post("/reset", url.Values{
		"code":         {mail.Code},
		"newpassword":  {"fresh-pw"},
		"newpassword2": {"fresh-pw"},
	})
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	res, body = b.get("/login")
	assert.Contains(t, body, `value="a@x.com"`)
	assert.Contains(t, body, "Password successfully reset, please log in now.")

	res, _ = b.post("/login", url.Values{"email": {"a@x.com"}, "password": {testutil.TestPassword}})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"fresh-pw"}})
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))

	// the code is spent
	res, body = b.get("/reset?code=" + url.QueryEscape(mail.Code))
	assert.Contains(t, body, "Recovery code is invalid")
}

func TestSignedInOnly(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "a@x.com")
	b := newBrowser(t, f.app)

	res, _ := b.get("/account")
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	res, body := b.get("/login")
	assert.Contains(t, body, "requires that you be signed in")

	res, _ = b.post("/login", url.Values{"email": {"a@x.com"}, "password": {testutil.TestPassword}})
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/account", res.Header.Get("Location"))

	res, body = b.get("/account")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "a@x.com")

	res, _ = b.get("/logout")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	res, _ = b.get("/account")
	assert.Equal(t, http.StatusFound, res.StatusCode)
}

func TestCSRFRequired(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(New(f.app))
	defer srv.Close()

	res, err := http.PostForm(srv.URL+"/signup", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	_, err = f.repo.GetAccountByField(context.Background(), repository.FieldEmail, "a@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	f.app.Limiter = ratelimit.New(0.001, 1)
	b := newBrowser(t, f.app)

	res, _ := b.get("/getsecret")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := b.get("/getsecret")
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "1", res.Header.Get("Retry-After"))
	assert.Equal(t, "Too many requests, please try again later", body)

	// pages are not throttled
	res, _ = b.get("/login")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimit_SpoofedHeadersIgnored(t *testing.T) {
	f := newFixture(t)
	f.app.Limiter = ratelimit.New(0.001, 1)
	b := newBrowser(t, f.app)

	for i, want := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests} {
		ip := fmt.Sprintf("203.0.113.%d", i+1)
		res, _ := b.getWithHeader("/getsecret", http.Header{
			echo.HeaderXForwardedFor: {ip},
			echo.HeaderXRealIP:       {ip},
		})
		assert.Equal(t, want, res.StatusCode, "request %d", i)
	}
}

func TestRateLimit_TrustedProxyForwardedFor(t *testing.T) {
	f := newFixture(t)
	f.app.Config.Server.TrustedProxies = []string{"127.0.0.0/8", "::1"}
	f.app.Limiter = ratelimit.New(0.001, 1)
	b := newBrowser(t, f.app)

	xff := http.Header{echo.HeaderXForwardedFor: {"203.0.113.1"}}
	res, _ := b.getWithHeader("/getsecret", xff)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// another client behind the same proxy has its own bucket
	res, _ = b.getWithHeader("/getsecret", http.Header{echo.HeaderXForwardedFor: {"203.0.113.2"}})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = b.getWithHeader("/getsecret", xff)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	b := newBrowser(t, f.app)

	b.get("/login")
	b.post("/login", url.Values{"email": {"ghost@x.com"}, "password": {"nope"}})

	res, body := b.get("/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `synchroweb_account_events_total{event="login",outcome="unauthorized"} 1`)
	assert.Contains(t, body, `synchroweb_http_requests_total{method="GET",path="/login",status="200"} 1`)
}

func TestNotFoundPage(t *testing.T) {
	b := newBrowser(t, newFixture(t).app)

	res, body := b.get("/nope")

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, "Not Found")
}

func TestTrailingSlashRedirect(t *testing.T) {
	b := newBrowser(t, newFixture(t).app)

	res, _ := b.get("/login/?x=1")

	assert.Equal(t, http.StatusMovedPermanently, res.StatusCode)
	assert.Equal(t, "/login?x=1", res.Header.Get("Location"))
}

func TestHealthEndpoint(t *testing.T) {
	b := newBrowser(t, newFixture(t).app)

	res, body := b.get("/health")

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestStaticAssets(t *testing.T) {
	b := newBrowser(t, newFixture(t).app)

	res, body := b.get(assets.CSSPath())
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, ".site-header")
	assert.Equal(t, "public, max-age=31536000, immutable", res.Header.Get("Cache-Control"))

	res, _ = b.get("/static/css/styles.css")
	assert.Equal(t, "no-cache", res.Header.Get("Cache-Control"))

	_, body = b.get("/")
	assert.Contains(t, body, `href="`+assets.CSSPath()+`"`)
}

func TestSecurityHeaders(t *testing.T) {
	b := newBrowser(t, newFixture(t).app)

	res, _ := b.get("/")

	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", res.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}
