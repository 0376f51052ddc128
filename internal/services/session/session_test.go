// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// validHashKey is a valid 32-byte hex-encoded key for testing
const validHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// validBlockKey is a valid 32-byte hex-encoded key for encryption testing
const validBlockKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

func newTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		CookieName: "_test_session",
		MaxAge:     3600, // 1 hour
		HashKey:    validHashKey,
	}
}

func newManager(t *testing.T, cfg *config.SessionConfig, secure bool) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(cfg, secure)
	require.NoError(t, err)
	return mgr
}

// roundTrip saves s and returns the cookie it wrote.
func roundTrip(t *testing.T, s *session.Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, s.Save(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWith(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	return req
}

func TestNewManager_WithBlockKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey

	mgr, err := session.NewManager(cfg, true)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_InvalidKeys(t *testing.T) {
	tests := []struct {
		name     string
		hashKey  string
		blockKey string
		want     string
	}{
		{"hash not hex", "not-hex-encoded", "", "invalid session hash key"},
		{"hash too short", "0123456789abcdef", "", "must be 32 bytes"},
		{"block not hex", validHashKey, "not-hex-encoded", "invalid session block key"},
		{"block too short", validHashKey, "0123456789abcdef", "must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.HashKey = tt.hashKey
			cfg.BlockKey = tt.blockKey

			_, err := session.NewManager(cfg, false)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewManager_GeneratesKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.HashKey = ""

	mgr := newManager(t, cfg, false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.UserID = "abc"

	loaded := mgr.Load(requestWith(roundTrip(t, s)))
	assert.Equal(t, "abc", loaded.UserID)
}

func TestLoad_NoCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)

	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, s.SignedIn())
	assert.Equal(t, session.State{}, s.State)
}

func TestSave_CookieAttributes(t *testing.T) {
	cfg := newTestConfig()
	cfg.Domain = "synchro.io"
	mgr := newManager(t, cfg, true)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))

	cookie := roundTrip(t, s)

	assert.Equal(t, "_test_session", cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, "synchro.io", cookie.Domain)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestIdentityRoundTrip(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	now := time.Now()
	a := &models.Account{ID: "id-1", Email: "a@x.com", Name: "Ann", Verified: true}
	a.AgreeLicense(now, models.LicenseAgreement{Name: "Ann"})

	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.SetIdentity(a)
	s.NextPage = "/license"
	s.LoginAs = "b@x.com"

	loaded := mgr.Load(requestWith(roundTrip(t, s)))

	assert.Equal(t, session.State{
		UserID:        "id-1",
		Email:         "a@x.com",
		Name:          "Ann",
		Verified:      true,
		LicenseAgreed: true,
		NextPage:      "/license",
		LoginAs:       "b@x.com",
	}, loaded.State)
	assert.True(t, loaded.SignedIn())
}

func TestClearIdentity_KeepsFlashesAndHints(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.SetIdentity(&models.Account{ID: "id-1", Email: "a@x.com", Verified: true})
	s.NextPage = "/account"
	s.AddFlash(session.LevelInfo, "You have been signed out")

	s.ClearIdentity()
	loaded := mgr.Load(requestWith(roundTrip(t, s)))

	assert.False(t, loaded.SignedIn())
	assert.Empty(t, loaded.Email)
	assert.False(t, loaded.Verified)
	assert.Equal(t, "/account", loaded.NextPage)
	assert.Equal(t, []session.Flash{{Level: session.LevelInfo, Message: "You have been signed out"}}, loaded.Flashes())
}

func TestFlashes_ConsumedOnce(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.AddFlash(session.LevelWarn, "first")
	s.AddFlash(session.LevelInfo, "second")

	loaded := mgr.Load(requestWith(roundTrip(t, s)))
	flashes := loaded.Flashes()

	require.Len(t, flashes, 2)
	assert.Equal(t, session.Flash{Level: session.LevelWarn, Message: "first"}, flashes[0])
	assert.Empty(t, loaded.Flashes())

	again := mgr.Load(requestWith(roundTrip(t, loaded)))
	assert.Empty(t, again.Flashes())
}

func TestTakeNextPageAndLoginAs(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.NextPage = "/changepass"
	s.LoginAs = "a@x.com"

	assert.Equal(t, "/changepass", s.TakeNextPage())
	assert.Empty(t, s.TakeNextPage())
	assert.Equal(t, "a@x.com", s.TakeLoginAs())
	assert.Empty(t, s.TakeLoginAs())
}

func TestLoad_TamperedCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.UserID = "id-1"
	cookie := roundTrip(t, s)
	cookie.Value = cookie.Value[:len(cookie.Value)-5] + "XXXXX"

	loaded := mgr.Load(requestWith(cookie))

	assert.False(t, loaded.SignedIn())
}

func TestLoad_DifferentKey(t *testing.T) {
	mgr1 := newManager(t, newTestConfig(), false)
	s := mgr1.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.UserID = "id-1"
	cookie := roundTrip(t, s)

	cfg2 := newTestConfig()
	cfg2.HashKey = validBlockKey
	mgr2 := newManager(t, cfg2, false)

	assert.False(t, mgr2.Load(requestWith(cookie)).SignedIn())
}

func TestEncryptedRoundTrip(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey
	mgr := newManager(t, cfg, false)
	s := mgr.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Email = "secret@x.com"

	cookie := roundTrip(t, s)

	assert.NotContains(t, cookie.Value, "secret@x.com")
	assert.Equal(t, "secret@x.com", mgr.Load(requestWith(cookie)).Email)
}
