// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"codeberg.org/synchro/synchroweb/internal/appcontext"
	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/database"
	"codeberg.org/synchro/synchroweb/internal/i18n"
	"codeberg.org/synchro/synchroweb/internal/models"
	"codeberg.org/synchro/synchroweb/internal/repository"
	"codeberg.org/synchro/synchroweb/internal/services/session"
)

// TestPassword is the password of accounts created by NewTestAccount.
const TestPassword = "correct horse"

func init() {
	models.PasswordCost = bcrypt.MinCost
}

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewTestAccount creates an unverified account with TestPassword.
func NewTestAccount(t *testing.T, store repository.AccountStore, email string) *models.Account {
	t.Helper()
	a, err := store.CreateAccount(context.Background(), models.NewAccount{
		Email:    email,
		Password: TestPassword,
		Name:     "Test User",
	})
	require.NoError(t, err)
	return a
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// NewFormRequest creates a url-encoded POST request.
func NewFormRequest(path, form string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

// TestHashKey is a valid 32-byte hex-encoded session key.
const TestHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// NewSessionManager creates a session manager with a fixed key.
func NewSessionManager(t *testing.T) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(&config.SessionConfig{
		CookieName: "_test_session",
		MaxAge:     3600,
		HashKey:    TestHashKey,
	}, false)
	require.NoError(t, err)
	return mgr
}

// NewAppContext wraps a request in an app context with a session loaded
// from the request's cookies.
func NewAppContext(t *testing.T, e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) *appcontext.Context {
	t.Helper()
	req = req.WithContext(i18n.WithLocale(req.Context(), language.English))
	return &appcontext.Context{
		Context: e.NewContext(req, rec),
		Session: NewSessionManager(t).Load(req),
	}
}
