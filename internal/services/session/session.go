// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session keeps the signed-in identity, redirect hints and flash
// messages in a signed cookie.
package session

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/models"
)

// Flash levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// Keys of the values stored in the cookie.
const (
	keyUserID        = "userid"
	keyEmail         = "email"
	keyName          = "name"
	keyVerified      = "verified"
	keyLicenseAgreed = "licenseAgreed"
	keyNextPage      = "nextPage"
	keyLoginAs       = "loginAs"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

func init() {
	gob.Register(Flash{})
}

// State is the typed view of the cookie contents.
type State struct {
	UserID        string
	Email         string
	Name          string
	Verified      bool
	LicenseAgreed bool
	NextPage      string
	LoginAs       string
}

// Manager loads and stores sessions in a gorilla CookieStore.
type Manager struct {
	store *sessions.CookieStore
	name  string
}

// NewManager creates a session manager from config.
// An empty hash key generates a random one, so sessions do not survive a restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("session_key_generated", "reason", "no session hash key configured, sessions reset on restart")
		hashKey = securecookie.GenerateRandomKey(32)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	var store *sessions.CookieStore
	if blockKey != nil {
		store = sessions.NewCookieStore(hashKey, blockKey)
	} else {
		store = sessions.NewCookieStore(hashKey)
	}
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(cfg.MaxAge)

	return &Manager{store: store, name: cfg.CookieName}, nil
}

func decodeKey(s, kind string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", kind, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session %s key must be 32 bytes, got %d", kind, len(key))
	}
	return key, nil
}

// Load returns the request's session. A missing or undecodable cookie yields
// an empty session.
func (m *Manager) Load(r *http.Request) *Session {
	raw, err := m.store.New(r, m.name)
	if err != nil {
		slog.Debug("session_discarded", "error", err)
	}

	s := &Session{raw: raw}
	s.State = State{
		UserID:        stringValue(raw.Values, keyUserID),
		Email:         stringValue(raw.Values, keyEmail),
		Name:          stringValue(raw.Values, keyName),
		Verified:      boolValue(raw.Values, keyVerified),
		LicenseAgreed: boolValue(raw.Values, keyLicenseAgreed),
		NextPage:      stringValue(raw.Values, keyNextPage),
		LoginAs:       stringValue(raw.Values, keyLoginAs),
	}
	return s
}

// Session is one request's session.
type Session struct {
	State
	raw *sessions.Session
}

// SignedIn reports whether an identity is present.
func (s *Session) SignedIn() bool {
	return s.UserID != ""
}

// SetIdentity records a as the signed-in account.
func (s *Session) SetIdentity(a *models.Account) {
	s.UserID = a.ID
	s.Email = a.Email
	s.Name = a.Name
	s.Verified = a.Verified
	s.LicenseAgreed = a.LicenseAgreed()
}

// ClearIdentity signs out. Flashes, nextPage and loginAs are kept.
func (s *Session) ClearIdentity() {
	s.UserID = ""
	s.Email = ""
	s.Name = ""
	s.Verified = false
	s.LicenseAgreed = false
}

// TakeNextPage returns the remembered page and forgets it.
func (s *Session) TakeNextPage() string {
	next := s.NextPage
	s.NextPage = ""
	return next
}

// TakeLoginAs returns the email to prefill on the login form and forgets it.
func (s *Session) TakeLoginAs() string {
	email := s.LoginAs
	s.LoginAs = ""
	return email
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(level, message string) {
	s.raw.AddFlash(Flash{Level: level, Message: message})
}

// Flashes returns and removes the queued messages.
func (s *Session) Flashes() []Flash {
	var out []Flash
	for _, f := range s.raw.Flashes() {
		if flash, ok := f.(Flash); ok {
			out = append(out, flash)
		}
	}
	return out
}

// Save writes the session cookie.
func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	v := s.raw.Values
	setString(v, keyUserID, s.UserID)
	setString(v, keyEmail, s.Email)
	setString(v, keyName, s.Name)
	setBool(v, keyVerified, s.Verified)
	setBool(v, keyLicenseAgreed, s.LicenseAgreed)
	setString(v, keyNextPage, s.NextPage)
	setString(v, keyLoginAs, s.LoginAs)

	if err := s.raw.Save(r, w); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func stringValue(v map[any]any, key string) string {
	s, _ := v[key].(string)
	return s
}

func boolValue(v map[any]any, key string) bool {
	b, _ := v[key].(bool)
	return b
}

func setString(v map[any]any, key, value string) {
	if value == "" {
		delete(v, key)
		return
	}
	v[key] = value
}

func setBool(v map[any]any, key string, value bool) {
	if !value {
		delete(v, key)
		return
	}
	v[key] = true
}
