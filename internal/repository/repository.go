// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"codeberg.org/synchro/synchroweb/internal/models"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrConflict is returned when a create collides with an existing row.
	ErrConflict = errors.New("account already exists")
	// ErrStale is returned when an update lost a race with another writer.
	ErrStale = errors.New("account was modified concurrently")
	// ErrInvalidField is returned for lookups on a field that is not indexed.
	ErrInvalidField = errors.New("invalid lookup field")
)

// Field names an account attribute usable for unique lookups.
type Field string

// Lookup fields.
const (
	FieldEmail            Field = "email"
	FieldSecret           Field = "secret"
	FieldVerificationCode Field = "verificationCode"
	FieldRecoveryCode     Field = "recoveryCode"
)

// Valid reports whether f may be used with GetAccountByField.
func (f Field) Valid() bool {
	switch f {
	case FieldEmail, FieldSecret, FieldVerificationCode, FieldRecoveryCode:
		return true
	}
	return false
}

// AccountStore persists accounts in the webuser table.
type AccountStore interface {
	CreateAccount(ctx context.Context, n models.NewAccount) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	GetAccountByField(ctx context.Context, field Field, value string) (*models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, id, etag string) error
	ListUnverifiedBefore(ctx context.Context, before time.Time) ([]*models.Account, error)
	Ping(ctx context.Context) error
}

// Repository is the SQLite account store.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ AccountStore = (*Repository)(nil)

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of r that stamps new accounts using now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	cp := *r
	cp.now = now
	return &cp
}

// DB returns the underlying connection.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return ErrConflict
	}
	return err
}
