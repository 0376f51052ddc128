// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/synchro/synchroweb/internal/models"
)

var fieldColumns = map[Field]string{
	FieldEmail:            "email",
	FieldSecret:           "secret",
	FieldVerificationCode: "verification_code",
	FieldRecoveryCode:     "recovery_code",
}

type accountRow struct {
	PartitionKey         string         `db:"partition_key"`
	RowKey               string         `db:"row_key"`
	Email                string         `db:"email"`
	Name                 string         `db:"name"`
	Organization         string         `db:"organization"`
	PasswordHash         string         `db:"password_hash"`
	Secret               string         `db:"secret"`
	VerificationCode     sql.NullString `db:"verification_code"`
	Verified             bool           `db:"verified"`
	EverVerified         bool           `db:"ever_verified"`
	RecoveryCode         sql.NullString `db:"recovery_code"`
	RecoveryCodeIssued   sql.NullTime   `db:"recovery_code_issued"`
	LicenseAgreedDate    sql.NullTime   `db:"license_agreed_date"`
	LicenseAgreedName    sql.NullString `db:"license_agreed_name"`
	LicenseAgreedTitle   sql.NullString `db:"license_agreed_title"`
	LicenseAgreedOrg     sql.NullString `db:"license_agreed_org"`
	LicenseAgreedVersion sql.NullString `db:"license_agreed_version"`
	CreatedAt            time.Time      `db:"account_creation_date"`
	Version              int64          `db:"version"`
}

// scanAccount is the only place a stored row becomes an Account.
func scanAccount(row *accountRow) *models.Account {
	return &models.Account{
		ID:                   row.RowKey,
		Email:                row.Email,
		Name:                 row.Name,
		Organization:         row.Organization,
		PasswordHash:         row.PasswordHash,
		Secret:               row.Secret,
		VerificationCode:     nullString(row.VerificationCode),
		Verified:             row.Verified,
		EverVerified:         row.EverVerified,
		RecoveryCode:         nullString(row.RecoveryCode),
		RecoveryCodeIssued:   nullTime(row.RecoveryCodeIssued),
		LicenseAgreedDate:    nullTime(row.LicenseAgreedDate),
		LicenseAgreedName:    nullString(row.LicenseAgreedName),
		LicenseAgreedTitle:   nullString(row.LicenseAgreedTitle),
		LicenseAgreedOrg:     nullString(row.LicenseAgreedOrg),
		LicenseAgreedVersion: nullString(row.LicenseAgreedVersion),
		CreatedAt:            row.CreatedAt.UTC(),
		ETag:                 strconv.FormatInt(row.Version, 10),
	}
}

func toRow(a *models.Account) *accountRow {
	return &accountRow{
		PartitionKey:         models.PartitionKey,
		RowKey:               a.ID,
		Email:                a.Email,
		Name:                 a.Name,
		Organization:         a.Organization,
		PasswordHash:         a.PasswordHash,
		Secret:               a.Secret,
		VerificationCode:     toNullString(a.VerificationCode),
		Verified:             a.Verified,
		EverVerified:         a.EverVerified,
		RecoveryCode:         toNullString(a.RecoveryCode),
		RecoveryCodeIssued:   toNullTime(a.RecoveryCodeIssued),
		LicenseAgreedDate:    toNullTime(a.LicenseAgreedDate),
		LicenseAgreedName:    toNullString(a.LicenseAgreedName),
		LicenseAgreedTitle:   toNullString(a.LicenseAgreedTitle),
		LicenseAgreedOrg:     toNullString(a.LicenseAgreedOrg),
		LicenseAgreedVersion: toNullString(a.LicenseAgreedVersion),
		CreatedAt:            a.CreatedAt.UTC(),
	}
}

// CreateAccount inserts a new unverified account. Email uniqueness is not
// checked here.
func (r *Repository) CreateAccount(ctx context.Context, n models.NewAccount) (*models.Account, error) {
	a, err := models.Build(n, r.now())
	if err != nil {
		return nil, err
	}

	row := toRow(a)
	row.Version = 1
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO webuser (
			partition_key, row_key, email, name, organization, password_hash, secret,
			verification_code, verified, ever_verified, recovery_code, recovery_code_issued,
			license_agreed_date, license_agreed_name, license_agreed_title,
			license_agreed_org, license_agreed_version, account_creation_date, version
		) VALUES (
			:partition_key, :row_key, :email, :name, :organization, :password_hash, :secret,
			:verification_code, :verified, :ever_verified, :recovery_code, :recovery_code_issued,
			:license_agreed_date, :license_agreed_name, :license_agreed_title,
			:license_agreed_org, :license_agreed_version, :account_creation_date, :version
		)`, row)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", wrapError(err))
	}

	a.ETag = strconv.FormatInt(row.Version, 10)
	return a, nil
}

// GetAccountByID retrieves an account by its row key.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM webuser WHERE partition_key = ? AND row_key = ?`, models.PartitionKey, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return scanAccount(&row), nil
}

// GetAccountByField returns the first account whose field equals value.
func (r *Repository) GetAccountByField(ctx context.Context, field Field, value string) (*models.Account, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}

	var row accountRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM webuser WHERE partition_key = ? AND `+column+` = ? LIMIT 1`, models.PartitionKey, value)
	if err != nil {
		return nil, wrapError(err)
	}
	return scanAccount(&row), nil
}

// UpdateAccount writes a back if the stored version still matches a.ETag.
func (r *Repository) UpdateAccount(ctx context.Context, a *models.Account) error {
	version, err := strconv.ParseInt(a.ETag, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad etag %q", ErrStale, a.ETag)
	}

	row := toRow(a)
	row.Version = version
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE webuser SET
			email = :email,
			name = :name,
			organization = :organization,
			password_hash = :password_hash,
			verification_code = :verification_code,
			verified = :verified,
			ever_verified = :ever_verified,
			recovery_code = :recovery_code,
			recovery_code_issued = :recovery_code_issued,
			license_agreed_date = :license_agreed_date,
			license_agreed_name = :license_agreed_name,
			license_agreed_title = :license_agreed_title,
			license_agreed_org = :license_agreed_org,
			license_agreed_version = :license_agreed_version,
			version = version + 1
		WHERE partition_key = :partition_key AND row_key = :row_key AND version = :version`, row)
	if err != nil {
		return fmt.Errorf("update account: %w", wrapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetAccountByID(ctx, a.ID); err != nil {
			return err
		}
		return ErrStale
	}

	a.ETag = strconv.FormatInt(version+1, 10)
	return nil
}

// DeleteAccount removes an account by its row key. A non-empty etag makes
// the delete conditional: it fails with ErrStale when the account changed
// since it was read.
func (r *Repository) DeleteAccount(ctx context.Context, id, etag string) error {
	query := `DELETE FROM webuser WHERE partition_key = ? AND row_key = ?`
	args := []any{models.PartitionKey, id}
	if etag != "" {
		version, err := strconv.ParseInt(etag, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad etag %q", ErrStale, etag)
		}
		query += ` AND version = ?`
		args = append(args, version)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if etag == "" {
			return ErrNotFound
		}
		if _, err := r.GetAccountByID(ctx, id); err != nil {
			return err
		}
		return ErrStale
	}
	return nil
}

// ListUnverifiedBefore returns accounts created before the given time that
// have never been verified. Accounts waiting to confirm a changed email are
// not included.
func (r *Repository) ListUnverifiedBefore(ctx context.Context, before time.Time) ([]*models.Account, error) {
	var rows []accountRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM webuser
		WHERE partition_key = ? AND verified = 0 AND ever_verified = 0 AND account_creation_date < ?
		ORDER BY account_creation_date`, models.PartitionKey, before.UTC())
	if err != nil {
		return nil, err
	}

	accounts := make([]*models.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, scanAccount(&rows[i]))
	}
	return accounts, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
