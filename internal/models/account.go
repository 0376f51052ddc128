// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PartitionKey is the table partition every account row lives in.
const PartitionKey = "user"

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordCost is the bcrypt cost used for new password hashes.
// Tests lower it to bcrypt.MinCost.
var PasswordCost = bcrypt.DefaultCost

// NewAccount holds the data submitted at signup.
type NewAccount struct {
	Email        string
	Password     string
	Name         string
	Organization string
}

// LicenseAgreement is the record stamped when an account accepts the license.
type LicenseAgreement struct {
	Name         string
	Title        string
	Organization string
	Version      string
}

// Account is one registered email identity.
//
// Pointer fields are nullable attributes of the stored record. ETag is the
// store's concurrency token for the version this value was read from.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 string     `json:"name"`
	Organization         string     `json:"organization,omitempty"`
	PasswordHash         string     `json:"-"`
	Secret               string     `json:"-"`
	VerificationCode     *string    `json:"-"`
	Verified             bool       `json:"verified"`
	EverVerified         bool       `json:"-"`
	RecoveryCode         *string    `json:"-"`
	RecoveryCodeIssued   *time.Time `json:"-"`
	LicenseAgreedDate    *time.Time `json:"license_agreed_date,omitempty"`
	LicenseAgreedName    *string    `json:"license_agreed_name,omitempty"`
	LicenseAgreedTitle   *string    `json:"license_agreed_title,omitempty"`
	LicenseAgreedOrg     *string    `json:"license_agreed_organization,omitempty"`
	LicenseAgreedVersion *string    `json:"license_agreed_version,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	ETag                 string     `json:"-"`
}

// Build initializes a fresh, unverified account from signup data.
func Build(n NewAccount, now time.Time) (*Account, error) {
	a := &Account{
		ID:           uuid.NewString(),
		Email:        n.Email,
		Name:         n.Name,
		Organization: n.Organization,
		Secret:       uuid.NewString(),
		CreatedAt:    now.UTC(),
	}
	if err := a.SetPassword(n.Password); err != nil {
		return nil, err
	}
	a.SetVerified(false)
	return a, nil
}

// SetPassword replaces the stored hash with a hash of password.
func (a *Account) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (a *Account) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// SetVerified updates the verification flag. Marking an account unverified
// always issues a new verification code. Marking it verified keeps the old
// code so a repeated submission can be told apart from a bad code, and sets
// EverVerified for good.
func (a *Account) SetVerified(verified bool) {
	a.Verified = verified
	if verified {
		a.EverVerified = true
	} else {
		code := uuid.NewString()
		a.VerificationCode = &code
	}
}

// GenerateRecoveryCode issues a new recovery code, replacing any pending one.
func (a *Account) GenerateRecoveryCode(now time.Time) string {
	code := uuid.NewString()
	issued := now.UTC()
	a.RecoveryCode = &code
	a.RecoveryCodeIssued = &issued
	return code
}

// ClearRecoveryCode removes the pending recovery code and its timestamp.
func (a *Account) ClearRecoveryCode() {
	a.RecoveryCode = nil
	a.RecoveryCodeIssued = nil
}

// HasPendingRecovery reports whether a password reset is outstanding.
func (a *Account) HasPendingRecovery() bool {
	return a.RecoveryCode != nil
}

// AgreeLicense stamps a license agreement, overwriting any earlier one.
func (a *Account) AgreeLicense(now time.Time, la LicenseAgreement) {
	date := now.UTC()
	a.LicenseAgreedDate = &date
	a.LicenseAgreedName = &la.Name
	a.LicenseAgreedTitle = optional(la.Title)
	a.LicenseAgreedOrg = optional(la.Organization)
	a.LicenseAgreedVersion = optional(la.Version)
}

// LicenseAgreed is true once a license agreement date is recorded.
func (a *Account) LicenseAgreed() bool {
	return a.LicenseAgreedDate != nil
}

// Code returns the value of a nullable code field, or "".
func Code(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
